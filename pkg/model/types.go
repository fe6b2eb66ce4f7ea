package model

import (
	"sort"
	"time"
)

// Bar represents a single daily OHLCV observation
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// PriceSeries is a date-ascending list of bars with no duplicate dates.
// Series handed out by the fetcher are shared with its cache and must be treated as read-only.
type PriceSeries []Bar

// Closes returns the close prices in order
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, b := range s {
		closes[i] = b.Close
	}
	return closes
}

// Last returns the most recent bar
func (s PriceSeries) Last() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// NormalizeSeries sorts bars by date and drops duplicate dates, keeping the last bar seen for a date
func NormalizeSeries(bars []Bar) PriceSeries {
	if len(bars) == 0 {
		return nil
	}
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	out := make(PriceSeries, 0, len(sorted))
	for _, b := range sorted {
		if n := len(out); n > 0 && sameDay(out[n-1].Date, b.Date) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Fundamentals is a point-in-time snapshot of company ratios.
// Nil pointer fields mean the provider did not report the value.
type Fundamentals struct {
	Symbol       string   `json:"symbol"`
	CompanyName  string   `json:"company_name"`
	Sector       string   `json:"sector"`
	Industry     string   `json:"industry"`
	MarketCap    *float64 `json:"market_cap,omitempty"` // crores
	TrailingPE   *float64 `json:"pe_ratio,omitempty"`
	ForwardPE    *float64 `json:"forward_pe,omitempty"`
	PriceToBook  *float64 `json:"pb_ratio,omitempty"`
	ROE          *float64 `json:"roe,omitempty"`            // percent
	DebtToEquity *float64 `json:"debt_to_equity,omitempty"` // ratio
	Beta         *float64 `json:"beta,omitempty"`
	CurrentPrice *float64 `json:"current_price,omitempty"`
}

// CompleteData bundles both remote fetches for one symbol
type CompleteData struct {
	Symbol       string        `json:"symbol"`
	Fundamentals *Fundamentals `json:"fundamentals,omitempty"`
	Prices       PriceSeries   `json:"prices,omitempty"`
}

// DeliveryRecord is one symbol's row from a settlement archive file
type DeliveryRecord struct {
	Symbol      string  `json:"symbol"`
	TradedQty   float64 `json:"traded_qty"`
	DeliveryQty float64 `json:"delivery_qty"`
	DeliveryPct float64 `json:"delivery_percentage"`
}

// DayTable is the parsed archive file for a single trading date
type DayTable struct {
	Date    time.Time                 `json:"date"`
	Records map[string]DeliveryRecord `json:"records"`
}

// Trend labels for delivery series
const (
	TrendRising       = "rising"
	TrendFalling      = "falling"
	TrendStable       = "stable"
	TrendInsufficient = "insufficient_data"
)

// DeliveryTrend summarizes a symbol's recent delivery behaviour
type DeliveryTrend struct {
	Symbol       string  `json:"symbol"`
	LatestQty    float64 `json:"latest_qty"`
	AvgQty       float64 `json:"avg_qty"`
	BaselineQty  float64 `json:"baseline_qty"`
	SpikeRatio   float64 `json:"spike_ratio"`
	HasSpike     bool    `json:"has_spike"`
	LatestPct    float64 `json:"latest_pct"`
	AvgPct       float64 `json:"avg_pct"`
	QtyTrend     string  `json:"qty_trend"`
	PctTrend     string  `json:"pct_trend"`
	LookbackDays int     `json:"lookback_days"`
	DataPoints   int     `json:"data_points"`
}

// Timeframe is the EMA reading for one resolution
type Timeframe struct {
	Span     int     `json:"span"`
	EMA      float64 `json:"ema"`
	Above    bool    `json:"above"`
	DiffPct  float64 `json:"diff_pct"`
	SlopePct float64 `json:"slope_pct"`
	Valid    bool    `json:"valid"`
}

// Trend strength and direction labels
const (
	StrengthVeryStrong = "VERY_STRONG"
	StrengthStrong     = "STRONG"
	StrengthWeak       = "WEAK"
	StrengthDowntrend  = "DOWNTREND"

	TrendStrongUptrend = "STRONG_UPTREND"
	TrendUptrend       = "UPTREND"
	TrendWeakUptrend   = "WEAK_UPTREND"
	TrendDowntrend     = "DOWNTREND"
)

// Technical is the multi-timeframe trend snapshot
type Technical struct {
	CurrentPrice  float64   `json:"current_price"`
	Daily         Timeframe `json:"daily"`
	Weekly        Timeframe `json:"weekly"`
	Alignment     int       `json:"alignment"`
	TrendStrength string    `json:"trend_strength"`
	OverallTrend  string    `json:"overall_trend"`
	SlopeTrend    string    `json:"slope_trend"` // RISING, FALLING or FLAT on the daily EMA
	DataPoints    int       `json:"data_points"`
}

// RatioScore is the rating of a single fundamental ratio
type RatioScore struct {
	Value   *float64 `json:"value,omitempty"`
	Rating  string   `json:"rating"`
	Score   float64  `json:"score"`
	Message string   `json:"message"`
}

// FundamentalAnalysis holds per-ratio ratings and the combined quality score
type FundamentalAnalysis struct {
	PE            RatioScore `json:"pe"`
	ROE           RatioScore `json:"roe"`
	Debt          RatioScore `json:"debt"`
	PB            RatioScore `json:"pb"`
	QualityScore  float64    `json:"quality_score"`
	QualityRating string     `json:"quality_rating"`
	MarketCap     *float64   `json:"market_cap,omitempty"`
	Sector        string     `json:"sector"`
	Industry      string     `json:"industry"`
}

// Signal is the final recommendation
type Signal string

const (
	SignalBuy   Signal = "BUY"
	SignalHold  Signal = "HOLD"
	SignalAvoid Signal = "AVOID"
)

// Breakdown lists the score contributed by each component
type Breakdown struct {
	Technical   float64 `json:"technical"`
	Fundamental float64 `json:"fundamental"`
	Delivery    float64 `json:"delivery"`
}

// Score is the composite score for one symbol
type Score struct {
	Symbol     string    `json:"symbol"`
	TotalScore float64   `json:"total_score"`
	Signal     Signal    `json:"signal"`
	Breakdown  Breakdown `json:"breakdown"`
	Error      string    `json:"error,omitempty"`
}

// Result is the flat per-symbol record produced by a run
type Result struct {
	Symbol    string  `json:"symbol"`
	Company   string  `json:"company"`
	Sector    string  `json:"sector"`
	Industry  string  `json:"industry"`
	MarketCap float64 `json:"market_cap"`

	CurrentPrice   float64 `json:"current_price"`
	DailyEMA       float64 `json:"daily_ema_252"`
	WeeklyEMA      float64 `json:"weekly_ema_260"`
	AboveDaily     bool    `json:"above_daily_ema"`
	AboveWeekly    bool    `json:"above_weekly_ema"`
	DailyDiffPct   float64 `json:"daily_diff_pct"`
	WeeklyDiffPct  float64 `json:"weekly_diff_pct"`
	DailySlopePct  float64 `json:"daily_slope_pct"`
	WeeklySlopePct float64 `json:"weekly_slope_pct"`
	Alignment      int     `json:"timeframe_alignment"`
	TrendStrength  string  `json:"trend_strength"`
	OverallTrend   string  `json:"overall_trend"`

	PE           float64 `json:"pe_ratio"`
	ROE          float64 `json:"roe"`
	DebtToEquity float64 `json:"debt_to_equity"`
	PB           float64 `json:"pb_ratio"`
	QualityScore float64 `json:"quality_score"`

	DeliveryQty      float64 `json:"delivery_qty"`
	DeliveryQtyAvg   float64 `json:"delivery_qty_avg"`
	DeliveryBaseline float64 `json:"delivery_qty_baseline"`
	DeliverySpike    bool    `json:"delivery_spike"`
	SpikeRatio       float64 `json:"spike_ratio"`
	DeliveryPct      float64 `json:"delivery_pct"`
	DeliveryTrend    string  `json:"delivery_qty_trend"`
	LookbackDays     int     `json:"lookback_days"`
	DataPoints       int     `json:"data_points"`

	TechnicalScore   float64 `json:"technical_score"`
	FundamentalScore float64 `json:"fundamental_score"`
	DeliveryScore    float64 `json:"delivery_score"`
	TotalScore       float64 `json:"total_score"`
	Signal           Signal  `json:"signal"`

	Timestamp time.Time `json:"timestamp"`
}

// Summary aggregates a run's results
type Summary struct {
	RunID     string    `json:"run_id"`
	Total     int       `json:"total_analyzed"`
	Buy       int       `json:"buy_signals"`
	Hold      int       `json:"hold_signals"`
	Avoid     int       `json:"avoid_signals"`
	AvgScore  float64   `json:"avg_score"`
	TopScore  float64   `json:"top_score"`
	Failed    int       `json:"failed_count"`
	Sectors   int       `json:"sectors_covered"`
	Timestamp time.Time `json:"timestamp"`
}

// RunReport is everything a pipeline run produces
type RunReport struct {
	Summary Summary  `json:"summary"`
	Results []Result `json:"results"`
	Failed  []string `json:"failed"`
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// Deref returns *p or 0 when p is nil
func Deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
