package analyzer

import (
	"math"

	"alphascreen/pkg/model"
)

// TechnicalConfig holds EMA spans and slope lookbacks
type TechnicalConfig struct {
	DailySpan      int
	WeeklySpan     int
	DailyLookback  int // bars used for the daily slope
	WeeklyLookback int // weeks used for the weekly slope
	StrongDiffPct  float64
	SlopeFlatPct   float64
}

// DefaultTechnicalConfig returns a one year daily and five year weekly EMA
func DefaultTechnicalConfig() TechnicalConfig {
	return TechnicalConfig{
		DailySpan:      252,
		WeeklySpan:     260,
		DailyLookback:  20,
		WeeklyLookback: 4,
		StrongDiffPct:  5,
		SlopeFlatPct:   2,
	}
}

// TechnicalAnalyzer measures price position against long daily and weekly EMAs
type TechnicalAnalyzer struct {
	cfg TechnicalConfig
}

// NewTechnicalAnalyzer creates a new technical analyzer
func NewTechnicalAnalyzer(cfg TechnicalConfig) *TechnicalAnalyzer {
	def := DefaultTechnicalConfig()
	if cfg.DailySpan < 1 {
		cfg.DailySpan = def.DailySpan
	}
	if cfg.WeeklySpan < 1 {
		cfg.WeeklySpan = def.WeeklySpan
	}
	if cfg.DailyLookback < 1 {
		cfg.DailyLookback = def.DailyLookback
	}
	if cfg.WeeklyLookback < 1 {
		cfg.WeeklyLookback = def.WeeklyLookback
	}
	if cfg.StrongDiffPct <= 0 {
		cfg.StrongDiffPct = def.StrongDiffPct
	}
	if cfg.SlopeFlatPct <= 0 {
		cfg.SlopeFlatPct = def.SlopeFlatPct
	}
	return &TechnicalAnalyzer{cfg: cfg}
}

// Analyze computes the multi-timeframe snapshot. Returns nil for an empty series.
// A timeframe with fewer observations than its span is reported as invalid and below.
func (t *TechnicalAnalyzer) Analyze(series model.PriceSeries) *model.Technical {
	last, ok := series.Last()
	if !ok {
		return nil
	}
	price := last.Close

	daily := t.timeframe(series.Closes(), price, t.cfg.DailySpan, t.cfg.DailyLookback)
	weekly := t.timeframe(WeeklyCloses(series), price, t.cfg.WeeklySpan, t.cfg.WeeklyLookback)

	snap := &model.Technical{
		CurrentPrice: round2(price),
		DataPoints:   len(series),
	}
	if daily.Above {
		snap.Alignment++
	}
	if weekly.Above {
		snap.Alignment++
	}

	switch {
	case daily.Above && weekly.Above && daily.DiffPct > t.cfg.StrongDiffPct && weekly.DiffPct > t.cfg.StrongDiffPct:
		snap.TrendStrength = model.StrengthVeryStrong
	case daily.Above && weekly.Above:
		snap.TrendStrength = model.StrengthStrong
	case daily.Above || weekly.Above:
		snap.TrendStrength = model.StrengthWeak
	default:
		snap.TrendStrength = model.StrengthDowntrend
	}

	switch {
	case daily.Above && weekly.Above && daily.SlopePct > 0 && weekly.SlopePct > 0:
		snap.OverallTrend = model.TrendStrongUptrend
	case daily.Above && weekly.Above:
		snap.OverallTrend = model.TrendUptrend
	case daily.Above:
		snap.OverallTrend = model.TrendWeakUptrend
	default:
		snap.OverallTrend = model.TrendDowntrend
	}

	switch {
	case daily.SlopePct > t.cfg.SlopeFlatPct:
		snap.SlopeTrend = "RISING"
	case daily.SlopePct < -t.cfg.SlopeFlatPct:
		snap.SlopeTrend = "FALLING"
	default:
		snap.SlopeTrend = "FLAT"
	}

	snap.Daily = publish(daily)
	snap.Weekly = publish(weekly)
	return snap
}

func (t *TechnicalAnalyzer) timeframe(closes []float64, price float64, span, lookback int) model.Timeframe {
	tf := model.Timeframe{Span: span}
	if len(closes) < span {
		return tf
	}

	ema := EMA(closes, span)
	cur := ema[len(ema)-1]
	if cur <= 0 {
		return tf
	}

	tf.Valid = true
	tf.EMA = cur
	tf.Above = price > cur
	tf.DiffPct = (price - cur) / cur * 100
	tf.SlopePct = Slope(ema, lookback)
	return tf
}

// publish rounds a timeframe for output; comparisons are made on unrounded values
func publish(tf model.Timeframe) model.Timeframe {
	tf.EMA = round2(tf.EMA)
	tf.DiffPct = round2(tf.DiffPct)
	tf.SlopePct = round2(tf.SlopePct)
	return tf
}

// EMA returns the exponential moving average series with alpha 2/(span+1), seeded with the first value
func EMA(values []float64, span int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(span) + 1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = out[i-1] + alpha*(values[i]-out[i-1])
	}
	return out
}

// Slope is the percentage change of the series over its last lookback points,
// measured from the value lookback points before the end.
func Slope(series []float64, lookback int) float64 {
	if len(series) == 0 {
		return 0
	}
	if lookback > len(series) {
		lookback = len(series)
	}
	start := series[len(series)-lookback]
	end := series[len(series)-1]
	if start <= 0 {
		return 0
	}
	return (end - start) / start * 100
}

// WeeklyCloses resamples daily bars to the last close of each ISO calendar week
func WeeklyCloses(series model.PriceSeries) []float64 {
	var out []float64
	var curYear, curWeek int
	for i, b := range series {
		y, w := b.Date.ISOWeek()
		if i > 0 && y == curYear && w == curWeek {
			out[len(out)-1] = b.Close
			continue
		}
		curYear, curWeek = y, w
		out = append(out, b.Close)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
