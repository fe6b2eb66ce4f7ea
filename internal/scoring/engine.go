package scoring

import (
	"math"

	"github.com/ternarybob/arbor"

	"alphascreen/internal/common"
	"alphascreen/pkg/model"
)

// Band awards Score when a deviation is at most Max percent
type Band struct {
	Max   float64 `yaml:"max" toml:"max"`
	Score float64 `yaml:"score" toml:"score"`
}

// Config holds signal thresholds, clamp bounds and retracement bands
type Config struct {
	BuyThreshold float64 `yaml:"buy_threshold" toml:"buy_threshold"`
	HoldMin      float64 `yaml:"hold_min" toml:"hold_min"`
	MinScore     float64 `yaml:"min_score" toml:"min_score"`
	MaxScore     float64 `yaml:"max_score" toml:"max_score"`

	DailyBands  []Band  `yaml:"daily_bands" toml:"daily_bands"`
	WeeklyBands []Band  `yaml:"weekly_bands" toml:"weekly_bands"`
	FarCredit   float64 `yaml:"far_credit" toml:"far_credit"` // awarded above the last band
}

// DefaultConfig returns the standard thresholds
func DefaultConfig() Config {
	return Config{
		BuyThreshold: 3.0,
		HoldMin:      1.0,
		MinScore:     -5.0,
		MaxScore:     5.0,
		DailyBands: []Band{
			{Max: 3, Score: 2.0},
			{Max: 5, Score: 1.5},
			{Max: 8, Score: 1.0},
			{Max: 15, Score: 0.5},
		},
		WeeklyBands: []Band{
			{Max: 5, Score: 2.0},
			{Max: 10, Score: 1.5},
			{Max: 20, Score: 1.0},
			{Max: 30, Score: 0.5},
		},
		FarCredit: 0.25,
	}
}

// Engine combines the three analyses into a bounded score and signal
type Engine struct {
	cfg    Config
	logger arbor.ILogger
}

// NewEngine creates a scoring engine. Empty band tables take the defaults.
func NewEngine(cfg Config, logger arbor.ILogger) *Engine {
	def := DefaultConfig()
	if len(cfg.DailyBands) == 0 {
		cfg.DailyBands = def.DailyBands
	}
	if len(cfg.WeeklyBands) == 0 {
		cfg.WeeklyBands = def.WeeklyBands
	}
	if cfg.MaxScore <= cfg.MinScore {
		cfg.MinScore, cfg.MaxScore = def.MinScore, def.MaxScore
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Score rates one symbol. Any input may be nil and contributes nothing.
// A panic while scoring yields a zero AVOID result carrying the error.
func (e *Engine) Score(symbol string, tech *model.Technical, fund *model.FundamentalAnalysis, delivery *model.DeliveryTrend) (out model.Score) {
	defer func() {
		if r := recover(); r != nil {
			err := common.Recovered(r)
			e.logger.Error().Str("symbol", symbol).Err(err).Msg("Scoring failed")
			out = model.Score{Symbol: symbol, Signal: model.SignalAvoid, Error: err.Error()}
		}
	}()

	technical := e.Technical(tech)
	fundamental := e.Fundamental(fund)
	deliv := e.Delivery(delivery)

	total := e.Clamp(technical + fundamental + deliv)
	return model.Score{
		Symbol:     symbol,
		TotalScore: round2(total),
		Signal:     e.Signal(total),
		Breakdown: model.Breakdown{
			Technical:   round2(technical),
			Fundamental: round2(fundamental),
			Delivery:    round2(deliv),
		},
	}
}

// Technical rewards a price sitting just above its EMA over one that has already run away (0 to 4)
func (e *Engine) Technical(t *model.Technical) float64 {
	if t == nil {
		return 0
	}
	score := 0.0
	if t.Daily.Above {
		score += e.retracement(t.Daily.DiffPct, e.cfg.DailyBands)
	}
	if t.Weekly.Above {
		score += e.retracement(t.Weekly.DiffPct, e.cfg.WeeklyBands)
	}
	return score
}

func (e *Engine) retracement(diff float64, bands []Band) float64 {
	if diff < 0 {
		return e.cfg.FarCredit
	}
	for _, b := range bands {
		if diff <= b.Max {
			return b.Score
		}
	}
	return e.cfg.FarCredit
}

// Fundamental scales the quality score to -2..+2
func (e *Engine) Fundamental(f *model.FundamentalAnalysis) float64 {
	if f == nil {
		return 0
	}
	return f.QualityScore * 2
}

// Delivery rewards a quantity spike and a high delivered percentage (0 to 3)
func (e *Engine) Delivery(d *model.DeliveryTrend) float64 {
	if d == nil {
		return 0
	}
	score := 0.0
	if d.HasSpike {
		switch {
		case d.SpikeRatio >= 3.0:
			score += 2.0
		case d.SpikeRatio >= 2.0:
			score += 1.5
		default:
			score += 1.0
		}
	}
	switch {
	case d.LatestPct > 50:
		score += 1.0
	case d.LatestPct > 35:
		score += 0.5
	}
	return score
}

// Clamp bounds a raw total to [MinScore, MaxScore]
func (e *Engine) Clamp(total float64) float64 {
	if math.IsNaN(total) {
		panic("score is NaN")
	}
	return math.Max(e.cfg.MinScore, math.Min(total, e.cfg.MaxScore))
}

// Signal maps a clamped score to BUY, HOLD or AVOID
func (e *Engine) Signal(score float64) model.Signal {
	switch {
	case score >= e.cfg.BuyThreshold:
		return model.SignalBuy
	case score >= e.cfg.HoldMin:
		return model.SignalHold
	default:
		return model.SignalAvoid
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
