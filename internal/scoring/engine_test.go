package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"alphascreen/pkg/model"
)

func newEngine() *Engine {
	return NewEngine(DefaultConfig(), arbor.NewLogger())
}

func tech(dailyAbove bool, dailyDiff float64, weeklyAbove bool, weeklyDiff float64) *model.Technical {
	return &model.Technical{
		Daily:  model.Timeframe{Above: dailyAbove, DiffPct: dailyDiff, Valid: true},
		Weekly: model.Timeframe{Above: weeklyAbove, DiffPct: weeklyDiff, Valid: true},
	}
}

func TestSignalBoundaries(t *testing.T) {
	e := newEngine()
	tests := []struct {
		score float64
		want  model.Signal
	}{
		{5.0, model.SignalBuy},
		{3.0, model.SignalBuy},
		{2.99, model.SignalHold},
		{2.0, model.SignalHold},
		{1.0, model.SignalHold},
		{0.5, model.SignalAvoid},
		{-5, model.SignalAvoid},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.Signal(tt.score), "score %v", tt.score)
	}
}

func TestRetracementBands(t *testing.T) {
	e := newEngine()
	tests := []struct {
		name string
		in   *model.Technical
		want float64
	}{
		{"just touched both", tech(true, 1, true, 2), 4.0},
		{"daily band edge", tech(true, 3, false, 0), 2.0},
		{"daily second band", tech(true, 4, false, 0), 1.5},
		{"daily extended", tech(true, 12, false, 0), 0.5},
		{"daily far", tech(true, 40, false, 0), 0.25},
		{"weekly second band", tech(false, 0, true, 7), 1.5},
		{"weekly extended", tech(false, 0, true, 25), 0.5},
		{"below both", tech(false, -4, false, -9), 0},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Technical(tt.in))
		})
	}
}

func TestDeliveryTiers(t *testing.T) {
	e := newEngine()
	tests := []struct {
		name string
		in   *model.DeliveryTrend
		want float64
	}{
		{"strong spike high pct", &model.DeliveryTrend{HasSpike: true, SpikeRatio: 3.0, LatestPct: 62}, 3.0},
		{"spike moderate pct", &model.DeliveryTrend{HasSpike: true, SpikeRatio: 2.2, LatestPct: 40}, 2.0},
		{"low threshold spike", &model.DeliveryTrend{HasSpike: true, SpikeRatio: 1.6, LatestPct: 20}, 1.0},
		{"no spike pct only", &model.DeliveryTrend{SpikeRatio: 1.1, LatestPct: 51}, 1.0},
		{"pct at 35 earns nothing", &model.DeliveryTrend{LatestPct: 35}, 0},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Delivery(tt.in))
		})
	}
}

func TestSpikeOfThreeTimesBaselineTakesTopTier(t *testing.T) {
	// quantities 300 (latest), 100, 100, 100
	d := &model.DeliveryTrend{LatestQty: 300, BaselineQty: 100, SpikeRatio: 3.0, HasSpike: true}
	assert.Equal(t, 2.0, newEngine().Delivery(d))
}

func TestScoreIsClamped(t *testing.T) {
	e := newEngine()

	best := e.Score("TCS",
		tech(true, 1, true, 1),
		&model.FundamentalAnalysis{QualityScore: 0.75},
		&model.DeliveryTrend{HasSpike: true, SpikeRatio: 4, LatestPct: 70},
	)
	assert.Equal(t, 5.0, best.TotalScore)
	assert.Equal(t, model.SignalBuy, best.Signal)
	assert.Equal(t, 4.0, best.Breakdown.Technical)
	assert.Equal(t, 1.5, best.Breakdown.Fundamental)
	assert.Equal(t, 3.0, best.Breakdown.Delivery)

	custom := DefaultConfig()
	custom.MinScore = -1
	worst := NewEngine(custom, arbor.NewLogger()).Score("BAD", nil, &model.FundamentalAnalysis{QualityScore: -0.75}, nil)
	assert.Equal(t, -1.0, worst.TotalScore)
	assert.Equal(t, model.SignalAvoid, worst.Signal)
}

func TestScoreAlwaysWithinBounds(t *testing.T) {
	e := newEngine()
	for _, q := range []float64{-1, -0.75, 0, 0.5, 1} {
		for _, d := range []float64{0, 10, 40} {
			for _, ratio := range []float64{0, 2, 5} {
				s := e.Score("X", tech(true, d, true, d),
					&model.FundamentalAnalysis{QualityScore: q},
					&model.DeliveryTrend{HasSpike: ratio > 0, SpikeRatio: ratio, LatestPct: 60})
				assert.GreaterOrEqual(t, s.TotalScore, -5.0)
				assert.LessOrEqual(t, s.TotalScore, 5.0)
			}
		}
	}
}

func TestScoreRecoversFromPanic(t *testing.T) {
	s := newEngine().Score("NAN", nil, &model.FundamentalAnalysis{QualityScore: math.NaN()}, nil)
	assert.Equal(t, model.SignalAvoid, s.Signal)
	assert.Equal(t, 0.0, s.TotalScore)
	assert.Contains(t, s.Error, "NaN")
}
