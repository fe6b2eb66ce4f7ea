package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphascreen/pkg/model"
)

// weekdayBars builds n consecutive weekday bars with closes from price(i)
func weekdayBars(n int, price func(i int) float64) model.PriceSeries {
	out := make(model.PriceSeries, 0, n)
	d := time.Date(2019, 1, 7, 0, 0, 0, 0, time.UTC) // Monday
	for len(out) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			out = append(out, model.Bar{Date: d, Close: price(len(out))})
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}

func TestEMA(t *testing.T) {
	got := EMA([]float64{1, 2, 3}, 3)
	assert.Equal(t, []float64{1, 1.5, 2.25}, got)
	assert.Nil(t, EMA(nil, 3))
}

func TestSlope(t *testing.T) {
	series := []float64{50, 100, 110, 120}
	assert.InDelta(t, 20.0, Slope(series, 3), 1e-9)
	assert.InDelta(t, 140.0, Slope(series, 10), 1e-9, "lookback longer than series uses the whole series")
	assert.Equal(t, 0.0, Slope([]float64{0, 10}, 2))
}

func TestWeeklyCloses(t *testing.T) {
	bars := weekdayBars(10, func(i int) float64 { return float64(i + 1) })
	assert.Equal(t, []float64{5, 10}, WeeklyCloses(bars))

	// a partial week keeps its last available close
	assert.Equal(t, []float64{5, 7}, WeeklyCloses(bars[:7]))
}

func TestAnalyzeSustainedUptrend(t *testing.T) {
	a := NewTechnicalAnalyzer(DefaultTechnicalConfig())
	series := weekdayBars(1400, func(i int) float64 { return 100 + float64(i)*0.5 })

	snap := a.Analyze(series)
	require.NotNil(t, snap)

	assert.Equal(t, 799.5, snap.CurrentPrice)
	assert.True(t, snap.Daily.Valid)
	assert.True(t, snap.Weekly.Valid)
	assert.True(t, snap.Daily.Above)
	assert.True(t, snap.Weekly.Above)
	assert.Equal(t, 2, snap.Alignment)
	assert.Greater(t, snap.Daily.SlopePct, 0.0)
	assert.Greater(t, snap.Weekly.SlopePct, 0.0)
	assert.Equal(t, model.StrengthVeryStrong, snap.TrendStrength)
	assert.Equal(t, model.TrendStrongUptrend, snap.OverallTrend)
	assert.Equal(t, 1400, snap.DataPoints)
	assert.Equal(t, 252, snap.Daily.Span)
	assert.Equal(t, 260, snap.Weekly.Span)
}

func TestAnalyzeDowntrend(t *testing.T) {
	a := NewTechnicalAnalyzer(DefaultTechnicalConfig())
	series := weekdayBars(1400, func(i int) float64 { return 1000 - float64(i)*0.5 })

	snap := a.Analyze(series)
	require.NotNil(t, snap)
	assert.False(t, snap.Daily.Above)
	assert.False(t, snap.Weekly.Above)
	assert.Equal(t, 0, snap.Alignment)
	assert.Less(t, snap.Daily.DiffPct, 0.0)
	assert.Equal(t, model.StrengthDowntrend, snap.TrendStrength)
	assert.Equal(t, model.TrendDowntrend, snap.OverallTrend)
	assert.Equal(t, "FALLING", snap.SlopeTrend)
}

func TestAnalyzeInsufficientWeeklyHistory(t *testing.T) {
	a := NewTechnicalAnalyzer(DefaultTechnicalConfig())
	series := weekdayBars(300, func(i int) float64 { return 100 + float64(i) })

	snap := a.Analyze(series)
	require.NotNil(t, snap)

	assert.True(t, snap.Daily.Valid)
	assert.True(t, snap.Daily.Above)
	assert.False(t, snap.Weekly.Valid)
	assert.Equal(t, 0.0, snap.Weekly.EMA)
	assert.False(t, snap.Weekly.Above)
	assert.Equal(t, 0.0, snap.Weekly.DiffPct)
	assert.Equal(t, 1, snap.Alignment)
	assert.Equal(t, model.StrengthWeak, snap.TrendStrength)
	assert.Equal(t, model.TrendWeakUptrend, snap.OverallTrend)
}

func TestAnalyzeFlatPriceIsNotAbove(t *testing.T) {
	a := NewTechnicalAnalyzer(DefaultTechnicalConfig())
	series := weekdayBars(1400, func(int) float64 { return 250 })

	snap := a.Analyze(series)
	require.NotNil(t, snap)
	assert.Equal(t, 250.0, snap.Daily.EMA)
	assert.False(t, snap.Daily.Above)
	assert.Equal(t, 0.0, snap.Daily.DiffPct)
	assert.Equal(t, "FLAT", snap.SlopeTrend)
}

func TestAnalyzeEmpty(t *testing.T) {
	a := NewTechnicalAnalyzer(DefaultTechnicalConfig())
	assert.Nil(t, a.Analyze(nil))
}
