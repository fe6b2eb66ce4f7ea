package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphascreen/pkg/model"
)

func samples(qtys ...float64) []DeliverySample {
	out := make([]DeliverySample, len(qtys))
	for i, q := range qtys {
		out[i] = DeliverySample{Qty: q, Pct: 40}
	}
	return out
}

func TestSpikeAgainstBaseline(t *testing.T) {
	d := NewDeliverySpikeDetector(DefaultDeliveryConfig())

	// most recent first: 300 today against a 100 baseline
	trend := d.Summarize("TCS", samples(300, 100, 100, 100), 90, 0)
	require.NotNil(t, trend)
	assert.Equal(t, 300.0, trend.LatestQty)
	assert.Equal(t, 100.0, trend.BaselineQty)
	assert.Equal(t, 3.0, trend.SpikeRatio)
	assert.True(t, trend.HasSpike)
	assert.Equal(t, 150.0, trend.AvgQty)
	assert.Equal(t, 4, trend.DataPoints)
	assert.Equal(t, 90, trend.LookbackDays)
}

func TestSpikeThresholdOverride(t *testing.T) {
	d := NewDeliverySpikeDetector(DefaultDeliveryConfig())
	trend := d.Summarize("TCS", samples(300, 100, 100, 100), 90, 3.5)
	require.NotNil(t, trend)
	assert.False(t, trend.HasSpike)
}

func TestSingleSampleUsesMeanAsBaseline(t *testing.T) {
	d := NewDeliverySpikeDetector(DefaultDeliveryConfig())
	trend := d.Summarize("TCS", samples(500), 90, 0)
	require.NotNil(t, trend)
	assert.Equal(t, 500.0, trend.BaselineQty)
	assert.Equal(t, 1.0, trend.SpikeRatio)
	assert.False(t, trend.HasSpike)
	assert.Equal(t, model.TrendInsufficient, trend.QtyTrend)
}

func TestNonPositiveQuantitiesIgnored(t *testing.T) {
	d := NewDeliverySpikeDetector(DefaultDeliveryConfig())

	assert.Nil(t, d.Summarize("TCS", samples(0, 0), 90, 0))
	assert.Nil(t, d.Summarize("TCS", nil, 90, 0))

	trend := d.Summarize("TCS", samples(0, 200, 100), 90, 0)
	require.NotNil(t, trend)
	assert.Equal(t, 200.0, trend.LatestQty)
	assert.Equal(t, 2.0, trend.SpikeRatio)
	assert.Equal(t, 3, trend.DataPoints)
}

func TestPercentageSummary(t *testing.T) {
	d := NewDeliverySpikeDetector(DefaultDeliveryConfig())
	in := []DeliverySample{
		{Qty: 100, Pct: 45},
		{Qty: 100, Pct: 0},
		{Qty: 100, Pct: 42},
		{Qty: 100, Pct: 40},
	}
	trend := d.Summarize("TCS", in, 90, 0)
	require.NotNil(t, trend)
	assert.Equal(t, 45.0, trend.LatestPct)
	assert.InDelta(t, 42.333, trend.AvgPct, 0.001)
	assert.Equal(t, model.TrendRising, trend.PctTrend)
	assert.Equal(t, model.TrendStable, trend.QtyTrend)
}

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   string
	}{
		{"rising", []float64{40, 42, 45}, model.TrendRising},
		{"falling", []float64{50, 48, 46}, model.TrendFalling},
		{"stable", []float64{40, 41, 40.5}, model.TrendStable},
		{"single", []float64{40}, model.TrendInsufficient},
		{"zero first half", []float64{0, 10}, model.TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyTrend(tt.values, 5))
		})
	}
}
