package analyzer

import (
	"time"

	"alphascreen/pkg/model"
)

// DeliveryConfig holds the spike and trend thresholds
type DeliveryConfig struct {
	SpikeThreshold float64 // latest/baseline ratio that counts as a spike
	TrendBandPct   float64 // half-over-half change needed to call a trend
}

// DefaultDeliveryConfig returns a 2x spike threshold and a 5% trend band
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		SpikeThreshold: 2.0,
		TrendBandPct:   5.0,
	}
}

// DeliverySample is one day's delivery reading for a symbol
type DeliverySample struct {
	Date time.Time
	Qty  float64
	Pct  float64
}

// DeliverySpikeDetector flags unusual delivered quantity against the symbol's own history
type DeliverySpikeDetector struct {
	cfg DeliveryConfig
}

// NewDeliverySpikeDetector creates a detector
func NewDeliverySpikeDetector(cfg DeliveryConfig) *DeliverySpikeDetector {
	def := DefaultDeliveryConfig()
	if cfg.SpikeThreshold <= 0 {
		cfg.SpikeThreshold = def.SpikeThreshold
	}
	if cfg.TrendBandPct <= 0 {
		cfg.TrendBandPct = def.TrendBandPct
	}
	return &DeliverySpikeDetector{cfg: cfg}
}

// Summarize builds the trend summary from samples ordered most recent first.
// Only positive quantities and percentages are used. Returns nil when no positive quantity exists.
// threshold <= 0 uses the configured spike threshold.
func (d *DeliverySpikeDetector) Summarize(symbol string, samples []DeliverySample, lookback int, threshold float64) *model.DeliveryTrend {
	if threshold <= 0 {
		threshold = d.cfg.SpikeThreshold
	}

	var qtys, pcts []float64
	for _, s := range samples {
		if s.Qty > 0 {
			qtys = append(qtys, s.Qty)
		}
		if s.Pct > 0 {
			pcts = append(pcts, s.Pct)
		}
	}
	if len(qtys) == 0 {
		return nil
	}

	latest := qtys[0]
	avg := mean(qtys)
	baseline := avg
	if len(qtys) > 1 {
		baseline = mean(qtys[1:])
	}
	ratio := 1.0
	if baseline > 0 {
		ratio = latest / baseline
	}

	t := &model.DeliveryTrend{
		Symbol:       symbol,
		LatestQty:    latest,
		AvgQty:       avg,
		BaselineQty:  baseline,
		SpikeRatio:   ratio,
		HasSpike:     ratio >= threshold,
		QtyTrend:     ClassifyTrend(reversed(qtys), d.cfg.TrendBandPct),
		PctTrend:     ClassifyTrend(reversed(pcts), d.cfg.TrendBandPct),
		LookbackDays: lookback,
		DataPoints:   len(samples),
	}
	if len(pcts) > 0 {
		t.LatestPct = pcts[0]
		t.AvgPct = mean(pcts)
	}
	return t
}

// ClassifyTrend compares the mean of the second half of chronological values with the first half.
// A change beyond bandPct percent is rising or falling; a non-positive first half is stable.
func ClassifyTrend(values []float64, bandPct float64) string {
	if len(values) < 2 {
		return model.TrendInsufficient
	}
	half := len(values) / 2
	first := mean(values[:half])
	second := mean(values[half:])

	if first <= 0 {
		return model.TrendStable
	}
	change := (second - first) / first * 100
	switch {
	case change > bandPct:
		return model.TrendRising
	case change < -bandPct:
		return model.TrendFalling
	default:
		return model.TrendStable
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func reversed(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[len(values)-1-i] = v
	}
	return out
}
