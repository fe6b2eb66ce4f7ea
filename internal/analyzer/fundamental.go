package analyzer

import (
	"fmt"

	"alphascreen/pkg/model"
)

// FundamentalConfig holds the ratio thresholds
type FundamentalConfig struct {
	PELow    float64
	PEHigh   float64
	ROEGood  float64 // percent
	ROEPoor  float64 // percent
	DebtLow  float64
	DebtHigh float64
	PBLow    float64
	PBHigh   float64
}

// DefaultFundamentalConfig returns thresholds tuned for Indian large caps
func DefaultFundamentalConfig() FundamentalConfig {
	return FundamentalConfig{
		PELow:    20,
		PEHigh:   40,
		ROEGood:  15,
		ROEPoor:  0,
		DebtLow:  0.5,
		DebtHigh: 2.0,
		PBLow:    1.5,
		PBHigh:   5.0,
	}
}

// FundamentalAnalyzer rates valuation and balance-sheet ratios
type FundamentalAnalyzer struct {
	cfg FundamentalConfig
}

// NewFundamentalAnalyzer creates a new fundamental analyzer
func NewFundamentalAnalyzer(cfg FundamentalConfig) *FundamentalAnalyzer {
	return &FundamentalAnalyzer{cfg: cfg}
}

// Analyze rates each ratio and averages them into a quality score in [-0.75, 0.75].
// Absent ratios score 0. Returns nil for nil input.
func (a *FundamentalAnalyzer) Analyze(f *model.Fundamentals) *model.FundamentalAnalysis {
	if f == nil {
		return nil
	}

	out := &model.FundamentalAnalysis{
		PE:        a.pe(f.TrailingPE),
		ROE:       a.roe(f.ROE),
		Debt:      a.debt(f.DebtToEquity),
		PB:        a.pb(f.PriceToBook),
		MarketCap: f.MarketCap,
		Sector:    f.Sector,
		Industry:  f.Industry,
	}
	if out.Sector == "" {
		out.Sector = "N/A"
	}
	if out.Industry == "" {
		out.Industry = "N/A"
	}

	q := (out.PE.Score + out.ROE.Score + out.Debt.Score + out.PB.Score) / 4
	out.QualityScore = round2(q)
	out.QualityRating = qualityRating(q)
	return out
}

func notAvailable(v *float64, what string) model.RatioScore {
	return model.RatioScore{Value: v, Rating: "N/A", Message: "No " + what + " available"}
}

func (a *FundamentalAnalyzer) pe(v *float64) model.RatioScore {
	if v == nil || *v <= 0 {
		return notAvailable(v, "P/E ratio")
	}
	switch {
	case *v < a.cfg.PELow:
		return model.RatioScore{Value: v, Rating: "GOOD", Score: 1, Message: fmt.Sprintf("Low P/E ratio (< %g)", a.cfg.PELow)}
	case *v < a.cfg.PEHigh:
		return model.RatioScore{Value: v, Rating: "FAIR", Message: fmt.Sprintf("Moderate P/E ratio (%g-%g)", a.cfg.PELow, a.cfg.PEHigh)}
	default:
		return model.RatioScore{Value: v, Rating: "EXPENSIVE", Score: -1, Message: fmt.Sprintf("High P/E ratio (> %g)", a.cfg.PEHigh)}
	}
}

func (a *FundamentalAnalyzer) roe(v *float64) model.RatioScore {
	if v == nil {
		return notAvailable(v, "ROE")
	}
	switch {
	case *v >= a.cfg.ROEGood:
		return model.RatioScore{Value: v, Rating: "EXCELLENT", Score: 1, Message: fmt.Sprintf("High ROE (>= %g%%)", a.cfg.ROEGood)}
	case *v > a.cfg.ROEPoor:
		return model.RatioScore{Value: v, Rating: "FAIR", Message: fmt.Sprintf("Moderate ROE (%g-%g%%)", a.cfg.ROEPoor, a.cfg.ROEGood)}
	default:
		return model.RatioScore{Value: v, Rating: "POOR", Score: -1, Message: fmt.Sprintf("Low/Negative ROE (<= %g%%)", a.cfg.ROEPoor)}
	}
}

func (a *FundamentalAnalyzer) debt(v *float64) model.RatioScore {
	if v == nil || *v < 0 {
		return notAvailable(v, "debt data")
	}
	switch {
	case *v < a.cfg.DebtLow:
		return model.RatioScore{Value: v, Rating: "LOW", Score: 0.5, Message: fmt.Sprintf("Low debt (< %g)", a.cfg.DebtLow)}
	case *v < a.cfg.DebtHigh:
		return model.RatioScore{Value: v, Rating: "MODERATE", Message: fmt.Sprintf("Moderate debt (%g-%g)", a.cfg.DebtLow, a.cfg.DebtHigh)}
	default:
		return model.RatioScore{Value: v, Rating: "HIGH", Score: -0.5, Message: fmt.Sprintf("High debt (> %g)", a.cfg.DebtHigh)}
	}
}

func (a *FundamentalAnalyzer) pb(v *float64) model.RatioScore {
	if v == nil || *v <= 0 {
		return notAvailable(v, "P/B ratio")
	}
	switch {
	case *v < a.cfg.PBLow:
		return model.RatioScore{Value: v, Rating: "UNDERVALUED", Score: 0.5, Message: fmt.Sprintf("Low P/B ratio (< %g)", a.cfg.PBLow)}
	case *v < a.cfg.PBHigh:
		return model.RatioScore{Value: v, Rating: "FAIR", Message: fmt.Sprintf("Moderate P/B ratio (%g-%g)", a.cfg.PBLow, a.cfg.PBHigh)}
	default:
		return model.RatioScore{Value: v, Rating: "OVERVALUED", Score: -0.5, Message: fmt.Sprintf("High P/B ratio (> %g)", a.cfg.PBHigh)}
	}
}

func qualityRating(score float64) string {
	switch {
	case score >= 0.75:
		return "EXCELLENT"
	case score >= 0.25:
		return "GOOD"
	case score >= -0.25:
		return "FAIR"
	case score >= -0.75:
		return "POOR"
	default:
		return "VERY_POOR"
	}
}
