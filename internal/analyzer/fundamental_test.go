package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphascreen/pkg/model"
)

func TestFundamentalBestCase(t *testing.T) {
	a := NewFundamentalAnalyzer(DefaultFundamentalConfig())
	got := a.Analyze(&model.Fundamentals{
		Symbol:       "ITC",
		Sector:       "Consumer Defensive",
		TrailingPE:   model.Float(15),
		ROE:          model.Float(25),
		DebtToEquity: model.Float(0.3),
		PriceToBook:  model.Float(1.2),
	})
	require.NotNil(t, got)

	assert.Equal(t, 1.0, got.PE.Score)
	assert.Equal(t, "GOOD", got.PE.Rating)
	assert.Equal(t, 1.0, got.ROE.Score)
	assert.Equal(t, 0.5, got.Debt.Score)
	assert.Equal(t, 0.5, got.PB.Score)
	assert.Equal(t, 0.75, got.QualityScore)
	assert.Equal(t, "EXCELLENT", got.QualityRating)
	assert.Equal(t, "Consumer Defensive", got.Sector)
	assert.Equal(t, "N/A", got.Industry)
}

func TestFundamentalWorstCase(t *testing.T) {
	a := NewFundamentalAnalyzer(DefaultFundamentalConfig())
	got := a.Analyze(&model.Fundamentals{
		TrailingPE:   model.Float(55),
		ROE:          model.Float(-3),
		DebtToEquity: model.Float(2.5),
		PriceToBook:  model.Float(8),
	})
	require.NotNil(t, got)
	assert.Equal(t, -0.75, got.QualityScore)
	assert.Equal(t, "POOR", got.QualityRating)
	assert.Equal(t, "EXPENSIVE", got.PE.Rating)
	assert.Equal(t, "OVERVALUED", got.PB.Rating)
}

func TestFundamentalMissingFieldsAreNeutral(t *testing.T) {
	a := NewFundamentalAnalyzer(DefaultFundamentalConfig())
	got := a.Analyze(&model.Fundamentals{
		TrailingPE:   model.Float(-12),
		DebtToEquity: model.Float(-1),
	})
	require.NotNil(t, got)

	for _, r := range []model.RatioScore{got.PE, got.ROE, got.Debt, got.PB} {
		assert.Equal(t, "N/A", r.Rating)
		assert.Equal(t, 0.0, r.Score)
	}
	assert.Equal(t, 0.0, got.QualityScore)
	assert.Equal(t, "FAIR", got.QualityRating)
}

func TestFundamentalBoundaries(t *testing.T) {
	a := NewFundamentalAnalyzer(DefaultFundamentalConfig())
	tests := []struct {
		name string
		in   model.Fundamentals
		pick func(*model.FundamentalAnalysis) model.RatioScore
		want float64
	}{
		{"pe at low is fair", model.Fundamentals{TrailingPE: model.Float(20)}, func(f *model.FundamentalAnalysis) model.RatioScore { return f.PE }, 0},
		{"pe at high is expensive", model.Fundamentals{TrailingPE: model.Float(40)}, func(f *model.FundamentalAnalysis) model.RatioScore { return f.PE }, -1},
		{"roe at good is excellent", model.Fundamentals{ROE: model.Float(15)}, func(f *model.FundamentalAnalysis) model.RatioScore { return f.ROE }, 1},
		{"roe at poor is poor", model.Fundamentals{ROE: model.Float(0)}, func(f *model.FundamentalAnalysis) model.RatioScore { return f.ROE }, -1},
		{"zero debt is low", model.Fundamentals{DebtToEquity: model.Float(0)}, func(f *model.FundamentalAnalysis) model.RatioScore { return f.Debt }, 0.5},
		{"debt at high is high", model.Fundamentals{DebtToEquity: model.Float(2)}, func(f *model.FundamentalAnalysis) model.RatioScore { return f.Debt }, -0.5},
		{"pb at low is fair", model.Fundamentals{PriceToBook: model.Float(1.5)}, func(f *model.FundamentalAnalysis) model.RatioScore { return f.PB }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			assert.Equal(t, tt.want, tt.pick(a.Analyze(&in)).Score)
		})
	}
}

func TestFundamentalNil(t *testing.T) {
	assert.Nil(t, NewFundamentalAnalyzer(DefaultFundamentalConfig()).Analyze(nil))
}
