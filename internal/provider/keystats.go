package provider

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"alphascreen/pkg/model"
)

// keyStatistics scrapes the quote key-statistics page.
// Only the ratios the analyzers use are extracted; sector and industry are not on this page.
func (p *YahooProvider) keyStatistics(ctx context.Context, symbol string) (*model.Fundamentals, error) {
	endpoint := fmt.Sprintf("%s/%s/key-statistics/", p.cfg.QuoteURL, p.ticker(symbol))
	body, err := p.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("parsing HTML: %w", err)}
	}

	stats := extractKeyStatistics(doc)
	if len(stats) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrNoData}
	}

	f := &model.Fundamentals{
		Symbol:      symbol,
		CompanyName: symbol,
		Sector:      "N/A",
		Industry:    "N/A",
	}
	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		// "Reliance Industries Limited (RELIANCE.NS)"
		if i := strings.LastIndex(title, " ("); i > 0 {
			title = title[:i]
		}
		f.CompanyName = title
	}

	for label, raw := range stats {
		switch {
		case strings.HasPrefix(label, "market cap"):
			f.MarketCap = scaled(parseStatNumber(raw), 1/crore)
		case strings.HasPrefix(label, "trailing p/e"):
			f.TrailingPE = parseStatNumber(raw)
		case strings.HasPrefix(label, "forward p/e"):
			f.ForwardPE = parseStatNumber(raw)
		case strings.HasPrefix(label, "price/book"):
			f.PriceToBook = parseStatNumber(raw)
		case strings.HasPrefix(label, "return on equity"):
			f.ROE = parseStatNumber(raw)
		case strings.HasPrefix(label, "total debt/equity"):
			// reported as a percentage on this page
			f.DebtToEquity = scaled(parseStatNumber(raw), 0.01)
		case strings.HasPrefix(label, "beta"):
			f.Beta = parseStatNumber(raw)
		}
	}
	return f, nil
}

// extractKeyStatistics maps lower-cased row labels to their first value cell
func extractKeyStatistics(doc *goquery.Document) map[string]string {
	stats := make(map[string]string)
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		label := strings.ToLower(strings.TrimSpace(cells.First().Text()))
		value := strings.TrimSpace(cells.Eq(1).Text())
		if label == "" || value == "" {
			return
		}
		if _, seen := stats[label]; !seen {
			stats[label] = value
		}
	})
	return stats
}

var statSuffixes = map[byte]float64{
	'k': 1e3,
	'M': 1e6,
	'B': 1e9,
	'T': 1e12,
}

// parseStatNumber parses values such as "23.45", "1,234.5", "17.83%" or "19.2T".
// Placeholders like "N/A" or "--" yield nil.
func parseStatNumber(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.TrimSuffix(s, "%")
	if s == "" || s == "N/A" || s == "--" {
		return nil
	}

	mult := 1.0
	if m, ok := statSuffixes[s[len(s)-1]]; ok {
		mult = m
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return model.Float(v * mult)
}
