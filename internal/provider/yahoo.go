package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"alphascreen/internal/ratelimit"
	"alphascreen/internal/retry"
	"alphascreen/pkg/model"
)

const (
	yahooChartURL   = "https://query1.finance.yahoo.com/v8/finance/chart"
	yahooSummaryURL = "https://query2.finance.yahoo.com/v10/finance/quoteSummary"
	yahooQuoteURL   = "https://finance.yahoo.com/quote"

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	summaryModules = "price,summaryDetail,defaultKeyStatistics,financialData,assetProfile"

	// rupees per crore
	crore = 1e7
)

// YahooConfig configures the Yahoo Finance provider
type YahooConfig struct {
	ChartURL   string
	SummaryURL string
	QuoteURL   string
	Suffix     string // exchange suffix appended to every symbol, ".NS" for NSE
	UserAgent  string
	Timeout    time.Duration
	Retry      retry.Policy
}

// DefaultYahooConfig returns production endpoints for NSE listings
func DefaultYahooConfig() YahooConfig {
	return YahooConfig{
		ChartURL:   yahooChartURL,
		SummaryURL: yahooSummaryURL,
		QuoteURL:   yahooQuoteURL,
		Suffix:     ".NS",
		UserAgent:  defaultUserAgent,
		Timeout:    30 * time.Second,
		Retry:      retry.Default(),
	}
}

// YahooProvider implements Provider for Yahoo Finance (unofficial API)
type YahooProvider struct {
	cfg     YahooConfig
	client  *http.Client
	limiter *ratelimit.Limiter
	logger  arbor.ILogger
}

// NewYahooProvider creates a Yahoo provider paced by limiter
func NewYahooProvider(cfg YahooConfig, limiter *ratelimit.Limiter, logger arbor.ILogger) *YahooProvider {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.Retry.Retryable = IsRetryable
	cfg.Retry.OnRetry = func(attempt int, err error) {
		logger.Debug().Int("attempt", attempt).Err(err).Msg("Retrying Yahoo request")
	}
	return &YahooProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
	}
}

// Name returns the provider name
func (p *YahooProvider) Name() string {
	return "yahoo"
}

func (p *YahooProvider) ticker(symbol string) string {
	return url.PathEscape(symbol + p.cfg.Suffix)
}

// get performs one paced GET, retried according to the configured policy
func (p *YahooProvider) get(ctx context.Context, rawURL string) ([]byte, error) {
	return retry.Value(ctx, p.cfg.Retry, func(ctx context.Context) ([]byte, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", p.cfg.UserAgent)
		req.Header.Set("Accept", "application/json,text/html;q=0.9,*/*;q=0.8")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, &ProviderError{Provider: p.Name(), Err: err, Retryable: true}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			p.limiter.SignalRateLimited()
			return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("rate limited"), Retryable: true}
		case resp.StatusCode >= 500:
			return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("status %d", resp.StatusCode), Retryable: true}
		case resp.StatusCode != http.StatusOK:
			return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("status %d", resp.StatusCode), Retryable: false}
		}

		p.limiter.ResetBackoff()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("reading body: %w", err), Retryable: true}
		}
		return body, nil
	})
}

// chartResponse represents the Yahoo chart API response.
// Values are pointers because Yahoo pads non-trading sessions with nulls.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// PriceHistory fetches daily candles for the requested range
func (p *YahooProvider) PriceHistory(ctx context.Context, symbol, period, interval string) (model.PriceSeries, error) {
	q := url.Values{}
	q.Set("range", period)
	q.Set("interval", interval)
	q.Set("includePrePost", "false")
	q.Set("events", "div,splits")
	endpoint := fmt.Sprintf("%s/%s?%s", p.cfg.ChartURL, p.ticker(symbol), q.Encode())

	body, err := p.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var data chartResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decoding chart: %w", err)}
	}
	if data.Chart.Error != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%s", data.Chart.Error.Description)}
	}
	if len(data.Chart.Result) == 0 || len(data.Chart.Result[0].Timestamp) == 0 ||
		len(data.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrNoData}
	}

	result := data.Chart.Result[0]
	quotes := result.Indicators.Quote[0]

	bars := make([]model.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c := at(quotes.Close, i)
		if c == nil {
			continue
		}
		bar := model.Bar{
			Date:  time.Unix(ts, 0).UTC(),
			Close: *c,
			Open:  valueOr(at(quotes.Open, i), *c),
			High:  valueOr(at(quotes.High, i), *c),
			Low:   valueOr(at(quotes.Low, i), *c),
		}
		if i < len(quotes.Volume) && quotes.Volume[i] != nil {
			bar.Volume = *quotes.Volume[i]
		}
		bars = append(bars, bar)
	}

	series := model.NormalizeSeries(bars)
	if len(series) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrNoData}
	}
	return series, nil
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// rawValue is Yahoo's {"raw": 1.2, "fmt": "1.20"} number wrapper
type rawValue struct {
	Raw *float64 `json:"raw"`
}

type summaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			Price struct {
				LongName           string   `json:"longName"`
				ShortName          string   `json:"shortName"`
				MarketCap          rawValue `json:"marketCap"`
				RegularMarketPrice rawValue `json:"regularMarketPrice"`
			} `json:"price"`
			SummaryDetail struct {
				TrailingPE rawValue `json:"trailingPE"`
				ForwardPE  rawValue `json:"forwardPE"`
				Beta       rawValue `json:"beta"`
			} `json:"summaryDetail"`
			DefaultKeyStatistics struct {
				PriceToBook rawValue `json:"priceToBook"`
				ForwardPE   rawValue `json:"forwardPE"`
			} `json:"defaultKeyStatistics"`
			FinancialData struct {
				CurrentPrice   rawValue `json:"currentPrice"`
				ReturnOnEquity rawValue `json:"returnOnEquity"`
				DebtToEquity   rawValue `json:"debtToEquity"`
			} `json:"financialData"`
			AssetProfile struct {
				Sector   string `json:"sector"`
				Industry string `json:"industry"`
			} `json:"assetProfile"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

// Fundamentals fetches the quote summary, falling back to the key-statistics page
// when the JSON endpoint refuses the request.
func (p *YahooProvider) Fundamentals(ctx context.Context, symbol string) (*model.Fundamentals, error) {
	f, err := p.summary(ctx, symbol)
	if err == nil {
		return f, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	p.logger.Debug().Str("symbol", symbol).Err(err).Msg("Quote summary failed, trying key statistics page")
	f, herr := p.keyStatistics(ctx, symbol)
	if herr != nil {
		return nil, fmt.Errorf("%w (key statistics fallback: %v)", err, herr)
	}
	return f, nil
}

func (p *YahooProvider) summary(ctx context.Context, symbol string) (*model.Fundamentals, error) {
	endpoint := fmt.Sprintf("%s/%s?modules=%s", p.cfg.SummaryURL, p.ticker(symbol), url.QueryEscape(summaryModules))
	body, err := p.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var data summaryResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decoding quote summary: %w", err)}
	}
	if data.QuoteSummary.Error != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%s", data.QuoteSummary.Error.Description)}
	}
	if len(data.QuoteSummary.Result) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrNoData}
	}
	r := data.QuoteSummary.Result[0]

	f := &model.Fundamentals{
		Symbol:       symbol,
		CompanyName:  firstNonEmpty(r.Price.LongName, r.Price.ShortName, symbol),
		Sector:       firstNonEmpty(r.AssetProfile.Sector, "N/A"),
		Industry:     firstNonEmpty(r.AssetProfile.Industry, "N/A"),
		MarketCap:    scaled(r.Price.MarketCap.Raw, 1/crore),
		TrailingPE:   r.SummaryDetail.TrailingPE.Raw,
		ForwardPE:    firstPresent(r.SummaryDetail.ForwardPE.Raw, r.DefaultKeyStatistics.ForwardPE.Raw),
		PriceToBook:  r.DefaultKeyStatistics.PriceToBook.Raw,
		ROE:          scaled(r.FinancialData.ReturnOnEquity.Raw, 100),
		DebtToEquity: scaled(r.FinancialData.DebtToEquity.Raw, 0.01),
		Beta:         r.SummaryDetail.Beta.Raw,
		CurrentPrice: firstPresent(r.FinancialData.CurrentPrice.Raw, r.Price.RegularMarketPrice.Raw),
	}
	return f, nil
}

func scaled(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	return model.Float(*v * factor)
}

func firstPresent(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
