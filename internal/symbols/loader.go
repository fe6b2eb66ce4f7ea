package symbols

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"alphascreen/internal/ratelimit"
)

const defaultEquityListURL = "https://archives.nseindia.com/content/equities/EQUITY_L.csv"

// ErrNoUniverse means no symbol list could be obtained from any source
var ErrNoUniverse = errors.New("no symbol universe available")

// Cache stores the last fetched universe
type Cache interface {
	LoadUniverse(ctx context.Context) ([]string, time.Time, error)
	SaveUniverse(ctx context.Context, symbols []string) error
}

// LoaderConfig configures the equity list download
type LoaderConfig struct {
	URL      string
	CacheTTL time.Duration
	Timeout  time.Duration
	Limit    int      // 0 keeps every symbol
	Fallback []string // used when neither download nor cache yields symbols
}

// DefaultLoaderConfig returns a 24h cached NSE equity list with the NIFTY 50 as fallback
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		URL:      defaultEquityListURL,
		CacheTTL: 24 * time.Hour,
		Timeout:  15 * time.Second,
		Fallback: Nifty50Symbols,
	}
}

// Loader resolves the symbol universe: fresh cache, then download, then stale cache, then fallback
type Loader struct {
	cfg     LoaderConfig
	cache   Cache
	client  *http.Client
	limiter *ratelimit.Limiter
	logger  arbor.ILogger
	now     func() time.Time
}

// NewLoader creates a new symbol loader. cache and limiter may be nil.
func NewLoader(cfg LoaderConfig, cache Cache, limiter *ratelimit.Limiter, logger arbor.ILogger) *Loader {
	def := DefaultLoaderConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Loader{
		cfg:     cfg,
		cache:   cache,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
}

// Symbols implements the pipeline's universe source
func (l *Loader) Symbols(ctx context.Context) ([]string, error) {
	return l.Load(ctx, false)
}

// Load returns the universe. force skips the fresh-cache check.
func (l *Loader) Load(ctx context.Context, force bool) ([]string, error) {
	cached, updated := l.readCache(ctx)
	if !force && len(cached) > 0 && l.now().Sub(updated) < l.cfg.CacheTTL {
		l.logger.Debug().Int("symbols", len(cached)).Str("age", l.now().Sub(updated).Round(time.Minute).String()).Msg("Universe loaded from cache")
		return l.limit(cached), nil
	}

	fetched, err := l.fetch(ctx)
	if err == nil {
		if l.cache != nil {
			if err := l.cache.SaveUniverse(ctx, fetched); err != nil {
				l.logger.Warn().Err(err).Msg("Failed to cache universe")
			}
		}
		l.logger.Info().Int("symbols", len(fetched)).Msg("Universe downloaded")
		return l.limit(fetched), nil
	}
	l.logger.Warn().Err(err).Msg("Equity list download failed")

	if len(cached) > 0 {
		l.logger.Warn().Int("symbols", len(cached)).Str("updated", updated.Format(time.RFC3339)).Msg("Using stale cached universe")
		return l.limit(cached), nil
	}
	if len(l.cfg.Fallback) > 0 {
		l.logger.Warn().Int("symbols", len(l.cfg.Fallback)).Msg("Using built-in fallback universe")
		return l.limit(append([]string(nil), l.cfg.Fallback...)), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrNoUniverse, err)
}

func (l *Loader) readCache(ctx context.Context) ([]string, time.Time) {
	if l.cache == nil {
		return nil, time.Time{}
	}
	syms, updated, err := l.cache.LoadUniverse(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Universe cache read failed")
		return nil, time.Time{}
	}
	return syms, updated
}

func (l *Loader) limit(syms []string) []string {
	if l.cfg.Limit > 0 && len(syms) > l.cfg.Limit {
		return syms[:l.cfg.Limit]
	}
	return syms
}

func (l *Loader) fetch(ctx context.Context) ([]string, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/csv,*/*")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading equity list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests && l.limiter != nil {
		l.limiter.SignalRateLimited()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading equity list: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading equity list: %w", err)
	}
	return ParseEquityList(body)
}

// ParseEquityList extracts the first column of an EQUITY_L.csv file, skipping the header
func ParseEquityList(data []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing equity list: %w", err)
	}
	if len(records) < 2 {
		return nil, errors.New("equity list is empty")
	}

	var out []string
	for _, rec := range records[1:] {
		if len(rec) == 0 {
			continue
		}
		sym := strings.TrimSpace(rec[0])
		if sym != "" && tradable(sym) {
			out = append(out, sym)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no symbols found in equity list")
	}
	return out, nil
}
