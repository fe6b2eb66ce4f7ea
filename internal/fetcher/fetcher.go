package fetcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"alphascreen/internal/cache"
	"alphascreen/internal/common"
	"alphascreen/internal/provider"
	"alphascreen/pkg/model"
)

const keySep = "|"

// Config controls concurrency and caching of remote calls
type Config struct {
	MaxConcurrent int
	CacheTTL      time.Duration
	Period        string // default history range, e.g. "5y"
	Interval      string // bar interval, e.g. "1d"
}

// DefaultConfig returns the fetcher defaults
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 50,
		CacheTTL:      time.Hour,
		Period:        "5y",
		Interval:      "1d",
	}
}

// Fetcher retrieves per-symbol data from a Provider with bounded concurrency and a TTL cache.
// Failures are logged and surface as nil results, never as errors.
type Fetcher struct {
	provider     provider.Provider
	cfg          Config
	sem          chan struct{}
	fundamentals *cache.TTL[*model.Fundamentals]
	prices       *cache.TTL[model.PriceSeries]
	logger       arbor.ILogger
}

// New creates a fetcher around p
func New(p provider.Provider, cfg Config, logger arbor.ILogger) *Fetcher {
	def := DefaultConfig()
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.Period == "" {
		cfg.Period = def.Period
	}
	if cfg.Interval == "" {
		cfg.Interval = def.Interval
	}
	return &Fetcher{
		provider:     p,
		cfg:          cfg,
		sem:          make(chan struct{}, cfg.MaxConcurrent),
		fundamentals: cache.New[*model.Fundamentals](cfg.CacheTTL),
		prices:       cache.New[model.PriceSeries](cfg.CacheTTL),
		logger:       logger,
	}
}

// WithClock replaces the cache time source
func (f *Fetcher) WithClock(now func() time.Time) *Fetcher {
	f.fundamentals.WithClock(now)
	f.prices.WithClock(now)
	return f
}

// Concurrency returns the maximum number of in-flight provider calls
func (f *Fetcher) Concurrency() int {
	return f.cfg.MaxConcurrent
}

func cacheKey(parts ...string) string {
	return strings.Join(parts, keySep)
}

type outcome[T any] struct {
	value T
	err   error
}

// call runs op on its own goroutine while holding a semaphore slot.
// The slot is held until op returns even if the caller stops waiting.
func call[T any](ctx context.Context, f *Fetcher, op func(context.Context) (T, error)) (T, error) {
	var zero T
	select {
	case f.sem <- struct{}{}:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	done := make(chan outcome[T], 1)
	go func() {
		defer func() { <-f.sem }()
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: common.Recovered(r)}
			}
		}()
		v, err := op(ctx)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Fundamentals returns the fundamentals snapshot for symbol, or nil when unavailable
func (f *Fetcher) Fundamentals(ctx context.Context, symbol string) *model.Fundamentals {
	key := cacheKey("fundamentals", symbol)
	if v, ok := f.fundamentals.Get(key); ok {
		return v
	}

	v, err := call(ctx, f, func(ctx context.Context) (*model.Fundamentals, error) {
		return f.provider.Fundamentals(ctx, symbol)
	})
	if err != nil || v == nil {
		f.logFailure("fundamentals", symbol, err)
		return nil
	}
	f.fundamentals.Put(key, v)
	return v
}

// PriceHistory returns bars for symbol over period ("" uses the configured default), or nil when unavailable
func (f *Fetcher) PriceHistory(ctx context.Context, symbol, period string) model.PriceSeries {
	if period == "" {
		period = f.cfg.Period
	}
	key := cacheKey("price", symbol, period, f.cfg.Interval)
	if v, ok := f.prices.Get(key); ok {
		return v
	}

	v, err := call(ctx, f, func(ctx context.Context) (model.PriceSeries, error) {
		return f.provider.PriceHistory(ctx, symbol, period, f.cfg.Interval)
	})
	if err != nil || len(v) == 0 {
		f.logFailure("price history", symbol, err)
		return nil
	}
	f.prices.Put(key, v)
	return v
}

func (f *Fetcher) logFailure(kind, symbol string, err error) {
	if err == nil {
		err = provider.ErrNoData
	}
	f.logger.Warn().Str("symbol", symbol).Str("kind", kind).Err(err).Msg("Remote fetch failed")
}

// Complete fetches fundamentals and price history concurrently
func (f *Fetcher) Complete(ctx context.Context, symbol string) model.CompleteData {
	data := model.CompleteData{Symbol: symbol}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		data.Fundamentals = f.Fundamentals(ctx, symbol)
	}()
	go func() {
		defer wg.Done()
		data.Prices = f.PriceHistory(ctx, symbol, "")
	}()
	wg.Wait()

	return data
}

// batch runs fn for every symbol concurrently; the semaphore inside fn bounds the provider calls
func batch[T any](ctx context.Context, symbols []string, fn func(context.Context, string) T) map[string]T {
	out := make(map[string]T, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			v := fn(ctx, sym)
			mu.Lock()
			out[sym] = v
			mu.Unlock()
		}(sym)
	}
	wg.Wait()
	return out
}

// FundamentalsBatch fetches fundamentals for every symbol; failures map to nil
func (f *Fetcher) FundamentalsBatch(ctx context.Context, symbols []string) map[string]*model.Fundamentals {
	return batch(ctx, symbols, f.Fundamentals)
}

// PriceHistoryBatch fetches the default price history for every symbol; failures map to nil
func (f *Fetcher) PriceHistoryBatch(ctx context.Context, symbols []string) map[string]model.PriceSeries {
	return batch(ctx, symbols, func(ctx context.Context, sym string) model.PriceSeries {
		return f.PriceHistory(ctx, sym, "")
	})
}

// CompleteBatch fetches complete data for every symbol
func (f *Fetcher) CompleteBatch(ctx context.Context, symbols []string) map[string]model.CompleteData {
	return batch(ctx, symbols, f.Complete)
}

// ClearCache drops all cached responses
func (f *Fetcher) ClearCache() {
	f.fundamentals.Clear()
	f.prices.Clear()
	f.logger.Info().Msg("Fetcher cache cleared")
}

// CacheStats describes the fetcher cache
type CacheStats struct {
	Total        int   `json:"total_entries"`
	Fundamentals int   `json:"fundamentals_cached"`
	Prices       int   `json:"price_data_cached"`
	Fresh        int   `json:"fresh_entries"`
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
}

// CacheStats reports cache contents
func (f *Fetcher) CacheStats() CacheStats {
	fs := f.fundamentals.Stats(keySep)
	ps := f.prices.Stats(keySep)
	return CacheStats{
		Total:        fs.Total + ps.Total,
		Fundamentals: fs.Total,
		Prices:       ps.Total,
		Fresh:        fs.Fresh + ps.Fresh,
		Hits:         fs.Hits + ps.Hits,
		Misses:       fs.Misses + ps.Misses,
	}
}

func (s CacheStats) String() string {
	return fmt.Sprintf("%d entries (%d fundamentals, %d price), %d hits / %d misses",
		s.Total, s.Fundamentals, s.Prices, s.Hits, s.Misses)
}
