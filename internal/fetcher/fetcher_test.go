package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"alphascreen/pkg/model"
)

type fakeProvider struct {
	delay       time.Duration
	failSymbols map[string]bool

	fundamentalCalls int32
	priceCalls       int32
	inFlight         int32
	maxInFlight      int32
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) enter() {
	n := atomic.AddInt32(&p.inFlight, 1)
	for {
		m := atomic.LoadInt32(&p.maxInFlight)
		if n <= m || atomic.CompareAndSwapInt32(&p.maxInFlight, m, n) {
			break
		}
	}
	time.Sleep(p.delay)
}

func (p *fakeProvider) leave() { atomic.AddInt32(&p.inFlight, -1) }

func (p *fakeProvider) Fundamentals(_ context.Context, symbol string) (*model.Fundamentals, error) {
	atomic.AddInt32(&p.fundamentalCalls, 1)
	p.enter()
	defer p.leave()
	if p.failSymbols[symbol] {
		return nil, errors.New("upstream unavailable")
	}
	if symbol == "PANIC" {
		panic("decoder exploded")
	}
	return &model.Fundamentals{Symbol: symbol, CompanyName: symbol + " Ltd", TrailingPE: model.Float(18)}, nil
}

func (p *fakeProvider) PriceHistory(_ context.Context, symbol, period, interval string) (model.PriceSeries, error) {
	atomic.AddInt32(&p.priceCalls, 1)
	p.enter()
	defer p.leave()
	if p.failSymbols[symbol] {
		return nil, errors.New("upstream unavailable")
	}
	return model.PriceSeries{
		{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Close: 100},
		{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 101},
	}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestFetcher(p *fakeProvider, maxConcurrent int) *Fetcher {
	return New(p, Config{MaxConcurrent: maxConcurrent, CacheTTL: time.Hour}, arbor.NewLogger())
}

func TestConcurrencyIsBounded(t *testing.T) {
	p := &fakeProvider{delay: 10 * time.Millisecond}
	f := newTestFetcher(p, 3)

	symbols := make([]string, 20)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%02d", i)
	}
	out := f.CompleteBatch(context.Background(), symbols)

	assert.Len(t, out, 20)
	assert.LessOrEqual(t, atomic.LoadInt32(&p.maxInFlight), int32(3))
	assert.Equal(t, int32(20), atomic.LoadInt32(&p.fundamentalCalls))
	assert.Equal(t, int32(20), atomic.LoadInt32(&p.priceCalls))
}

func TestCacheHitSkipsProvider(t *testing.T) {
	p := &fakeProvider{}
	f := newTestFetcher(p, 5)
	ctx := context.Background()

	first := f.Fundamentals(ctx, "TCS")
	second := f.Fundamentals(ctx, "TCS")

	require.NotNil(t, first)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.fundamentalCalls))

	assert.NotNil(t, f.PriceHistory(ctx, "TCS", ""))
	assert.NotNil(t, f.PriceHistory(ctx, "TCS", "5y"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.priceCalls), "default period shares the cache key")

	st := f.CacheStats()
	assert.Equal(t, 1, st.Fundamentals)
	assert.Equal(t, 1, st.Prices)
}

func TestCacheExpiryRefetches(t *testing.T) {
	c := &clock{now: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)}
	p := &fakeProvider{}
	f := newTestFetcher(p, 5).WithClock(c.Now)
	ctx := context.Background()

	f.Fundamentals(ctx, "INFY")
	c.Advance(30 * time.Minute)
	f.Fundamentals(ctx, "INFY")
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.fundamentalCalls))

	c.Advance(31 * time.Minute)
	f.Fundamentals(ctx, "INFY")
	assert.Equal(t, int32(2), atomic.LoadInt32(&p.fundamentalCalls))
}

func TestFailuresReturnNilAndAreNotCached(t *testing.T) {
	p := &fakeProvider{failSymbols: map[string]bool{"BAD": true}}
	f := newTestFetcher(p, 5)
	ctx := context.Background()

	data := f.Complete(ctx, "BAD")
	assert.Nil(t, data.Fundamentals)
	assert.Nil(t, data.Prices)

	f.Fundamentals(ctx, "BAD")
	assert.Equal(t, int32(2), atomic.LoadInt32(&p.fundamentalCalls))
	assert.Equal(t, 0, f.CacheStats().Total)
}

func TestProviderPanicIsContained(t *testing.T) {
	p := &fakeProvider{}
	f := newTestFetcher(p, 1)

	assert.Nil(t, f.Fundamentals(context.Background(), "PANIC"))
	// the semaphore slot must have been released
	assert.NotNil(t, f.Fundamentals(context.Background(), "TCS"))
}

func TestBatchMixesSuccessAndFailure(t *testing.T) {
	p := &fakeProvider{failSymbols: map[string]bool{"BAD": true}}
	f := newTestFetcher(p, 4)

	out := f.FundamentalsBatch(context.Background(), []string{"TCS", "BAD", "INFY"})
	require.Len(t, out, 3)
	assert.NotNil(t, out["TCS"])
	assert.Nil(t, out["BAD"])
	assert.NotNil(t, out["INFY"])

	prices := f.PriceHistoryBatch(context.Background(), []string{"TCS", "BAD"})
	assert.Len(t, prices["TCS"], 2)
	assert.Nil(t, prices["BAD"])

	f.ClearCache()
	assert.Equal(t, 0, f.CacheStats().Total)
}

func TestCancelledContextReturnsNil(t *testing.T) {
	p := &fakeProvider{}
	f := newTestFetcher(p, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// fill the only slot so acquisition must observe the cancelled context
	f.sem <- struct{}{}
	defer func() { <-f.sem }()

	assert.Nil(t, f.Fundamentals(ctx, "TCS"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&p.fundamentalCalls))
}
