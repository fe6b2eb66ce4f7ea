package archive

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"alphascreen/internal/analyzer"
	"alphascreen/internal/market"
	"alphascreen/internal/retry"
	"alphascreen/pkg/model"
)

const keyLayout = "20060102"

// Store persists parsed day tables between processes
type Store interface {
	LoadDay(ctx context.Context, date time.Time) (*model.DayTable, error)
	SaveDay(ctx context.Context, table *model.DayTable) error
}

// Config controls warm-up and single-day fetches
type Config struct {
	WarmupDays     int
	WarmupWorkers  int
	LookbackDays   int
	SpikeThreshold float64
	Retry          retry.Policy
}

// DefaultConfig returns a 90 weekday warm-up over 10 workers and a 2 attempt retry
func DefaultConfig() Config {
	return Config{
		WarmupDays:     90,
		WarmupWorkers:  10,
		LookbackDays:   90,
		SpikeThreshold: 2.0,
		Retry: retry.Policy{
			MaxAttempts: 2,
			BaseDelay:   time.Second,
			MaxDelay:    4 * time.Second,
		},
	}
}

// Cache holds parsed archive files keyed by trading date.
// A nil table under a key records that the day is known to be absent.
type Cache struct {
	source   Source
	store    Store
	detector *analyzer.DeliverySpikeDetector
	cfg      Config
	logger   arbor.ILogger
	now      func() time.Time

	// warmMu serializes warm-ups
	warmMu sync.Mutex
	mu     sync.RWMutex
	days   map[string]*model.DayTable
	warmed bool
}

// NewCache creates an archive cache. store may be nil.
func NewCache(source Source, store Store, detector *analyzer.DeliverySpikeDetector, cfg Config, logger arbor.ILogger) *Cache {
	def := DefaultConfig()
	if cfg.WarmupDays < 1 {
		cfg.WarmupDays = def.WarmupDays
	}
	if cfg.WarmupWorkers < 1 {
		cfg.WarmupWorkers = def.WarmupWorkers
	}
	if cfg.LookbackDays < 1 {
		cfg.LookbackDays = def.LookbackDays
	}
	if cfg.SpikeThreshold <= 0 {
		cfg.SpikeThreshold = def.SpikeThreshold
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = def.Retry
	}
	cfg.Retry.Retryable = retryable
	cfg.Retry.OnRetry = func(attempt int, err error) {
		logger.Debug().Int("attempt", attempt).Err(err).Msg("Retrying archive download")
	}

	return &Cache{
		source:   source,
		store:    store,
		detector: detector,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		days:     make(map[string]*model.DayTable),
	}
}

// WithClock replaces the time source used to pick warm-up dates
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Config returns the effective configuration
func (c *Cache) Config() Config {
	return c.cfg
}

func retryable(err error) bool {
	return !errors.Is(err, ErrDayUnavailable) &&
		!errors.Is(err, ErrSchema) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func dayKey(date time.Time) string {
	return date.Format(keyLayout)
}

func (c *Cache) lookup(key string) (*model.DayTable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.days[key]
	return t, ok
}

func (c *Cache) put(key string, t *model.DayTable) {
	c.mu.Lock()
	c.days[key] = t
	c.mu.Unlock()
}

// Day returns the table for date, downloading it on a miss.
// Unavailable and unparseable days are remembered as absent; transport failures are not.
func (c *Cache) Day(ctx context.Context, date time.Time) (*model.DayTable, error) {
	date = market.Midnight(date)
	key := dayKey(date)
	if t, ok := c.lookup(key); ok {
		if t == nil {
			return nil, ErrDayUnavailable
		}
		return t, nil
	}

	t, err := c.load(ctx, date)
	switch {
	case err == nil:
		c.put(key, t)
		return t, nil
	case errors.Is(err, ErrDayUnavailable), errors.Is(err, ErrSchema):
		c.put(key, nil)
	}
	return nil, err
}

func (c *Cache) load(ctx context.Context, date time.Time) (*model.DayTable, error) {
	if c.store != nil {
		t, err := c.store.LoadDay(ctx, date)
		if err != nil {
			c.logger.Warn().Str("date", date.Format("2006-01-02")).Err(err).Msg("Archive store read failed")
		} else if t != nil {
			return t, nil
		}
	}

	raw, err := retry.Value(ctx, c.cfg.Retry, func(ctx context.Context) ([]byte, error) {
		return c.source.Fetch(ctx, date)
	})
	if err != nil {
		return nil, err
	}

	t, err := Parse(date, raw)
	if err != nil {
		return nil, err
	}

	if c.store != nil {
		if err := c.store.SaveDay(ctx, t); err != nil {
			c.logger.Warn().Str("date", date.Format("2006-01-02")).Err(err).Msg("Archive store write failed")
		}
	}
	return t, nil
}

type warmResult struct {
	date time.Time
	ok   bool
	err  error
}

// Warmup loads the most recent days weekday files, starting from yesterday, with a pool of
// maxWorkers goroutines. Missing days are skipped and replaced by earlier weekdays until
// days*3 calendar days have been examined. Returns the number of days cached.
// The cache only reports Warmed once a walk finishes without cancellation or transport failures.
func (c *Cache) Warmup(ctx context.Context, days, maxWorkers int) int {
	c.warmMu.Lock()
	defer c.warmMu.Unlock()
	return c.warmup(ctx, days, maxWorkers)
}

// EnsureWarm runs Warmup unless a complete warm-up already happened.
// Concurrent callers wait for the warm-up in progress rather than starting another.
func (c *Cache) EnsureWarm(ctx context.Context, days, maxWorkers int) int {
	c.warmMu.Lock()
	defer c.warmMu.Unlock()
	if c.Warmed() {
		return 0
	}
	return c.warmup(ctx, days, maxWorkers)
}

func (c *Cache) warmup(ctx context.Context, days, maxWorkers int) int {
	if days < 1 {
		days = c.cfg.WarmupDays
	}
	if maxWorkers < 1 {
		maxWorkers = c.cfg.WarmupWorkers
	}
	start := time.Now()

	walker := market.NewWalker(c.now(), days*3)
	cached, attempted, failed := 0, 0, 0
	exhausted := false
	for cached < days && ctx.Err() == nil {
		want := days - cached
		dates := walker.Take(want)
		if len(dates) < want {
			exhausted = true
		}
		if len(dates) == 0 {
			break
		}
		attempted += len(dates)
		ok, bad := c.warmRound(ctx, dates, maxWorkers)
		cached += ok
		failed += bad
	}

	complete := ctx.Err() == nil && (cached >= days || (exhausted && failed == 0))
	c.mu.Lock()
	c.warmed = complete
	c.mu.Unlock()

	var ev arbor.ILogEvent
	if complete {
		ev = c.logger.Info()
	} else {
		ev = c.logger.Warn()
	}
	ev.Int("cached", cached).
		Int("attempted", attempted).
		Int("failed", failed).
		Int("requested", days).
		Bool("complete", complete).
		Str("elapsed", time.Since(start).Round(time.Millisecond).String()).
		Msg("Archive warm-up finished")
	return cached
}

// warmRound fetches dates over the pool and returns the days cached and the transient failures
func (c *Cache) warmRound(ctx context.Context, dates []time.Time, maxWorkers int) (int, int) {
	jobs := make(chan time.Time, len(dates))
	results := make(chan warmResult, len(dates))
	for _, d := range dates {
		jobs <- d
	}
	close(jobs)

	workers := maxWorkers
	if workers > len(dates) {
		workers = len(dates)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range jobs {
				if ctx.Err() != nil {
					results <- warmResult{date: d, err: ctx.Err()}
					continue
				}
				_, err := c.Day(ctx, d)
				results <- warmResult{date: d, ok: err == nil, err: err}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	ok, failed := 0, 0
	for r := range results {
		if r.ok {
			ok++
			continue
		}
		if errors.Is(r.err, ErrDayUnavailable) || errors.Is(r.err, ErrSchema) {
			continue
		}
		if !errors.Is(r.err, context.Canceled) && !errors.Is(r.err, context.DeadlineExceeded) {
			failed++
		}
		c.logger.Debug().Str("date", r.date.Format("2006-01-02")).Err(r.err).Msg("Archive day not cached")
	}
	return ok, failed
}

// Warmed reports whether the last warm-up completed
func (c *Cache) Warmed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.warmed
}

// DeliveryTrend summarizes symbol over the most recent days cached tables.
// It only reads what is already cached. Returns nil when no usable sample exists.
func (c *Cache) DeliveryTrend(symbol string, days int, spikeThreshold float64) *model.DeliveryTrend {
	if days < 1 {
		days = c.cfg.LookbackDays
	}
	if spikeThreshold <= 0 {
		spikeThreshold = c.cfg.SpikeThreshold
	}

	c.mu.RLock()
	keys := make([]string, 0, len(c.days))
	for k, t := range c.days {
		if t != nil {
			keys = append(keys, k)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if len(keys) > days {
		keys = keys[:days]
	}

	var samples []analyzer.DeliverySample
	for _, k := range keys {
		t := c.days[k]
		if rec, ok := t.Records[symbol]; ok {
			samples = append(samples, analyzer.DeliverySample{
				Date: t.Date,
				Qty:  rec.DeliveryQty,
				Pct:  rec.DeliveryPct,
			})
		}
	}
	c.mu.RUnlock()

	if len(samples) == 0 {
		return nil
	}
	return c.detector.Summarize(symbol, samples, days, spikeThreshold)
}

// Stats describes cache contents
type Stats struct {
	Days   int       `json:"days_cached"`
	Absent int       `json:"days_absent"`
	Warmed bool      `json:"warmed"`
	Newest time.Time `json:"newest,omitempty"`
	Oldest time.Time `json:"oldest,omitempty"`
}

// Stats reports cache contents
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Stats{Warmed: c.warmed}
	for _, t := range c.days {
		if t == nil {
			st.Absent++
			continue
		}
		st.Days++
		if st.Newest.IsZero() || t.Date.After(st.Newest) {
			st.Newest = t.Date
		}
		if st.Oldest.IsZero() || t.Date.Before(st.Oldest) {
			st.Oldest = t.Date
		}
	}
	return st
}

// Clear forgets every cached and absent day
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.days = make(map[string]*model.DayTable)
	c.warmed = false
}
