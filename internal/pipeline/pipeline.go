package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"alphascreen/internal/analyzer"
	"alphascreen/internal/archive"
	"alphascreen/internal/common"
	"alphascreen/internal/fetcher"
	"alphascreen/internal/scoring"
	"alphascreen/internal/symbols"
	"alphascreen/pkg/model"
)

// ErrInsufficientData means a symbol lacked fundamentals, prices or a usable technical reading
var ErrInsufficientData = errors.New("insufficient data")

// ErrInvalidSymbol means a symbol was empty after sanitizing
var ErrInvalidSymbol = errors.New("invalid symbol")

// DataSource supplies per-symbol remote data
type DataSource interface {
	Complete(ctx context.Context, symbol string) model.CompleteData
	Concurrency() int
	ClearCache()
	CacheStats() fetcher.CacheStats
}

// DeliverySource supplies delivery trends from the settlement archive
type DeliverySource interface {
	// EnsureWarm loads the archive once; concurrent callers share a single warm-up
	EnsureWarm(ctx context.Context, days, maxWorkers int) int
	DeliveryTrend(symbol string, days int, spikeThreshold float64) *model.DeliveryTrend
	Stats() archive.Stats
	Clear()
}

// Universe supplies the symbols to screen
type Universe interface {
	Symbols(ctx context.Context) ([]string, error)
}

// ProgressCallback is called after each symbol finishes
type ProgressCallback func(done, total int)

// Config controls batching and delivery lookups
type Config struct {
	BatchSize      int // 0 uses the fetcher concurrency
	UseDelivery    bool
	LookbackDays   int
	SpikeThreshold float64
	WarmupDays     int
	WarmupWorkers  int
}

// DefaultConfig returns a 90 day delivery lookback with a 2x spike threshold
func DefaultConfig() Config {
	return Config{
		UseDelivery:    true,
		LookbackDays:   90,
		SpikeThreshold: 2.0,
		WarmupDays:     90,
		WarmupWorkers:  10,
	}
}

// Pipeline drives a universe through fetch, analysis and scoring
type Pipeline struct {
	cfg         Config
	data        DataSource
	delivery    DeliverySource
	technical   *analyzer.TechnicalAnalyzer
	fundamental *analyzer.FundamentalAnalyzer
	engine      *scoring.Engine
	logger      arbor.ILogger
	progress    ProgressCallback
	now         func() time.Time

	mu      sync.Mutex
	runID   string
	results []model.Result
	failed  []string
	sorted  []model.Result
	dirty   bool
}

// New creates a pipeline. delivery may be nil, which disables delivery scoring.
func New(cfg Config, data DataSource, delivery DeliverySource, technical *analyzer.TechnicalAnalyzer,
	fundamental *analyzer.FundamentalAnalyzer, engine *scoring.Engine, logger arbor.ILogger) *Pipeline {
	def := DefaultConfig()
	if cfg.LookbackDays < 1 {
		cfg.LookbackDays = def.LookbackDays
	}
	if cfg.SpikeThreshold <= 0 {
		cfg.SpikeThreshold = def.SpikeThreshold
	}
	if cfg.WarmupDays < 1 {
		cfg.WarmupDays = def.WarmupDays
	}
	if cfg.WarmupWorkers < 1 {
		cfg.WarmupWorkers = def.WarmupWorkers
	}
	return &Pipeline{
		cfg:         cfg,
		data:        data,
		delivery:    delivery,
		technical:   technical,
		fundamental: fundamental,
		engine:      engine,
		logger:      logger,
		now:         time.Now,
	}
}

// SetProgressCallback sets the progress callback function
func (p *Pipeline) SetProgressCallback(fn ProgressCallback) {
	p.progress = fn
}

func (p *Pipeline) batchSize() int {
	if p.cfg.BatchSize > 0 {
		return p.cfg.BatchSize
	}
	if n := p.data.Concurrency(); n > 0 {
		return n
	}
	return 1
}

func (p *Pipeline) deliveryEnabled() bool {
	return p.cfg.UseDelivery && p.delivery != nil
}

// RunUniverse screens every symbol the universe yields.
// A universe failure is logged and produces an empty report.
func (p *Pipeline) RunUniverse(ctx context.Context, u Universe) (*model.RunReport, error) {
	syms, err := u.Symbols(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to load symbol universe")
		return p.Run(ctx, nil)
	}
	return p.Run(ctx, syms)
}

// Run screens symbols in sequential batches and replaces any previous results.
// Cancelling ctx stops new batches; the report then holds what completed and ctx.Err() is returned.
func (p *Pipeline) Run(ctx context.Context, syms []string) (*model.RunReport, error) {
	start := time.Now()
	runID := uuid.New().String()

	clean, rejected := symbols.Clean(syms)

	p.mu.Lock()
	p.runID = runID
	p.results = nil
	p.failed = append([]string(nil), rejected...)
	p.invalidate()
	p.mu.Unlock()

	logger := p.logger.WithCorrelationId(runID)
	logger.Info().Int("symbols", len(clean)).Int("rejected", len(rejected)).Int("batch_size", p.batchSize()).Msg("Starting screen")

	if len(clean) > 0 && p.deliveryEnabled() {
		if cached := p.delivery.EnsureWarm(ctx, p.cfg.WarmupDays, p.cfg.WarmupWorkers); cached > 0 {
			logger.Info().Int("days", cached).Msg("Delivery archive warmed")
		}
	}

	var done int64
	size := p.batchSize()
	batches := (len(clean) + size - 1) / size

	var runErr error
	for i := 0; i < len(clean); i += size {
		if err := ctx.Err(); err != nil {
			logger.Warn().Int("remaining", len(clean)-i).Msg("Screen cancelled, not starting further batches")
			runErr = err
			break
		}
		end := i + size
		if end > len(clean) {
			end = len(clean)
		}
		logger.Debug().Int("batch", i/size+1).Int("of", batches).Msg("Processing batch")

		results, failed := p.runBatch(ctx, clean[i:end], &done, len(clean))

		p.mu.Lock()
		p.results = append(p.results, results...)
		p.failed = append(p.failed, failed...)
		p.invalidate()
		p.mu.Unlock()
	}

	report := p.Report()
	logger.Info().
		Int("analyzed", report.Summary.Total).
		Int("failed", report.Summary.Failed).
		Int("buy", report.Summary.Buy).
		Str("elapsed", time.Since(start).Round(time.Millisecond).String()).
		Msg("Screen complete")
	return report, runErr
}

// runBatch analyzes every symbol concurrently; one task failing never affects its siblings
func (p *Pipeline) runBatch(ctx context.Context, batch []string, done *int64, total int) ([]model.Result, []string) {
	type outcome struct {
		result *model.Result
		err    error
	}
	outcomes := make([]outcome, len(batch))

	var wg sync.WaitGroup
	for i, sym := range batch {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = outcome{err: common.Recovered(r)}
				}
				n := atomic.AddInt64(done, 1)
				if p.progress != nil {
					p.progress(int(n), total)
				}
			}()
			res, err := p.analyze(ctx, sym)
			outcomes[i] = outcome{result: res, err: err}
		}(i, sym)
	}
	wg.Wait()

	var (
		results []model.Result
		failed  []string
	)
	for i, o := range outcomes {
		if o.err != nil || o.result == nil {
			if o.err != nil && !errors.Is(o.err, ErrInsufficientData) {
				p.logger.Warn().Str("symbol", batch[i]).Err(o.err).Msg("Symbol analysis failed")
			}
			failed = append(failed, batch[i])
			continue
		}
		results = append(results, *o.result)
	}
	return results, failed
}

// AnalyzeOne screens a single symbol without touching stored results
func (p *Pipeline) AnalyzeOne(ctx context.Context, symbol string) (*model.Result, error) {
	sym := symbols.Sanitize(symbol)
	if sym == "" {
		return nil, fmt.Errorf("%w %q", ErrInvalidSymbol, symbol)
	}
	if p.deliveryEnabled() {
		p.delivery.EnsureWarm(ctx, p.cfg.WarmupDays, p.cfg.WarmupWorkers)
	}
	return p.analyze(ctx, sym)
}

func (p *Pipeline) analyze(ctx context.Context, sym string) (*model.Result, error) {
	data := p.data.Complete(ctx, sym)
	if data.Fundamentals == nil || len(data.Prices) == 0 {
		return nil, fmt.Errorf("%s: %w", sym, ErrInsufficientData)
	}

	tech := p.technical.Analyze(data.Prices)
	if tech == nil {
		return nil, fmt.Errorf("%s: technical analysis: %w", sym, ErrInsufficientData)
	}
	fund := p.fundamental.Analyze(data.Fundamentals)

	var delivery *model.DeliveryTrend
	if p.deliveryEnabled() {
		delivery = p.delivery.DeliveryTrend(sym, p.cfg.LookbackDays, p.cfg.SpikeThreshold)
	}

	score := p.engine.Score(sym, tech, fund, delivery)
	res := assemble(sym, data.Fundamentals, tech, fund, delivery, score)
	res.Timestamp = p.now()
	return &res, nil
}

func assemble(sym string, f *model.Fundamentals, t *model.Technical, fa *model.FundamentalAnalysis,
	d *model.DeliveryTrend, s model.Score) model.Result {
	res := model.Result{
		Symbol:    sym,
		Company:   f.CompanyName,
		Sector:    f.Sector,
		Industry:  f.Industry,
		MarketCap: model.Deref(f.MarketCap),

		CurrentPrice:   t.CurrentPrice,
		DailyEMA:       t.Daily.EMA,
		WeeklyEMA:      t.Weekly.EMA,
		AboveDaily:     t.Daily.Above,
		AboveWeekly:    t.Weekly.Above,
		DailyDiffPct:   t.Daily.DiffPct,
		WeeklyDiffPct:  t.Weekly.DiffPct,
		DailySlopePct:  t.Daily.SlopePct,
		WeeklySlopePct: t.Weekly.SlopePct,
		Alignment:      t.Alignment,
		TrendStrength:  t.TrendStrength,
		OverallTrend:   t.OverallTrend,

		PE:           model.Deref(f.TrailingPE),
		ROE:          model.Deref(f.ROE),
		DebtToEquity: model.Deref(f.DebtToEquity),
		PB:           model.Deref(f.PriceToBook),

		DeliveryTrend: "N/A",

		TechnicalScore:   s.Breakdown.Technical,
		FundamentalScore: s.Breakdown.Fundamental,
		DeliveryScore:    s.Breakdown.Delivery,
		TotalScore:       s.TotalScore,
		Signal:           s.Signal,
	}
	if res.Company == "" {
		res.Company = sym
	}
	if res.Sector == "" {
		res.Sector = "N/A"
	}
	if res.Industry == "" {
		res.Industry = "N/A"
	}
	if fa != nil {
		res.QualityScore = fa.QualityScore
	}
	if d != nil {
		res.DeliveryQty = d.LatestQty
		res.DeliveryQtyAvg = d.AvgQty
		res.DeliveryBaseline = d.BaselineQty
		res.LookbackDays = d.LookbackDays
		res.DataPoints = d.DataPoints
		res.DeliverySpike = d.HasSpike
		res.SpikeRatio = d.SpikeRatio
		res.DeliveryPct = d.LatestPct
		res.DeliveryTrend = d.QtyTrend
	}
	return res
}

// invalidate marks the sorted view stale. Caller holds p.mu.
func (p *Pipeline) invalidate() {
	p.dirty = true
}

// view returns the results sorted by score, recomputing only when stale. Caller holds p.mu.
func (p *Pipeline) view() []model.Result {
	if p.dirty || p.sorted == nil {
		sorted := make([]model.Result, len(p.results))
		copy(sorted, p.results)
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].TotalScore != sorted[j].TotalScore {
				return sorted[i].TotalScore > sorted[j].TotalScore
			}
			return sorted[i].Symbol < sorted[j].Symbol
		})
		p.sorted = sorted
		p.dirty = false
	}
	return p.sorted
}

// Results returns a copy of the current results sorted by score, highest first
func (p *Pipeline) Results() []model.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Result(nil), p.view()...)
}

// Failed returns the symbols that could not be analyzed in the last run
func (p *Pipeline) Failed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.failed...)
}

func (p *Pipeline) filter(keep func(model.Result) bool, limit int) []model.Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []model.Result
	for _, r := range p.view() {
		if !keep(r) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// TopBuys returns up to n BUY results, highest score first
func (p *Pipeline) TopBuys(n int) []model.Result {
	return p.filter(func(r model.Result) bool { return r.Signal == model.SignalBuy }, n)
}

// BySignal returns every result with the given signal
func (p *Pipeline) BySignal(sig model.Signal) []model.Result {
	return p.filter(func(r model.Result) bool { return r.Signal == sig }, 0)
}

// BySector returns every result in sector
func (p *Pipeline) BySector(sector string) []model.Result {
	return p.filter(func(r model.Result) bool { return r.Sector == sector }, 0)
}

// Summary aggregates the current results
func (p *Pipeline) Summary() model.Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary()
}

func (p *Pipeline) summary() model.Summary {
	results := p.view()
	s := model.Summary{
		RunID:     p.runID,
		Total:     len(results),
		Failed:    len(p.failed),
		Timestamp: p.now(),
	}
	if len(results) == 0 {
		return s
	}

	sectors := make(map[string]bool)
	total := 0.0
	s.TopScore = math.Inf(-1)
	for _, r := range results {
		switch r.Signal {
		case model.SignalBuy:
			s.Buy++
		case model.SignalHold:
			s.Hold++
		default:
			s.Avoid++
		}
		total += r.TotalScore
		s.TopScore = math.Max(s.TopScore, r.TotalScore)
		sectors[r.Sector] = true
	}
	s.AvgScore = math.Round(total/float64(len(results))*100) / 100
	s.TopScore = math.Round(s.TopScore*100) / 100
	s.Sectors = len(sectors)
	return s
}

// Report returns the summary, sorted results and failed list together
func (p *Pipeline) Report() *model.RunReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &model.RunReport{
		Summary: p.summary(),
		Results: append([]model.Result(nil), p.view()...),
		Failed:  append([]string(nil), p.failed...),
	}
}

// CacheStats describes every cache the pipeline reads through
type CacheStats struct {
	Fetcher      fetcher.CacheStats `json:"fetcher"`
	Archive      *archive.Stats     `json:"archive,omitempty"`
	ResultsCount int                `json:"results_count"`
}

// CacheStats reports fetcher, archive and result counts
func (p *Pipeline) CacheStats() CacheStats {
	st := CacheStats{Fetcher: p.data.CacheStats()}
	if p.delivery != nil {
		a := p.delivery.Stats()
		st.Archive = &a
	}
	p.mu.Lock()
	st.ResultsCount = len(p.results)
	p.mu.Unlock()
	return st
}

// ClearCache drops fetcher and archive caches and forgets results
func (p *Pipeline) ClearCache() {
	p.data.ClearCache()
	if p.delivery != nil {
		p.delivery.Clear()
	}
	p.mu.Lock()
	p.results = nil
	p.failed = nil
	p.invalidate()
	p.mu.Unlock()
	p.logger.Info().Msg("All caches cleared")
}
