package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"alphascreen/internal/market"
	"alphascreen/pkg/model"
)

// Scanner runs one screen of the universe
type Scanner interface {
	Scan(ctx context.Context) (*model.RunReport, error)
}

// Warmer preloads the delivery archive
type Warmer interface {
	Warmup(ctx context.Context, days, maxWorkers int) int
}

// ScanFunc adapts a function to Scanner
type ScanFunc func(ctx context.Context) (*model.RunReport, error)

func (f ScanFunc) Scan(ctx context.Context) (*model.RunReport, error) { return f(ctx) }

// Config holds cron expressions (with seconds field) and warm-up sizing
type Config struct {
	ScanCron        string
	WarmupCron      string
	WarmupDays      int
	WarmupWorkers   int
	MarketHoursOnly bool // skip scans while the exchange is closed
}

// DefaultConfig scans at the top of every hour and warms the archive at 07:00
func DefaultConfig() Config {
	return Config{
		ScanCron:      "0 0 * * * *",
		WarmupCron:    "0 0 7 * * 1-5",
		WarmupDays:    90,
		WarmupWorkers: 10,
	}
}

// Scheduler runs periodic scans and archive warm-ups
type Scheduler struct {
	cron     *cron.Cron
	cfg      Config
	scanner  Scanner
	warmer   Warmer
	logger   arbor.ILogger
	onReport func(*model.RunReport)
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	scanning bool
	lastScan time.Time
	runs     int
}

// New creates a scheduler. warmer may be nil.
func New(cfg Config, scanner Scanner, warmer Warmer, logger arbor.ILogger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(market.Location())),
		cfg:     cfg,
		scanner: scanner,
		warmer:  warmer,
		logger:  logger,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnReport registers a callback invoked after each successful scan
func (s *Scheduler) OnReport(fn func(*model.RunReport)) {
	s.onReport = fn
}

// Register adds the scan and, when a warmer is set, the warm-up job
func (s *Scheduler) Register() error {
	if _, err := s.cron.AddFunc(s.cfg.ScanCron, s.scanTask); err != nil {
		return fmt.Errorf("register scan task: %w", err)
	}
	if s.warmer != nil && s.cfg.WarmupCron != "" {
		if _, err := s.cron.AddFunc(s.cfg.WarmupCron, s.warmupTask); err != nil {
			return fmt.Errorf("register warm-up task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Str("scan", s.cfg.ScanCron).Str("warmup", s.cfg.WarmupCron).Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info().Int("runs", s.Runs()).Msg("Scheduler stopped")
}

// Next returns the next scheduled run of any job
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if next.IsZero() || (!e.Next.IsZero() && e.Next.Before(next)) {
			next = e.Next
		}
	}
	return next
}

// RunScanNow executes the scan task immediately
func (s *Scheduler) RunScanNow() {
	s.scanTask()
}

// Runs returns how many scans have completed
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// LastScan returns when the last successful scan finished
func (s *Scheduler) LastScan() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScan
}

func (s *Scheduler) scanTask() {
	if s.cfg.MarketHoursOnly {
		if st := market.StatusAt(market.DefaultSchedule(), s.now()); !st.IsOpen {
			s.logger.Debug().Str("reason", st.Reason).Msg("Market closed, skipping scheduled scan")
			return
		}
	}

	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous scan still running, skipping")
		return
	}
	s.scanning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
		if r := recover(); r != nil {
			s.logger.Error().Str("panic", fmt.Sprintf("%v", r)).Msg("Scheduled scan panicked")
		}
	}()

	s.logger.Info().Msg("Running scheduled scan")
	report, err := s.scanner.Scan(s.ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled scan failed")
		return
	}

	s.mu.Lock()
	s.runs++
	s.lastScan = s.now()
	s.mu.Unlock()

	s.logger.Info().
		Int("analyzed", report.Summary.Total).
		Int("buy", report.Summary.Buy).
		Int("failed", report.Summary.Failed).
		Msg("Scheduled scan complete")
	if s.onReport != nil {
		s.onReport(report)
	}
}

func (s *Scheduler) warmupTask() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("panic", fmt.Sprintf("%v", r)).Msg("Scheduled warm-up panicked")
		}
	}()
	s.logger.Info().Int("days", s.cfg.WarmupDays).Msg("Running scheduled archive warm-up")
	n := s.warmer.Warmup(s.ctx, s.cfg.WarmupDays, s.cfg.WarmupWorkers)
	s.logger.Info().Int("cached", n).Msg("Scheduled warm-up complete")
}
