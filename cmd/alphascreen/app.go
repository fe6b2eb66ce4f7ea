package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"alphascreen/internal/analyzer"
	"alphascreen/internal/archive"
	"alphascreen/internal/common"
	"alphascreen/internal/config"
	"alphascreen/internal/export"
	"alphascreen/internal/fetcher"
	"alphascreen/internal/pipeline"
	"alphascreen/internal/provider"
	"alphascreen/internal/ratelimit"
	"alphascreen/internal/retry"
	"alphascreen/internal/scoring"
	"alphascreen/internal/store"
	"alphascreen/internal/symbols"
)

// app holds every wired component for one command invocation
type app struct {
	cfg      *config.Config
	logger   arbor.ILogger
	store    store.Store
	fetcher  *fetcher.Fetcher
	archive  *archive.Cache // nil when delivery data is disabled
	loader   *symbols.Loader
	pipeline *pipeline.Pipeline
	exporter *export.Exporter
}

// loadConfig reads the config file and applies the global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config, logger arbor.ILogger) (store.Store, error) {
	path := cfg.Store.SQLitePath
	if path == "" {
		return store.NewNoopStore(), nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	return store.NewSQLiteStore(path, logger)
}

// newApp wires the screener from cfg. useDelivery=false skips the settlement archive entirely.
func newApp(cfg *config.Config, useDelivery bool) (*app, error) {
	logger := common.InitLogger(common.LoggingOptions{
		Level:  cfg.Logging.Level,
		Output: cfg.Logging.Output,
		Dir:    cfg.Logging.Dir,
	})

	st, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	limiters := ratelimit.NewSet()

	yahooCfg := provider.DefaultYahooConfig()
	if cfg.Provider.Suffix != "" {
		yahooCfg.Suffix = cfg.Provider.Suffix
	}
	if cfg.Provider.UserAgent != "" {
		yahooCfg.UserAgent = cfg.Provider.UserAgent
	}
	yahooCfg.Timeout = config.Duration(cfg.Provider.Timeout, yahooCfg.Timeout)
	yahooCfg.Retry = retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   config.Duration(cfg.Retry.BaseDelay, 2*time.Second),
		MaxDelay:    config.Duration(cfg.Retry.MaxDelay, 30*time.Second),
		Linear:      cfg.Retry.Linear,
	}
	yahoo := provider.NewYahooProvider(yahooCfg, limiters.Get("yahoo", cfg.Provider.RateLimit), logger)

	f := fetcher.New(yahoo, fetcher.Config{
		MaxConcurrent: cfg.Fetcher.MaxConcurrent,
		CacheTTL:      config.Duration(cfg.Fetcher.CacheTTL, time.Hour),
		Period:        cfg.Provider.Period,
		Interval:      cfg.Provider.Interval,
	}, logger)

	var cache *archive.Cache
	var delivery pipeline.DeliverySource
	useDelivery = useDelivery && cfg.Archive.Enabled
	if useDelivery {
		source := archive.NewHTTPSource(
			cfg.Archive.BaseURL,
			config.Duration(cfg.Archive.Timeout, 15*time.Second),
			limiters.Get("nse-archive", cfg.Archive.RateLimit),
		)
		detector := analyzer.NewDeliverySpikeDetector(analyzer.DeliveryConfig{
			SpikeThreshold: cfg.Archive.SpikeThreshold,
		})
		cache = archive.NewCache(source, st, detector, archive.Config{
			WarmupDays:     cfg.Archive.WarmupDays,
			WarmupWorkers:  cfg.Archive.WarmupWorkers,
			LookbackDays:   cfg.Archive.LookbackDays,
			SpikeThreshold: cfg.Archive.SpikeThreshold,
			Retry: retry.Policy{
				MaxAttempts: cfg.Archive.RetryAttempts,
				BaseDelay:   config.Duration(cfg.Archive.RetryDelay, time.Second),
				Linear:      true,
			},
		}, logger)
		delivery = cache
	}

	technical := analyzer.NewTechnicalAnalyzer(analyzer.TechnicalConfig{
		DailySpan:      cfg.Technical.DailySpan,
		WeeklySpan:     cfg.Technical.WeeklySpan,
		DailyLookback:  cfg.Technical.DailyLookback,
		WeeklyLookback: cfg.Technical.WeeklyLookback,
		StrongDiffPct:  cfg.Technical.StrongDiffPct,
	})
	fundamental := analyzer.NewFundamentalAnalyzer(analyzer.FundamentalConfig{
		PELow:    cfg.Fundamental.PELow,
		PEHigh:   cfg.Fundamental.PEHigh,
		ROEGood:  cfg.Fundamental.ROEGood,
		ROEPoor:  cfg.Fundamental.ROEPoor,
		DebtLow:  cfg.Fundamental.DebtLow,
		DebtHigh: cfg.Fundamental.DebtHigh,
		PBLow:    cfg.Fundamental.PBLow,
		PBHigh:   cfg.Fundamental.PBHigh,
	})

	scoreCfg := scoring.DefaultConfig()
	scoreCfg.BuyThreshold = cfg.Scoring.BuyThreshold
	scoreCfg.HoldMin = cfg.Scoring.HoldMin
	scoreCfg.MinScore = cfg.Scoring.MinScore
	scoreCfg.MaxScore = cfg.Scoring.MaxScore
	engine := scoring.NewEngine(scoreCfg, logger)

	p := pipeline.New(pipeline.Config{
		UseDelivery:    useDelivery,
		LookbackDays:   cfg.Archive.LookbackDays,
		SpikeThreshold: cfg.Archive.SpikeThreshold,
		WarmupDays:     cfg.Archive.WarmupDays,
		WarmupWorkers:  cfg.Archive.WarmupWorkers,
	}, f, delivery, technical, fundamental, engine, logger)

	loader := symbols.NewLoader(symbols.LoaderConfig{
		URL:      cfg.Universe.SourceURL,
		CacheTTL: config.Duration(cfg.Universe.CacheTTL, 24*time.Hour),
		Timeout:  yahooCfg.Timeout,
		Limit:    cfg.Universe.Limit,
		Fallback: symbols.GetUniverse(symbols.Universe(cfg.Universe.Fallback)),
	}, st, limiters.Get("nse", cfg.Universe.RateLimit), logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		fetcher:  f,
		archive:  cache,
		loader:   loader,
		pipeline: p,
		exporter: export.NewExporter(cfg.Export.Dir, logger),
	}, nil
}

// Close releases the store
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Closing store")
	}
}
