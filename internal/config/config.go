package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Provider    ProviderConfig    `yaml:"provider" toml:"provider"`
	Fetcher     FetcherConfig     `yaml:"fetcher" toml:"fetcher"`
	Archive     ArchiveConfig     `yaml:"archive" toml:"archive"`
	Retry       RetryConfig       `yaml:"retry" toml:"retry"`
	Technical   TechnicalConfig   `yaml:"technical" toml:"technical"`
	Fundamental FundamentalConfig `yaml:"fundamental" toml:"fundamental"`
	Scoring     ScoringConfig     `yaml:"scoring" toml:"scoring"`
	Universe    UniverseConfig    `yaml:"universe" toml:"universe"`
	Store       StoreConfig       `yaml:"store" toml:"store"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Schedule    ScheduleConfig    `yaml:"schedule" toml:"schedule"`
	Export      ExportConfig      `yaml:"export" toml:"export"`
}

// ProviderConfig holds market data provider settings
type ProviderConfig struct {
	Suffix    string `yaml:"suffix" toml:"suffix"` // exchange suffix appended to tickers
	UserAgent string `yaml:"user_agent" toml:"user_agent"`
	Timeout   string `yaml:"timeout" toml:"timeout"`
	RateLimit int    `yaml:"rate_limit" toml:"rate_limit"` // requests per minute
	Period    string `yaml:"period" toml:"period"`
	Interval  string `yaml:"interval" toml:"interval"`
}

// FetcherConfig holds concurrency and cache settings for remote calls
type FetcherConfig struct {
	MaxConcurrent int    `yaml:"max_concurrent" toml:"max_concurrent"`
	CacheTTL      string `yaml:"cache_ttl" toml:"cache_ttl"`
}

// ArchiveConfig holds settlement archive settings
type ArchiveConfig struct {
	Enabled        bool    `yaml:"enabled" toml:"enabled"`
	BaseURL        string  `yaml:"base_url" toml:"base_url"`
	WarmupDays     int     `yaml:"warmup_days" toml:"warmup_days"`
	WarmupWorkers  int     `yaml:"warmup_workers" toml:"warmup_workers"`
	LookbackDays   int     `yaml:"lookback_days" toml:"lookback_days"`
	SpikeThreshold float64 `yaml:"spike_threshold" toml:"spike_threshold"`
	RetryAttempts  int     `yaml:"retry_attempts" toml:"retry_attempts"`
	RetryDelay     string  `yaml:"retry_delay" toml:"retry_delay"`
	Timeout        string  `yaml:"timeout" toml:"timeout"`
	RateLimit      int     `yaml:"rate_limit" toml:"rate_limit"`
}

// RetryConfig holds the provider retry policy
type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts" toml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay" toml:"base_delay"`
	MaxDelay    string `yaml:"max_delay" toml:"max_delay"`
	Linear      bool   `yaml:"linear" toml:"linear"`
}

// TechnicalConfig holds EMA settings
type TechnicalConfig struct {
	DailySpan      int     `yaml:"daily_span" toml:"daily_span"`
	WeeklySpan     int     `yaml:"weekly_span" toml:"weekly_span"`
	DailyLookback  int     `yaml:"daily_lookback" toml:"daily_lookback"`
	WeeklyLookback int     `yaml:"weekly_lookback" toml:"weekly_lookback"`
	StrongDiffPct  float64 `yaml:"strong_diff_pct" toml:"strong_diff_pct"`
}

// FundamentalConfig holds ratio thresholds
type FundamentalConfig struct {
	PELow    float64 `yaml:"pe_low" toml:"pe_low"`
	PEHigh   float64 `yaml:"pe_high" toml:"pe_high"`
	ROEGood  float64 `yaml:"roe_good" toml:"roe_good"`
	ROEPoor  float64 `yaml:"roe_poor" toml:"roe_poor"`
	DebtLow  float64 `yaml:"debt_low" toml:"debt_low"`
	DebtHigh float64 `yaml:"debt_high" toml:"debt_high"`
	PBLow    float64 `yaml:"pb_low" toml:"pb_low"`
	PBHigh   float64 `yaml:"pb_high" toml:"pb_high"`
}

// ScoringConfig holds signal thresholds and clamp bounds
type ScoringConfig struct {
	BuyThreshold float64 `yaml:"buy_threshold" toml:"buy_threshold"`
	HoldMin      float64 `yaml:"hold_min" toml:"hold_min"`
	MinScore     float64 `yaml:"min_score" toml:"min_score"`
	MaxScore     float64 `yaml:"max_score" toml:"max_score"`
}

// UniverseConfig holds symbol list settings
type UniverseConfig struct {
	SourceURL string `yaml:"source_url" toml:"source_url"`
	CacheTTL  string `yaml:"cache_ttl" toml:"cache_ttl"`
	Limit     int    `yaml:"limit" toml:"limit"`
	RateLimit int    `yaml:"rate_limit" toml:"rate_limit"`
	Fallback  string `yaml:"fallback" toml:"fallback"` // built-in universe name, "" disables
}

// StoreConfig holds persistence settings
type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path" toml:"sqlite_path"` // "" disables persistence
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string   `yaml:"level" toml:"level"`
	Output []string `yaml:"output" toml:"output"`
	Dir    string   `yaml:"dir" toml:"dir"`
}

// ScheduleConfig holds cron expressions, with a leading seconds field
type ScheduleConfig struct {
	ScanCron        string `yaml:"scan_cron" toml:"scan_cron"`
	WarmupCron      string `yaml:"warmup_cron" toml:"warmup_cron"`
	MarketHoursOnly bool   `yaml:"market_hours_only" toml:"market_hours_only"`
}

// ExportConfig holds export settings
type ExportConfig struct {
	Dir      string `yaml:"dir" toml:"dir"`
	Metadata bool   `yaml:"metadata" toml:"metadata"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Suffix:    ".NS",
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			Timeout:   "15s",
			RateLimit: 120,
			Period:    "5y",
			Interval:  "1d",
		},
		Fetcher: FetcherConfig{
			MaxConcurrent: 50,
			CacheTTL:      "1h",
		},
		Archive: ArchiveConfig{
			Enabled:        true,
			BaseURL:        "https://archives.nseindia.com/products/content",
			WarmupDays:     90,
			WarmupWorkers:  10,
			LookbackDays:   90,
			SpikeThreshold: 2.0,
			RetryAttempts:  2,
			RetryDelay:     "1s",
			Timeout:        "15s",
			RateLimit:      300,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   "2s",
			MaxDelay:    "30s",
		},
		Technical: TechnicalConfig{
			DailySpan:      252,
			WeeklySpan:     260,
			DailyLookback:  20,
			WeeklyLookback: 4,
			StrongDiffPct:  5,
		},
		Fundamental: FundamentalConfig{
			PELow:    20,
			PEHigh:   40,
			ROEGood:  15,
			ROEPoor:  0,
			DebtLow:  0.5,
			DebtHigh: 2.0,
			PBLow:    1.5,
			PBHigh:   5.0,
		},
		Scoring: ScoringConfig{
			BuyThreshold: 3.0,
			HoldMin:      1.0,
			MinScore:     -5.0,
			MaxScore:     5.0,
		},
		Universe: UniverseConfig{
			SourceURL: "https://archives.nseindia.com/content/equities/EQUITY_L.csv",
			CacheTTL:  "24h",
			RateLimit: 30,
			Fallback:  "nifty50",
		},
		Store: StoreConfig{
			SQLitePath: filepath.Join("data", "alphascreen.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"console"},
		},
		Schedule: ScheduleConfig{
			ScanCron:   "0 0 * * * *",
			WarmupCron: "0 0 7 * * 1-5",
		},
		Export: ExportConfig{
			Dir:      filepath.Join("data", "exports"),
			Metadata: true,
		},
	}
}

// Load reads a YAML or TOML file (chosen by extension) over the defaults, then applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	case ".yaml", ".yml", "":
		return yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

func applyEnvOverrides(cfg *Config) {
	if level := os.Getenv("ALPHASCREEN_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if path, ok := os.LookupEnv("ALPHASCREEN_SQLITE_PATH"); ok {
		cfg.Store.SQLitePath = path
	}
	if v := os.Getenv("ALPHASCREEN_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Fetcher.MaxConcurrent = n
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Fetcher.MaxConcurrent < 1 {
		return fmt.Errorf("fetcher.max_concurrent must be at least 1")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Archive.Enabled {
		if c.Archive.WarmupDays < 1 || c.Archive.WarmupWorkers < 1 || c.Archive.LookbackDays < 1 {
			return fmt.Errorf("archive warmup_days, warmup_workers and lookback_days must be at least 1")
		}
		if c.Archive.SpikeThreshold <= 0 {
			return fmt.Errorf("archive.spike_threshold must be positive")
		}
	}
	if c.Technical.DailySpan < 1 || c.Technical.WeeklySpan < 1 {
		return fmt.Errorf("technical spans must be at least 1")
	}
	if c.Fundamental.PELow >= c.Fundamental.PEHigh {
		return fmt.Errorf("fundamental.pe_low must be below pe_high")
	}
	if c.Fundamental.DebtLow >= c.Fundamental.DebtHigh {
		return fmt.Errorf("fundamental.debt_low must be below debt_high")
	}
	if c.Fundamental.PBLow >= c.Fundamental.PBHigh {
		return fmt.Errorf("fundamental.pb_low must be below pb_high")
	}
	if c.Fundamental.ROEPoor >= c.Fundamental.ROEGood {
		return fmt.Errorf("fundamental.roe_poor must be below roe_good")
	}
	if c.Scoring.MinScore >= c.Scoring.MaxScore {
		return fmt.Errorf("scoring.min_score must be below max_score")
	}
	if c.Scoring.HoldMin > c.Scoring.BuyThreshold {
		return fmt.Errorf("scoring.hold_min must not exceed buy_threshold")
	}

	for name, v := range map[string]string{
		"provider.timeout":    c.Provider.Timeout,
		"fetcher.cache_ttl":   c.Fetcher.CacheTTL,
		"archive.retry_delay": c.Archive.RetryDelay,
		"archive.timeout":     c.Archive.Timeout,
		"retry.base_delay":    c.Retry.BaseDelay,
		"retry.max_delay":     c.Retry.MaxDelay,
		"universe.cache_ttl":  c.Universe.CacheTTL,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Duration parses s, returning fallback when s is empty or malformed
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
