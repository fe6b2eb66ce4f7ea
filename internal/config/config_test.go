package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.Fetcher.MaxConcurrent)
	assert.Equal(t, 252, cfg.Technical.DailySpan)
	assert.Equal(t, 3.0, cfg.Scoring.BuyThreshold)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Provider, cfg.Provider)
}

func TestLoadYAMLOverridesOnlyGivenKeys(t *testing.T) {
	path := writeFile(t, "alphascreen.yaml", `
fetcher:
  max_concurrent: 8
archive:
  enabled: false
scoring:
  buy_threshold: 3.5
logging:
  output: [console, file]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Fetcher.MaxConcurrent)
	assert.Equal(t, "1h", cfg.Fetcher.CacheTTL)
	assert.False(t, cfg.Archive.Enabled)
	assert.Equal(t, 90, cfg.Archive.WarmupDays)
	assert.Equal(t, 3.5, cfg.Scoring.BuyThreshold)
	assert.Equal(t, []string{"console", "file"}, cfg.Logging.Output)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "alphascreen.toml", `
[provider]
period = "2y"

[fundamental]
pe_low = 15.0
pe_high = 35.0

[schedule]
scan_cron = "0 30 * * * *"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2y", cfg.Provider.Period)
	assert.Equal(t, ".NS", cfg.Provider.Suffix)
	assert.Equal(t, 15.0, cfg.Fundamental.PELow)
	assert.Equal(t, "0 30 * * * *", cfg.Schedule.ScanCron)
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	_, err := Load(writeFile(t, "alphascreen.ini", "x=1"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "fetcher: [unterminated"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ALPHASCREEN_LOG_LEVEL", "debug")
	t.Setenv("ALPHASCREEN_SQLITE_PATH", "")
	t.Setenv("ALPHASCREEN_MAX_CONCURRENT", "12")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "", cfg.Store.SQLitePath)
	assert.Equal(t, 12, cfg.Fetcher.MaxConcurrent)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Fetcher.MaxConcurrent = 0 }},
		{"inverted pe", func(c *Config) { c.Fundamental.PELow = 50 }},
		{"inverted clamp", func(c *Config) { c.Scoring.MinScore = 6 }},
		{"hold above buy", func(c *Config) { c.Scoring.HoldMin = 4 }},
		{"bad duration", func(c *Config) { c.Fetcher.CacheTTL = "an hour" }},
		{"no spike threshold", func(c *Config) { c.Archive.SpikeThreshold = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Archive.Enabled = false
	cfg.Archive.SpikeThreshold = 0
	assert.NoError(t, cfg.Validate(), "archive settings are ignored when disabled")
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 90*time.Second, Duration("90s", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, time.Minute, Duration("soon", time.Minute))
}
