package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	cfg.AlphaVantage.Keys = []string{"demo"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 5, cfg.AlphaVantage.RequestsPerKey)
	assert.Equal(t, time.Minute, cfg.AlphaVantage.RateWindow.Duration)
	assert.False(t, cfg.S3.Enabled)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `
mode = "steady"
log_level = "debug"

[alphavantage]
keys = ["key-a", "key-b"]
requests_per_key = 3
rate_window = "30s"

[ingest]
steady_delay = "20s"
symbols = ["AAPL", "MSFT"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "steady", cfg.Mode)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.AlphaVantage.Keys)
	assert.Equal(t, 3, cfg.AlphaVantage.RequestsPerKey)
	assert.Equal(t, 30*time.Second, cfg.AlphaVantage.RateWindow.Duration)
	assert.Equal(t, 20*time.Second, cfg.Ingest.SteadyDelay.Duration)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Ingest.Symbols)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 8, cfg.Ingest.BurstWorkers)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
mode = "ingest"

[alphavantage]
keys = ["from-file"]
`)

	t.Setenv("STOCKSPEC_AV_KEYS", "env-a, env-b")
	t.Setenv("STOCKSPEC_POSTGRES_PASSWORD", "sekret")
	t.Setenv("STOCKSPEC_INGEST_BURST_WORKERS", "4")
	t.Setenv("STOCKSPEC_RESOLVER_INTERVAL", "90s")
	t.Setenv("STOCKSPEC_S3_ENABLED", "true")
	t.Setenv("STOCKSPEC_MODE", "resolve")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"env-a", "env-b"}, cfg.AlphaVantage.Keys)
	assert.Equal(t, "sekret", cfg.Postgres.Password)
	assert.Equal(t, 4, cfg.Ingest.BurstWorkers)
	assert.Equal(t, 90*time.Second, cfg.Resolver.Interval.Duration)
	assert.True(t, cfg.S3.Enabled)
	assert.Equal(t, "resolve", cfg.Mode)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "sideways"
	cfg.LogLevel = "loud"
	cfg.Redis.Addr = ""
	cfg.Ingest.BurstWorkers = 0
	cfg.Ingest.CooldownInitial = duration{time.Minute}
	cfg.Ingest.CooldownMax = duration{time.Second}

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, `unknown mode "sideways"`)
	assert.ErrorContains(t, err, `unknown log_level "loud"`)
	assert.ErrorContains(t, err, "redis: addr must not be empty")
	assert.ErrorContains(t, err, "ingest: burst_workers must be >= 1")
	assert.ErrorContains(t, err, "ingest: cooldown_max must be >= cooldown_initial")
}

func TestValidateRequiresKeysForIngestModes(t *testing.T) {
	for _, mode := range []string{"ingest", "steady", "full"} {
		cfg := Defaults()
		cfg.Mode = mode
		cfg.AlphaVantage.Keys = nil
		err := cfg.Validate()
		require.Error(t, err, mode)
		assert.ErrorContains(t, err, "at least one API key")
	}

	// Resolve mode runs without the market-data provider.
	cfg := Defaults()
	cfg.Mode = "resolve"
	cfg.AlphaVantage.Keys = nil
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.AlphaVantage.Keys = []string{"key-a", "key-b"}
	cfg.Postgres.Password = "sekret"
	cfg.Notify.TelegramToken = "123:abc"

	redacted := RedactedConfig(&cfg)

	assert.Equal(t, []string{"***", "***"}, redacted.AlphaVantage.Keys)
	assert.Equal(t, "***", redacted.Postgres.Password)
	assert.Equal(t, "***", redacted.Notify.TelegramToken)

	// Non-sensitive fields and the original are untouched.
	assert.Equal(t, cfg.Redis.Addr, redacted.Redis.Addr)
	assert.Equal(t, "sekret", cfg.Postgres.Password)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.AlphaVantage.Keys)
}

func TestValidateS3OnlyWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.AlphaVantage.Keys = []string{"demo"}
	cfg.S3.Enabled = true
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "s3: bucket must not be empty")

	cfg.S3.Enabled = false
	assert.NoError(t, cfg.Validate())
}
