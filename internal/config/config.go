// Package config defines the top-level configuration for the stockspec
// backend and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by STOCKSPEC_* environment
// variables.
type Config struct {
	AlphaVantage AlphaVantageConfig `toml:"alphavantage"`
	Postgres     PostgresConfig     `toml:"postgres"`
	Redis        RedisConfig        `toml:"redis"`
	S3           S3Config           `toml:"s3"`
	Ingest       IngestConfig       `toml:"ingest"`
	Resolver     ResolverConfig     `toml:"resolver"`
	Notify       NotifyConfig       `toml:"notify"`
	Mode         string             `toml:"mode"`
	LogLevel     string             `toml:"log_level"`
}

// AlphaVantageConfig holds market-data provider parameters. Keys is the pool
// of API keys rotated by the key scheduler; RequestsPerKey and RateWindow
// describe the provider's per-key cap.
type AlphaVantageConfig struct {
	BaseURL        string   `toml:"base_url"`
	Keys           []string `toml:"keys"`
	RequestTimeout duration `toml:"request_timeout"`
	RequestsPerKey int      `toml:"requests_per_key"`
	RateWindow     duration `toml:"rate_window"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the raw payload
// archive. When Enabled is false no S3 client is constructed and raw payloads
// are simply not archived.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// IngestConfig holds ingestion engine parameters.
type IngestConfig struct {
	// BurstWorkers bounds the concurrent fetch pool in burst mode.
	BurstWorkers int `toml:"burst_workers"`
	// SteadyDelay is the inter-request pause in steady-rate mode.
	SteadyDelay duration `toml:"steady_delay"`
	// CooldownInitial and CooldownMax bound the soft-throttle backoff.
	CooldownInitial duration `toml:"cooldown_initial"`
	CooldownMax     duration `toml:"cooldown_max"`
	// MaxCooldowns caps how many throttle backoffs a single run tolerates
	// before giving up on the remaining symbols.
	MaxCooldowns int `toml:"max_cooldowns"`
	// Interval is the period between ingest runs in full mode.
	Interval duration `toml:"interval"`
	// Symbols optionally restricts ingestion to a fixed set; empty means all
	// tracked symbols.
	Symbols []string `toml:"symbols"`
}

// ResolverConfig holds contest resolution batch parameters.
type ResolverConfig struct {
	Interval duration `toml:"interval"`
	LockTTL  duration `toml:"lock_ttl"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		AlphaVantage: AlphaVantageConfig{
			BaseURL:        "https://www.alphavantage.co/query",
			RequestTimeout: duration{5 * time.Second},
			RequestsPerKey: 5,
			RateWindow:     duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "stockspec",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "stockspec-raw",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Ingest: IngestConfig{
			BurstWorkers:    8,
			SteadyDelay:     duration{15 * time.Second},
			CooldownInitial: duration{30 * time.Second},
			CooldownMax:     duration{90 * time.Second},
			MaxCooldowns:    5,
			Interval:        duration{30 * time.Minute},
		},
		Resolver: ResolverConfig{
			Interval: duration{5 * time.Minute},
			LockTTL:  duration{2 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"contest_resolved", "ingest_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"ingest":  true,
	"steady":  true,
	"resolve": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: ingest, steady, resolve, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// AlphaVantage: ingestion modes need at least one key.
	needsProvider := c.Mode == "ingest" || c.Mode == "steady" || c.Mode == "full"
	if needsProvider && len(c.AlphaVantage.Keys) == 0 {
		errs = append(errs, "alphavantage: at least one API key is required for mode "+c.Mode)
	}
	for i, k := range c.AlphaVantage.Keys {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, fmt.Sprintf("alphavantage: key %d is empty", i))
		}
	}
	if c.AlphaVantage.BaseURL == "" {
		errs = append(errs, "alphavantage: base_url must not be empty")
	}
	if c.AlphaVantage.RequestTimeout.Duration <= 0 {
		errs = append(errs, "alphavantage: request_timeout must be positive")
	}
	if c.AlphaVantage.RequestsPerKey < 1 {
		errs = append(errs, "alphavantage: requests_per_key must be >= 1")
	}
	if c.AlphaVantage.RateWindow.Duration <= 0 {
		errs = append(errs, "alphavantage: rate_window must be positive")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3: only checked when the raw archive is enabled.
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Ingest
	if c.Ingest.BurstWorkers < 1 {
		errs = append(errs, "ingest: burst_workers must be >= 1")
	}
	if c.Ingest.SteadyDelay.Duration < 0 {
		errs = append(errs, "ingest: steady_delay must not be negative")
	}
	if c.Ingest.CooldownInitial.Duration <= 0 {
		errs = append(errs, "ingest: cooldown_initial must be positive")
	}
	if c.Ingest.CooldownMax.Duration < c.Ingest.CooldownInitial.Duration {
		errs = append(errs, "ingest: cooldown_max must be >= cooldown_initial")
	}
	if c.Ingest.MaxCooldowns < 1 {
		errs = append(errs, "ingest: max_cooldowns must be >= 1")
	}
	if c.Ingest.Interval.Duration <= 0 {
		errs = append(errs, "ingest: interval must be positive")
	}

	// Resolver
	if c.Resolver.Interval.Duration <= 0 {
		errs = append(errs, "resolver: interval must be positive")
	}
	if c.Resolver.LockTTL.Duration <= 0 {
		errs = append(errs, "resolver: lock_ttl must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
