package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies STOCKSPEC_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known STOCKSPEC_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── AlphaVantage ──
	setStringSlice(&cfg.AlphaVantage.Keys, "STOCKSPEC_AV_KEYS")
	setStr(&cfg.AlphaVantage.BaseURL, "STOCKSPEC_AV_BASE_URL")
	setDuration(&cfg.AlphaVantage.RequestTimeout, "STOCKSPEC_AV_REQUEST_TIMEOUT")
	setInt(&cfg.AlphaVantage.RequestsPerKey, "STOCKSPEC_AV_REQUESTS_PER_KEY")
	setDuration(&cfg.AlphaVantage.RateWindow, "STOCKSPEC_AV_RATE_WINDOW")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "STOCKSPEC_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "STOCKSPEC_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "STOCKSPEC_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "STOCKSPEC_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "STOCKSPEC_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "STOCKSPEC_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "STOCKSPEC_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "STOCKSPEC_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "STOCKSPEC_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "STOCKSPEC_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "STOCKSPEC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STOCKSPEC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STOCKSPEC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STOCKSPEC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STOCKSPEC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STOCKSPEC_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "STOCKSPEC_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "STOCKSPEC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STOCKSPEC_S3_REGION")
	setStr(&cfg.S3.Bucket, "STOCKSPEC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STOCKSPEC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STOCKSPEC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STOCKSPEC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STOCKSPEC_S3_FORCE_PATH_STYLE")

	// ── Ingest ──
	setInt(&cfg.Ingest.BurstWorkers, "STOCKSPEC_INGEST_BURST_WORKERS")
	setDuration(&cfg.Ingest.SteadyDelay, "STOCKSPEC_INGEST_STEADY_DELAY")
	setDuration(&cfg.Ingest.CooldownInitial, "STOCKSPEC_INGEST_COOLDOWN_INITIAL")
	setDuration(&cfg.Ingest.CooldownMax, "STOCKSPEC_INGEST_COOLDOWN_MAX")
	setInt(&cfg.Ingest.MaxCooldowns, "STOCKSPEC_INGEST_MAX_COOLDOWNS")
	setDuration(&cfg.Ingest.Interval, "STOCKSPEC_INGEST_INTERVAL")
	setStringSlice(&cfg.Ingest.Symbols, "STOCKSPEC_INGEST_SYMBOLS")

	// ── Resolver ──
	setDuration(&cfg.Resolver.Interval, "STOCKSPEC_RESOLVER_INTERVAL")
	setDuration(&cfg.Resolver.LockTTL, "STOCKSPEC_RESOLVER_LOCK_TTL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "STOCKSPEC_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STOCKSPEC_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STOCKSPEC_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STOCKSPEC_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "STOCKSPEC_MODE")
	setStr(&cfg.LogLevel, "STOCKSPEC_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
