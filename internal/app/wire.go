package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/tgdn/stockspec-backend/internal/blob/s3"
	"github.com/tgdn/stockspec-backend/internal/cache/redis"
	"github.com/tgdn/stockspec-backend/internal/config"
	"github.com/tgdn/stockspec-backend/internal/domain"
	"github.com/tgdn/stockspec-backend/internal/keypool"
	"github.com/tgdn/stockspec-backend/internal/notify"
	"github.com/tgdn/stockspec-backend/internal/platform/alphavantage"
	"github.com/tgdn/stockspec-backend/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	SymbolStore  domain.SymbolStore
	PriceStore   domain.PriceStore
	BasketStore  domain.BasketStore
	ContestStore domain.ContestStore

	// Caches
	QuoteCache  domain.QuoteCache
	LockManager domain.LockManager

	// Blob storage. Nil when the raw archive is disabled.
	BlobWriter domain.BlobWriter
	Archiver   domain.PayloadArchiver

	// Provider access
	Provider *alphavantage.Client
	KeyPool  *keypool.Scheduler

	// Notifications
	Notifier *notify.Notifier
}

// needsProvider returns true for modes that fetch from the market-data API.
func needsProvider(mode string) bool {
	switch mode {
	case "ingest", "steady", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// releases resources on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.SymbolStore = postgres.NewSymbolStore(pool)
	deps.PriceStore = postgres.NewPriceStore(pool)
	deps.BasketStore = postgres.NewBasketStore(pool)
	deps.ContestStore = postgres.NewContestStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.QuoteCache = redis.NewQuoteCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- S3 raw payload archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		writer := s3blob.NewWriter(s3Client)
		deps.BlobWriter = writer
		deps.Archiver = s3blob.NewArchiver(writer)
	}

	// --- Provider client and key pool ---
	if needsProvider(cfg.Mode) {
		deps.Provider = alphavantage.NewClient(
			cfg.AlphaVantage.BaseURL,
			cfg.AlphaVantage.RequestTimeout.Duration,
			logger,
		)

		pool, err := keypool.New(
			cfg.AlphaVantage.Keys,
			cfg.AlphaVantage.RequestsPerKey,
			cfg.AlphaVantage.RateWindow.Duration,
			logger,
		)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: keypool: %w", err)
		}
		closers = append(closers, pool.Close)
		deps.KeyPool = pool
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
