package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "chartsignal/internal/blob/s3"
	"chartsignal/internal/cache/redis"
	"chartsignal/internal/config"
	"chartsignal/internal/domain"
	"chartsignal/internal/notify"
	"chartsignal/internal/oracle"
	"chartsignal/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function. Optional backends stay nil when their config
// section is disabled or the mode does not use them.
type Dependencies struct {
	SignalStore domain.SignalStore
	SeenCache   domain.SeenCache
	SignalBus   domain.SignalBus
	Archiver    domain.ChartArchiver

	Oracle   *oracle.Client
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that touch the signals table.
func needsPostgres(mode string) bool {
	return mode == "watch" || mode == "stats"
}

// needsRedis returns true for modes that share state across instances.
func needsRedis(mode string) bool {
	return mode == "watch"
}

// needsS3 returns true for modes that archive chart images.
func needsS3(mode string) bool {
	return mode == "watch"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(mode) {
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

		deps.SignalStore = postgres.NewSignalStore(pgClient.Pool())
	}

	// --- Redis (optional: shared dedup and the signal bus) ---
	if needsRedis(mode) && cfg.Redis.Enabled {
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

		deps.SeenCache = redis.NewSeenCache(redisClient, cfg.Redis.SeenTTL.Duration)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 (optional: chart archival) ---
	if needsS3(mode) && cfg.S3.Enabled {
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

		deps.Archiver = s3blob.NewChartArchive(s3blob.NewWriter(s3Client), cfg.S3.KeyPrefix)
	}

	// --- Vision oracle ---
	deps.Oracle = oracle.NewClient(oracle.ClientConfig{
		Provider:    oracle.Provider(strings.ToLower(cfg.Oracle.Provider)),
		APIKey:      cfg.Oracle.APIKey,
		Model:       cfg.Oracle.Model,
		MaxTokens:   cfg.Oracle.MaxTokens,
		Temperature: cfg.Oracle.Temperature,
		Timeout:     cfg.Oracle.CallTimeout.Duration,
	})

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
