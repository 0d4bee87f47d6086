package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/portal-crm-backend/internal/cron"
	"github.com/angelmondragon/portal-crm-backend/internal/deals"
	"github.com/angelmondragon/portal-crm-backend/internal/quotes"
	"github.com/angelmondragon/portal-crm-backend/pkg/config"
	"github.com/angelmondragon/portal-crm-backend/pkg/db"
	"github.com/angelmondragon/portal-crm-backend/pkg/logger"
	"github.com/angelmondragon/portal-crm-backend/pkg/metrics"
	"github.com/angelmondragon/portal-crm-backend/pkg/migrate"
	"github.com/angelmondragon/portal-crm-backend/pkg/outbox"
	"github.com/angelmondragon/portal-crm-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Quotes.ExpirySweepInterval.String(),
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	jobs, err := buildJobs(cfg, logg, dbClient)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, cron.SweepLockName, cfg.Redis.CronLockTTL)
	if err != nil {
		return fmt.Errorf("create cron lock: %w", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Quotes.ExpirySweepInterval,
	})
	if err != nil {
		return fmt.Errorf("create cron service: %w", err)
	}

	logg.Info(logg.WithField(ctx, "lockKey", lock.Key()), "starting cron worker")
	return service.Run(ctx)
}

// buildJobs wires the quote expiry sweep and outbox retention.
func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)

	quoteService, err := quotes.NewService(quotes.ServiceParams{
		Repo:         quotes.NewRepository(conn),
		Deals:        deals.NewRepository(conn),
		Tx:           dbClient,
		Outbox:       outbox.NewService(outboxRepo, logg),
		Logger:       logg,
		Metrics:      metrics.NewQuoteMetrics(prometheus.DefaultRegisterer),
		Numbers:      quotes.NewNumberGenerator(cfg.Quotes.NumberPrefix),
		ValidityDays: cfg.Quotes.DefaultValidityDays,
	})
	if err != nil {
		return nil, fmt.Errorf("create quote service: %w", err)
	}

	expiryJob, err := cron.NewQuoteExpiryJob(cron.QuoteExpiryJobParams{
		Logger:    logg,
		Quotes:    quoteService,
		BatchSize: cfg.Quotes.ExpiryBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create quote expiry job: %w", err)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		DB:           dbClient,
		Repository:   outboxRepo,
		DLQ:          outbox.NewDLQRepository(conn),
		Retention:    cfg.Outbox.Retention,
		DLQRetention: cfg.Outbox.DLQRetention,
	})
	if err != nil {
		return nil, fmt.Errorf("create outbox retention job: %w", err)
	}

	return cron.NewRegistry(expiryJob, retentionJob), nil
}
