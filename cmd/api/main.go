package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/portal-crm-backend/api/middleware"
	"github.com/angelmondragon/portal-crm-backend/api/routes"
	"github.com/angelmondragon/portal-crm-backend/internal/deals"
	product "github.com/angelmondragon/portal-crm-backend/internal/products"
	"github.com/angelmondragon/portal-crm-backend/internal/quotes"
	"github.com/angelmondragon/portal-crm-backend/pkg/config"
	"github.com/angelmondragon/portal-crm-backend/pkg/db"
	"github.com/angelmondragon/portal-crm-backend/pkg/logger"
	"github.com/angelmondragon/portal-crm-backend/pkg/metrics"
	"github.com/angelmondragon/portal-crm-backend/pkg/migrate"
	"github.com/angelmondragon/portal-crm-backend/pkg/outbox"
	"github.com/angelmondragon/portal-crm-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	quoteService, err := quotes.NewService(quotes.ServiceParams{
		Repo:         quotes.NewRepository(dbClient.DB()),
		Deals:        deals.NewRepository(dbClient.DB()),
		Tx:           dbClient,
		Outbox:       outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Logger:       logg,
		Metrics:      metrics.NewQuoteMetrics(registry),
		Numbers:      quotes.NewNumberGenerator(cfg.Quotes.NumberPrefix),
		ValidityDays: cfg.Quotes.DefaultValidityDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create quote service", err)
		os.Exit(1)
	}

	productService, err := product.NewService(product.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create product service", err)
		os.Exit(1)
	}

	// A nil interface disables the session lookup; a typed nil would not.
	var sessions middleware.SessionChecker
	if cfg.JWT.RequireSession {
		sessions = redisClient
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:               dbClient,
			Redis:            redisClient,
			Sessions:         sessions,
			IdempotencyStore: redisClient,
			Quotes:           quoteService,
			Products:         productService,
			Gatherer:         registry,
		}),
		ReadTimeout:  cfg.App.ReadTimeout,
		WriteTimeout: cfg.App.WriteTimeout,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	closeErr := multierr.Combine(
		server.Shutdown(shutdownCtx),
		redisClient.Close(),
		dbClient.Close(),
	)
	if closeErr != nil {
		logg.Error(ctx, "api server shutdown incomplete", closeErr)
		exitCode = 1
	} else {
		logg.Info(ctx, "api server shut down gracefully")
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
