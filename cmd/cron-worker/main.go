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

	"github.com/angelmondragon/snapstudio-backend/internal/credits"
	"github.com/angelmondragon/snapstudio-backend/internal/cron"
	"github.com/angelmondragon/snapstudio-backend/internal/ledger"
	"github.com/angelmondragon/snapstudio-backend/internal/operations"
	"github.com/angelmondragon/snapstudio-backend/internal/pricing"
	"github.com/angelmondragon/snapstudio-backend/internal/usage"
	"github.com/angelmondragon/snapstudio-backend/pkg/bigquery"
	"github.com/angelmondragon/snapstudio-backend/pkg/config"
	"github.com/angelmondragon/snapstudio-backend/pkg/db"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
	"github.com/angelmondragon/snapstudio-backend/pkg/metrics"
	"github.com/angelmondragon/snapstudio-backend/pkg/migrate"
	"github.com/angelmondragon/snapstudio-backend/pkg/outbox"
	"github.com/angelmondragon/snapstudio-backend/pkg/redis"
)

const lockKeyFormat = "ss:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap bigquery", err)
		os.Exit(1)
	}
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing bigquery", err)
		}
	}()

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	outboxRepo := outbox.NewRepository(dbClient.DB())
	emitter := outbox.NewService(outboxRepo, logg)

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:        ledger.NewRepository(dbClient.DB()),
		TxRunner:    dbClient,
		Outbox:      emitter,
		Metrics:     ledgerMetrics,
		Logger:      logg,
		SignupGrant: cfg.Credits.SignupGrant,
		MaxAttempts: cfg.Credits.AuthorizeMaxAttempts,
	})
	exitOnErr(logg, "ledger service", err)

	pricingService, err := pricing.NewService(pricing.ServiceParams{
		Repo:     pricing.NewRepository(dbClient.DB()),
		TxRunner: dbClient,
		CacheTTL: cfg.Credits.PriceCacheTTL,
		Logger:   logg,
	})
	exitOnErr(logg, "pricing service", err)

	aggregator := usage.NewAggregator(dbClient.DB())
	gate, err := credits.NewGate(credits.GateParams{
		Ledger:     ledgerService,
		Operations: operations.NewRepository(dbClient.DB()),
		Pricing:    pricingService,
		Usage:      aggregator,
		Outbox:     emitter,
		Metrics:    ledgerMetrics,
		Logger:     logg,
	})
	exitOnErr(logg, "credit gate", err)

	staleJob, err := cron.NewStaleOperationJob(cron.StaleOperationJobParams{
		Logger:     logg,
		Releaser:   gate,
		StaleAfter: cfg.Credits.OperationStaleAfter,
		BatchSize:  cfg.Cron.StaleBatchSize,
	})
	exitOnErr(logg, "stale operation job", err)

	usageJob, err := cron.NewUsageExportJob(cron.UsageExportJobParams{
		Logger:   logg,
		Usage:    aggregator,
		Inserter: bqClient,
		Table:    bqClient.UsageDailyTable(),
	})
	exitOnErr(logg, "usage export job", err)

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.RetentionDays,
	})
	exitOnErr(logg, "outbox retention job", err)

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	exitOnErr(logg, "cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(staleJob, usageJob, retentionJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	exitOnErr(logg, "cron service", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func exitOnErr(logg *logger.Logger, component string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to build "+component, err)
	os.Exit(1)
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
