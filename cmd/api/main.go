package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/snapstudio-backend/api/controllers"
	"github.com/angelmondragon/snapstudio-backend/api/routes"
	"github.com/angelmondragon/snapstudio-backend/internal/billing"
	"github.com/angelmondragon/snapstudio-backend/internal/credits"
	"github.com/angelmondragon/snapstudio-backend/internal/events"
	"github.com/angelmondragon/snapstudio-backend/internal/generation"
	"github.com/angelmondragon/snapstudio-backend/internal/ledger"
	"github.com/angelmondragon/snapstudio-backend/internal/operations"
	"github.com/angelmondragon/snapstudio-backend/internal/pricing"
	"github.com/angelmondragon/snapstudio-backend/internal/usage"
	stripewebhook "github.com/angelmondragon/snapstudio-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/snapstudio-backend/pkg/config"
	"github.com/angelmondragon/snapstudio-backend/pkg/db"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
	"github.com/angelmondragon/snapstudio-backend/pkg/metrics"
	"github.com/angelmondragon/snapstudio-backend/pkg/migrate"
	"github.com/angelmondragon/snapstudio-backend/pkg/outbox"
	"github.com/angelmondragon/snapstudio-backend/pkg/redis"
	"github.com/angelmondragon/snapstudio-backend/pkg/storage/gcs"
	pkgstripe "github.com/angelmondragon/snapstudio-backend/pkg/stripe"
)

const (
	artifactURLTTL  = 15 * time.Minute
	shutdownTimeout = 20 * time.Second
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

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	readiness := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}

	var artifactStore gcs.ArtifactStore
	if cfg.GCS.BucketName != "" {
		gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap gcs", err)
			os.Exit(1)
		}
		defer func() {
			if err := gcsClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing gcs", err)
			}
		}()
		artifactStore = gcsClient
		readiness["gcs"] = gcsClient
	} else {
		logg.Warn(context.Background(), "gcs bucket not configured, artifact links and deletion disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

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
	operationsRepo := operations.NewRepository(dbClient.DB())

	gate, err := credits.NewGate(credits.GateParams{
		Ledger:     ledgerService,
		Operations: operationsRepo,
		Pricing:    pricingService,
		Usage:      aggregator,
		Outbox:     emitter,
		Metrics:    ledgerMetrics,
		Logger:     logg,
	})
	exitOnErr(logg, "credit gate", err)

	generator, err := generation.NewHTTPGenerator(cfg.Generation.Endpoint, cfg.Generation.APIKey, &http.Client{Timeout: cfg.Generation.Timeout})
	exitOnErr(logg, "generator", err)

	generationService, err := generation.NewService(generation.ServiceParams{
		Gate:        gate,
		Generator:   generator,
		MaxParallel: cfg.Generation.MaxParallel,
		Timeout:     cfg.Generation.Timeout,
		Metrics:     ledgerMetrics,
		Logger:      logg,
	})
	exitOnErr(logg, "generation service", err)

	operationsService, err := operations.NewService(operations.ServiceParams{
		Repo:       operationsRepo,
		Store:      artifactStore,
		ReadURLTTL: artifactURLTTL,
		Logger:     logg,
	})
	exitOnErr(logg, "operations service", err)

	successURL, cancelURL := cfg.Stripe.CheckoutURLs(cfg.App.FrontendURL)
	billingService, err := billing.NewService(billing.ServiceParams{
		Catalog:    pricingService,
		Accounts:   ledgerService,
		Sessions:   stripeClient,
		Limiter:    redisClient,
		RateLimit:  cfg.Credits.CheckoutRateLimit,
		RateWindow: cfg.Credits.CheckoutRateWindow,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Logger:     logg,
	})
	exitOnErr(logg, "billing service", err)

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Ledger:        ledgerService,
		Events:        events.NewRecorder(dbClient.DB()),
		Packages:      pricingService,
		LineItems:     stripeClient,
		Outbox:        emitter,
		SigningSecret: stripeClient.SigningSecret(),
		Livemode:      stripeClient.Livemode(),
		Metrics:       ledgerMetrics,
		Logger:        logg,
	})
	exitOnErr(logg, "stripe webhook service", err)

	router := routes.NewRouter(cfg, logg, routes.Dependencies{
		Store:          redisClient,
		Readiness:      readiness,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Accounts:       ledgerService,
		Usage:          aggregator,
		Generation:     generationService,
		Quoter:         pricingService,
		Operations:     operationsService,
		Gate:           gate,
		Prices:         pricingService,
		Reconciler:     ledgerService,
		Checkout:       billingService,
		Webhooks:       webhookService,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down gracefully")
	}
}

func exitOnErr(logg *logger.Logger, component string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to build "+component, err)
	os.Exit(1)
}
