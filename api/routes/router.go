package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/snapstudio-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/snapstudio-backend/api/controllers/webhooks"
	"github.com/angelmondragon/snapstudio-backend/api/middleware"
	"github.com/angelmondragon/snapstudio-backend/pkg/config"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
)

// Store is the Redis surface the router needs: idempotency replay and rate
// limiting.
type Store interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// Dependencies are the services the HTTP surface is wired to.
type Dependencies struct {
	Store          Store
	Readiness      map[string]controllers.Pinger
	MetricsHandler http.Handler

	Accounts   controllers.AccountService
	Usage      controllers.UsageReader
	Generation controllers.GenerationRunner
	Quoter     controllers.Quoter
	Operations controllers.OperationReader
	Gate       controllers.CreditGate
	Prices     controllers.PriceTableAdmin
	Reconciler controllers.Reconciler
	Checkout   controllers.CheckoutService
	Webhooks   webhookcontrollers.StripeWebhookService
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.FrontendURL),
	)

	generationPolicy := middleware.NewRateLimitPolicy("operations", cfg.Generation.RateWindow, cfg.Generation.RateLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.Webhooks, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(logg, enums.RoleUser, enums.RoleAdmin))
			r.Use(middleware.Idempotency(deps.Store, logg))

			r.Post("/account", controllers.AccountOpen(deps.Accounts, logg))
			r.Get("/account", controllers.AccountGet(deps.Accounts, logg))
			r.Get("/account/transactions", controllers.AccountTransactions(deps.Accounts, logg))
			r.Get("/account/usage", controllers.AccountUsage(deps.Usage, logg))

			r.With(middleware.RateLimit(generationPolicy, deps.Store, logg)).Post("/operations", controllers.OperationCreate(deps.Generation, logg))
			r.Post("/operations/quote", controllers.OperationQuote(deps.Quoter, logg))
			r.Get("/operations", controllers.OperationList(deps.Operations, logg))
			r.Get("/operations/{operationId}", controllers.OperationGet(deps.Operations, logg))
			r.Delete("/operations/{operationId}", controllers.OperationDelete(deps.Operations, logg))

			r.Get("/credits/packages", controllers.CreditsPackages(deps.Checkout, logg))
			r.Post("/credits/checkout", controllers.CreditsCheckout(deps.Checkout, logg))
		})
	})

	r.Route("/api/internal/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(logg, enums.RoleService))
			r.Use(middleware.Idempotency(deps.Store, logg))
			r.Post("/authorizations", controllers.InternalAuthorize(deps.Gate, logg))
			r.Post("/operations/{operationId}/finalize", controllers.InternalFinalize(deps.Gate, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
			r.Use(middleware.Idempotency(deps.Store, logg))
			r.Get("/price-table", controllers.AdminPriceTableGet(deps.Prices, logg))
			r.Put("/price-table", controllers.AdminPriceTableUpdate(deps.Prices, logg))
			r.Get("/accounts/{accountId}/reconcile", controllers.AdminReconcile(deps.Reconciler, logg))
		})
	})

	return r
}
