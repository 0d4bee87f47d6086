package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/portal-crm-backend/api/controllers"
	quotecontrollers "github.com/angelmondragon/portal-crm-backend/api/controllers/quotes"
	"github.com/angelmondragon/portal-crm-backend/api/middleware"
	products "github.com/angelmondragon/portal-crm-backend/internal/products"
	"github.com/angelmondragon/portal-crm-backend/internal/quotes"
	"github.com/angelmondragon/portal-crm-backend/pkg/config"
	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
	"github.com/angelmondragon/portal-crm-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/portal-crm-backend/pkg/redis"
)

// Dependencies collects what the router hands to controllers.
type Dependencies struct {
	DB               controllers.Pinger
	Redis            controllers.Pinger
	Sessions         middleware.SessionChecker
	IdempotencyStore pkgredis.IdempotencyStore
	Quotes           quotes.Service
	Products         products.Service
	Gatherer         prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.Idempotency(deps.IdempotencyStore, cfg.Redis.IdempotencyTTL, logg))

		r.Get("/products/list/active", controllers.ListActiveProducts(deps.Products, logg))

		r.Route("/quotes", func(r chi.Router) {
			r.Get("/", quotecontrollers.List(deps.Quotes, logg))
			r.Get("/{quoteId}", quotecontrollers.Detail(deps.Quotes, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAnyRole(logg, enums.QuoteWriterRoles()...))
				r.Post("/", quotecontrollers.Create(deps.Quotes, logg))
				r.Put("/{quoteId}", quotecontrollers.Update(deps.Quotes, logg))
				r.Delete("/{quoteId}", quotecontrollers.Delete(deps.Quotes, logg))
				r.Patch("/{quoteId}/status", quotecontrollers.UpdateStatus(deps.Quotes, logg))
				r.Post("/{quoteId}/clone", quotecontrollers.Clone(deps.Quotes, logg))
				r.Post("/{quoteId}/convert-to-deal", quotecontrollers.ConvertToDeal(deps.Quotes, logg))
			})
		})
	})

	return r
}
