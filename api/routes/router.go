package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stickerlab/stickerlab/api/controllers"
	"github.com/stickerlab/stickerlab/api/middleware"
	"github.com/stickerlab/stickerlab/api/responses"
	"github.com/stickerlab/stickerlab/internal/app"
	"github.com/stickerlab/stickerlab/pkg/config"
	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/logger"
)

// NewRouter mounts the loopback API over the service container.
func NewRouter(cfg *config.Config, logg *logger.Logger, c *app.Container) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		responses.WriteError(req.Context(), nil, w, pkgerrors.New(pkgerrors.CodeNotFound, "route not found"))
	})

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, c, logg))
	})
	if cfg.Metrics.Enabled && c.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{}))
	}

	sessionPolicy := middleware.NewRateLimitPolicy(
		"session",
		cfg.RateLimit.Window,
		cfg.RateLimit.SessionLimit,
		cfg.RateLimit.SessionLimit,
	)
	createPolicy := middleware.NewRateLimitPolicy(
		"create",
		cfg.RateLimit.Window,
		cfg.RateLimit.CreateLimit,
		0,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(c.Leases, logg))

		r.Route("/session", func(r chi.Router) {
			r.With(middleware.RateLimit(sessionPolicy, c.Leases, logg)).Post("/", controllers.SessionLogin(c.Account, c.Credits, logg))
			r.Get("/", controllers.SessionCurrent(c.Account, c.Credits, logg))
		})

		r.Route("/credits", func(r chi.Router) {
			r.Get("/", controllers.CreditsBalance(c.Credits, logg))
			r.Post("/purchase", controllers.CreditsPurchase(c.Billing, logg))
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/credit-packages", controllers.CatalogCreditPackages())
			r.Get("/sticker-packs", controllers.CatalogStickerPacks(c.Billing, logg))
			r.Post("/sticker-packs/{packId}/claim", controllers.CatalogClaimPack(c.Billing, logg))
		})

		r.Route("/stickers", func(r chi.Router) {
			r.With(middleware.RateLimit(createPolicy, c.Leases, logg)).Post("/", controllers.StickersCreate(c.Creation, logg))
			r.Get("/", controllers.StickersList(c.Stickers, logg))
			r.Get("/{stickerId}", controllers.StickersGet(c.Stickers, logg))
			r.Post("/{stickerId}/export", controllers.StickersExport(c.Gallery, logg))
		})
	})

	return r
}
