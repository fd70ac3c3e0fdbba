// Package router assembles the HTTP surface: public channel webhooks,
// health and metrics, and token-guarded operator endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xonelabs/xonebot/internal/http/handlers"
	httpmiddleware "github.com/xonelabs/xonebot/internal/http/middleware"
	"github.com/xonelabs/xonebot/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Webhooks           *handlers.WebhookHandler
	Numbers            *handlers.NumbersHandler
	MetricsHandler     http.Handler
	AdminToken         string
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhooks != nil {
			public.Route("/webhooks", func(r chi.Router) {
				r.Post("/voice", cfg.Webhooks.HandleVoice)
				r.Post("/chat", cfg.Webhooks.HandleChat)
				r.Post("/whatsapp", cfg.Webhooks.HandleWhatsApp)
			})
		}
	})

	// Operator endpoints (number lifecycle, session tooling)
	if cfg.Numbers != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(requireAdminToken(cfg.AdminToken))
			admin.Route("/numbers", func(r chi.Router) {
				r.Get("/search", cfg.Numbers.Search)
				r.Post("/provision", cfg.Numbers.Provision)
				r.Delete("/{numberID}", cfg.Numbers.Release)
				r.Post("/existing", cfg.Numbers.SetupExisting)
				r.Post("/existing/{numberID}/verify", cfg.Numbers.VerifyExisting)
			})
			admin.Post("/sessions/{sessionID}/reset", cfg.Numbers.ResetSession)
		})
	}

	return r
}
