package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/attenda/clinic-assistant/internal/http/handlers"
	httpmiddleware "github.com/attenda/clinic-assistant/internal/http/middleware"
	"github.com/attenda/clinic-assistant/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger       *logging.Logger
	Chat         *handlers.ChatWebhookHandler
	Availability *handlers.AvailabilityHandler
	Operator     *handlers.OperatorHandler

	OperatorJWTSecret string
	MetricsHandler    http.Handler

	// Per-IP rate limit for public endpoints. Zero disables limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints.
	r.Group(func(public chi.Router) {
		if cfg.RateLimitPerSecond > 0 {
			public.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
		}
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.Chat != nil {
			public.Post("/webhooks/chat", cfg.Chat.HandleInbound)
		}
		if cfg.Availability != nil {
			public.Get("/availability", cfg.Availability.HandleList)
		}
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Operator endpoints behind JWT auth.
	if cfg.Operator != nil {
		r.Route("/operator", func(op chi.Router) {
			op.Use(httpmiddleware.OperatorJWT(cfg.OperatorJWTSecret))
			op.Post("/conversations/{id}/resolve", cfg.Operator.HandleResolve)
			op.Post("/appointments/{id}/cancel", cfg.Operator.HandleCancel)
			op.Post("/appointments/{id}/reschedule", cfg.Operator.HandleReschedule)
		})
	}

	return r
}
