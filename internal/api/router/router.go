// Package router wires the HTTP surface of the scheduling service.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wellspring-care/teletherapy-platform/internal/http/handlers"
	httpmiddleware "github.com/wellspring-care/teletherapy-platform/internal/http/middleware"
	"github.com/wellspring-care/teletherapy-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Scheduling         *handlers.SchedulingHandler
	AdminProviders     *handlers.AdminProvidersHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	HealthCheck        http.HandlerFunc
}

// New creates a Chi router with all routes configured.
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

	// Public endpoints
	r.Group(func(public chi.Router) {
		if cfg.HealthCheck != nil {
			public.Get("/health", cfg.HealthCheck)
		} else {
			public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"status":"ok"}`))
			})
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Booking API
	if cfg.Scheduling != nil {
		r.Route("/sessions", func(s chi.Router) {
			s.Post("/", cfg.Scheduling.CreateSession)
			s.Get("/{calendarID}/{eventID}", cfg.Scheduling.GetSession)
			s.Patch("/{calendarID}/{eventID}", cfg.Scheduling.RescheduleSession)
			s.Delete("/{calendarID}/{eventID}", cfg.Scheduling.CancelSession)
		})
		r.Get("/providers/{providerID}/availability", cfg.Scheduling.GetAvailability)
	}

	// Admin API
	if cfg.Scheduling == nil && cfg.AdminProviders == nil {
		return r
	}
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		if cfg.Scheduling != nil {
			admin.Post("/cache/invalidate", cfg.Scheduling.InvalidateAllCaches)
			admin.Post("/cache/providers/{providerID}/invalidate", cfg.Scheduling.InvalidateProviderCache)
		}
		if cfg.AdminProviders != nil {
			admin.Put("/providers/{providerID}/calendar-settings", cfg.AdminProviders.UpdateCalendarSettings)
		}
	})

	return r
}
