// Package api assembles the HTTP surface of the dispensing service.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/drfirst/go-dispense/internal/api/handlers"
	"github.com/drfirst/go-dispense/internal/api/middleware"
	"github.com/drfirst/go-dispense/internal/dispensing"
)

// ServiceName is reported by the health endpoint and used as the tracer name
const ServiceName = "dispense-api"

// Version is the API version reported by the health endpoint
const Version = "1.0.0"

// RouterConfig carries the optional pieces of the router
type RouterConfig struct {
	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
	// Metrics is mounted at /metrics when set
	Metrics http.Handler
	// CORSOrigins lists allowed origins; empty or "*" allows all
	CORSOrigins []string
}

// NewRouter builds the chi router with global middleware, probes and the
// /api routes
func NewRouter(svc *dispensing.Service, logger *zap.Logger, cfg RouterConfig) chi.Router {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing(ServiceName))

	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(r.Context()); err != nil {
				logger.Warn("readiness check failed", zap.Error(err))
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	patients := handlers.NewPatientHandler(svc, logger)
	prescriptions := handlers.NewPrescriptionHandler(svc, logger)
	slots := handlers.NewSlotHandler(svc, logger)

	r.Route("/api", func(r chi.Router) {
		r.Mount("/patients", patients.Routes())
		r.Mount("/prescriptions", prescriptions.Routes())
		r.Mount("/slots", slots.Routes())
		r.Get("/medicines", slots.Medicines)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":%q,"version":%q}`, ServiceName, Version)
}
