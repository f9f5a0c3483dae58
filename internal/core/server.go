// Package core provides the HTTP chassis for the weather forecast service.
// It owns the chi router and enforces cross-cutting concerns (recovery,
// logging, transport security, throttling, compression, metrics) before
// requests reach domain handlers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"weatherforecast/internal/config"
)

// MetricsCollector records API request telemetry.
type MetricsCollector interface {
	// RecordRequest records latency and count for one completed request.
	// endpoint is the matched route pattern, not the raw path.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a handler's routes on the root router.
type RouteRegistrar func(r chi.Router)

// Server holds the chassis dependencies. Optional collaborators (Metrics,
// RateLimiter, HealthProbes) are nil-safe and set after NewServer.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Metrics      MetricsCollector
	RateLimiter  *ClientRateLimiter
	ClientIP     *ClientIPResolver
	HealthProbes []HealthProbe

	// RouteRegistrars are applied by MountRoutes after the middleware chain.
	RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer validates required dependencies and prepares an empty router.
// Callers add registrars and then call MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	clientIP, err := NewClientIPResolver(cfg.Security.TrustedProxies)
	if err != nil {
		return nil, err
	}

	return &Server{
		Config:   cfg,
		Logger:   logger,
		ClientIP: clientIP,
		router:   chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for net/http and the
// Lambda adapter.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}
