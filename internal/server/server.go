// Package server assembles the HTTP surface: routes, middleware, lifecycle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/rory503/complaintwatch/internal/api"
	"github.com/rory503/complaintwatch/internal/cache"
	"github.com/rory503/complaintwatch/internal/config"
	"github.com/rory503/complaintwatch/internal/environment"
	"github.com/rory503/complaintwatch/internal/handlers"
	"github.com/rory503/complaintwatch/internal/middleware"
	"github.com/rory503/complaintwatch/internal/ratelimit"
)

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	logger     logrus.FieldLogger
}

// New creates a new HTTP server with all routes and middleware.
func New(
	logger logrus.FieldLogger,
	cfg *config.Config,
	strategy environment.Strategy,
	acquirer api.Acquirer,
	store cache.Store,
	limiter ratelimit.Service,
) (*Server, error) {
	if acquirer == nil {
		return nil, fmt.Errorf("acquirer cannot be nil")
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.Health(store))
	logger.WithField("route", "GET /health").Info("Registered route")

	mux.Handle("GET /metrics", promhttp.Handler())
	logger.WithField("route", "GET /metrics").Info("Registered route")

	complaintsHandler := api.NewComplaintsHandler(acquirer, strategy, logger)
	mux.Handle("GET /api/v1/complaints", complaintsHandler)
	logger.WithField("route", "GET /api/v1/complaints").Info("Registered route")

	trendsHandler := api.NewTrendsHandler(acquirer, strategy, logger)
	mux.Handle("GET /api/v1/trends", trendsHandler)
	logger.WithField("route", "GET /api/v1/trends").Info("Registered route")

	// Recovery is outermost so it catches panics from every other layer;
	// logging runs closest to the mux so it records the final status.
	handler := middleware.Logging(logger)(mux)
	handler = middleware.Metrics()(handler)

	if cfg.RateLimiting.Enabled && limiter != nil {
		handler = middleware.RateLimit(logger, cfg.RateLimiting, limiter)(handler)
		logger.WithField("rules", len(cfg.RateLimiting.Rules)).Info("Rate limiting enabled")
	}

	handler = middleware.CORS()(handler)
	handler = middleware.Recovery(logger)(handler)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		logger:     logger,
	}, nil
}

// Start starts the HTTP server (blocking call).
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting HTTP server")

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	return s.httpServer.Shutdown(ctx)
}
