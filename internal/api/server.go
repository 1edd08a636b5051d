// Package api exposes the backend callables consumed by the mobile client:
// sponsor discovery and co-signed transaction submission.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/split-wallet/split-wallet/internal/config"
	"github.com/split-wallet/split-wallet/internal/logger"
	"github.com/split-wallet/split-wallet/internal/middleware"
)

// Server represents the HTTP server
type Server struct {
	config      *config.Config
	signing     SigningService
	rateLimiter *middleware.RateLimiter
	registry    *prometheus.Registry
	httpServer  *http.Server
}

// NewServer creates a new API server. signing may be nil when no sponsor key
// is configured; sponsor endpoints then answer sponsor_unconfigured.
func NewServer(cfg *config.Config, signing SigningService, registry *prometheus.Registry) *Server {
	return &Server{
		config:      cfg,
		signing:     signing,
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitEnabled),
		registry:    registry,
	}
}

// Handler returns the fully-chained handler.
// Chain: RequestID -> Logging -> Rate limit -> Body limit -> Routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/v1/sponsor/address", s.handleSponsorAddress)
	mux.HandleFunc("/v1/sponsor/balance", s.handleSponsorBalance)
	mux.HandleFunc("/v1/transactions/sign-and-submit", s.handleSignAndSubmit)

	return middleware.RequestID(
		s.loggingMiddleware(
			s.rateLimiter.Limit(
				middleware.LimitBody(mux))))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// Confirmation polling can hold a response open for the full
		// submission budget.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info(context.Background(), "starting server", "port", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := middleware.NewStatusRecorder(w)

		next.ServeHTTP(recorder, r)

		logger.Info(r.Context(), "request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.StatusCode,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
