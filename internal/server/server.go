// Package server implements the optional HTTP listener exposing Prometheus
// metrics and a storage health probe.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mclookup/internal/metrics"
)

// HealthSource reports the state of the persistence layer.
type HealthSource interface {
	Degraded() bool
	Failures() int64
	Counts(ctx context.Context) (servers, players int64, err error)
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	health  HealthSource
	metrics *metrics.Metrics
	token   string
}

// New creates a new Server. An empty token leaves /metrics unauthenticated.
func New(health HealthSource, m *metrics.Metrics, token string) *Server {
	return &Server{
		health:  health,
		metrics: m,
		token:   token,
	}
}

// Handler configures the HTTP routes and returns the main handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	metricsHandler := promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{
		Registry: s.metrics.Registry,
	})
	mux.Handle("GET /metrics", AdminAuthMiddleware(s.token, metricsHandler))
	mux.Handle("GET /healthz", http.HandlerFunc(s.handleHealth))

	return LoggingMiddleware(mux)
}

// ListenAndServe serves on address until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	httpServer := &http.Server{
		Addr:         address,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", address).Msg("Metrics server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Metrics server forced to shutdown")
		return err
	}

	return nil
}
