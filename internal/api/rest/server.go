package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/safeworkhq/compliance-backend/internal/infrastructure/config"
)

// NewRouter assembles the full HTTP handler: routes, metrics endpoint, and
// the shared middleware chain.
func NewRouter(h *Handler, cfg *config.Config, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	ingestLimit := RateLimitMiddleware(
		float64(cfg.Security.RateLimit.RequestsPerSecond),
		cfg.Security.RateLimit.BurstSize,
	)
	h.RegisterRoutes(mux, ingestLimit)

	mux.Handle("GET /metrics", promhttp.Handler())

	return Chain(mux,
		RecoveryMiddleware(logger),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		MetricsMiddleware(mux),
		AuthMiddleware([]byte(cfg.Security.JWTSecret)),
	)
}

// Server wraps the http.Server with graceful shutdown.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	shutdown   time.Duration
}

func NewServer(cfg *config.Config, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  120 * time.Second,
		},
		logger:   logger,
		shutdown: cfg.Server.ShutdownTimeout,
	}
}

// Start serves until the context is canceled, then drains in-flight requests
// within the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
