// Package api exposes the submission coordinator to a local UI over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/submitq/internal/log"
	"github.com/cybertec-postgresql/submitq/internal/queue"
	"github.com/cybertec-postgresql/submitq/internal/sync"
)

const shutdownTimeout = 10 * time.Second

// Coordinator is the part of sync.Coordinator the API needs
type Coordinator interface {
	Submit(ctx context.Context, fields queue.Fields, attachment []byte) sync.Result
	RequestDrain()
}

// Connectivity is the part of connectivity.Monitor the API needs
type Connectivity interface {
	Current() bool
	Sequence() uint64
}

// Server serves the local API
type Server struct {
	httpServer *http.Server
	logger     *logrus.Entry
}

// NewRouter builds the routes. It is separate from New so tests can mount
// it on httptest.
func NewRouter(coord Coordinator, conn Connectivity) *chi.Mux {
	h := &handlers{coord: coord, conn: conn, logger: log.WithComponent("api")}

	r := chi.NewRouter()
	r.Use(LoggingMiddleware, MetricsMiddleware)

	r.Get("/health/live", h.live)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/products", h.submitProduct)
		r.Get("/product-types", h.productTypes)
		r.Get("/connectivity", h.connectivity)
		r.Post("/sync", h.requestSync)
	})
	return r
}

// New creates a server listening on addr
func New(addr string, coord Coordinator, conn Connectivity) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(coord, conn),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: log.WithComponent("api"),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.httpServer.Addr).Info("HTTP server started")
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
