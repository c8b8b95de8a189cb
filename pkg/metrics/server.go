// Package metrics exposes the scheduling core's Prometheus metrics over
// HTTP, alongside a liveness endpoint, as a standalone server a
// supervising process starts and stops around a run.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server wraps an http.Server exposing /metrics and /health.
type Server struct {
	server *http.Server
	log    *logrus.Logger
}

// NewServer builds a metrics server bound to the given port. Port may be
// "0" to let the OS choose, or any other string accepted as an address's
// port component.
func NewServer(port string, log *logrus.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    ":" + port,
			Handler: mux,
		},
		log: log,
	}
}

// StartAsync starts the HTTP server in a background goroutine. Errors
// other than a clean shutdown are logged, not returned, since the caller
// has no synchronous hook to receive them on.
func (s *Server) StartAsync() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("metrics server stopped unexpectedly")
		}
	}()
}

// Stop gracefully shuts down the server, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
