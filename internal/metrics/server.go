package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server exposes /metrics on its own HTTP listener, independent of the
// node's line-oriented data transport.
type Server struct {
	httpServer *http.Server
	log        *logrus.Entry
}

// NewServer builds a metrics server bound to addr, not yet listening.
func NewServer(addr string, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		log:        log.WithField("component", "metrics"),
	}
}

// Start launches ListenAndServe in its own goroutine.
func (s *Server) Start() {
	s.log.WithField("addr", s.httpServer.Addr).Info("metrics server starting")
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("metrics server error")
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.WithError(err).Warn("metrics server shutdown error")
	}
	s.log.Info("metrics server stopped")
}
