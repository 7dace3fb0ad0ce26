package healthz

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the HTTP listener carrying /healthz and /metrics. It is a
// thin wrapper around http.Server plus a readiness flag the caller flips
// once every UDP listener is bound.
type Server struct {
	http   *http.Server
	ready  atomic.Bool
	logger *zap.Logger
}

// NewServer builds the router bound to addr. Call SetReady(true) once
// startup has finished binding every UDP listener; /healthz returns 503
// until then.
func NewServer(addr string, reg *prometheus.Registry, logger *zap.Logger) *Server {
	s := &Server{logger: logger.Named("healthz")}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// SetReady flips the liveness flag /healthz reports.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start begins serving in a background goroutine. Listen failures are
// logged at Error rather than returned, matching how the rest of the
// process treats ambient surfaces that should never take the RADIUS data
// path down with them.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("health/metrics listener stopped", zap.Error(err))
		}
	}()
	s.logger.Info("health/metrics listener started", zap.String("addr", s.http.Addr))
}

// Close shuts the HTTP server down gracefully.
func (s *Server) Close(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
