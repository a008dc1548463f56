// Package debugapi exposes tagstreamd's operator-facing HTTP surface:
// Prometheus scraping at /metrics and a liveness probe at /healthz. The
// router/middleware wiring (gorilla/mux plus gorilla/handlers) and the
// graceful listen/shutdown shape follow cmd/cc-backend/main.go's own HTTP
// server setup, trimmed down to the two debug endpoints this service needs
// — tagstreamd has no web UI or authenticated API to route.
package debugapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/photontag/tagstreamd/pkg/log"
)

// HealthChecker reports whether one dependency the process relies on
// (a connected device, an open tag file backend) is currently healthy.
// /healthz returns 503 if any registered checker errors.
type HealthChecker interface {
	Healthy() error
}

// Server is the debug HTTP listener.
type Server struct {
	addr   string
	srv    *http.Server
	checks map[string]HealthChecker
}

// New builds a Server that scrapes gatherer at /metrics and runs every
// registered HealthChecker at /healthz.
func New(addr string, gatherer prometheus.Gatherer) *Server {
	s := &Server{addr: addr, checks: make(map[string]HealthChecker)}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", s.handleHealthz)

	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	handler := handlers.CustomLoggingHandler(io.Discard, r, logFormatter)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// RegisterCheck adds a named dependency /healthz reports on.
func (s *Server) RegisterCheck(name string, c HealthChecker) {
	s.checks[name] = c
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	for name, c := range s.checks {
		if err := c.Healthy(); err != nil {
			log.Warnf("debugapi: healthz check %q failed: %v", name, err)
			http.Error(w, name+": "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ListenAndServe blocks serving requests until Shutdown is called.
func (s *Server) ListenAndServe() error {
	log.Infof("debugapi: listening at %s", s.addr)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func logFormatter(_ io.Writer, params handlers.LogFormatterParams) {
	log.Debugf("%s %s (%d, %dms)",
		params.Request.Method, params.URL.RequestURI(),
		params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
}
