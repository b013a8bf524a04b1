// Package adminserver exposes /metrics and health probes for the background
// binaries, which have no public API router.
package adminserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/types"
)

const (
	probeTimeout    = 3 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Probe reports whether one dependency is usable.
type Probe func(context.Context) error

type Server struct {
	addr    string
	handler http.Handler
	logg    *logger.Logger
}

// New builds the admin server. An empty addr disables it: Run then blocks
// until ctx is done without listening.
func New(addr string, gatherer prometheus.Gatherer, probes map[string]Probe, logg *logger.Logger) *Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusOK, "alive", nil)
	})
	r.Get("/health/ready", readyHandler(probes))
	return &Server{addr: addr, handler: r, logg: logg}
}

func (s *Server) Handler() http.Handler { return s.handler }

func readyHandler(probes map[string]Probe) http.HandlerFunc {
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		checks := make(map[string]string, len(names))
		ready := true
		for _, name := range names {
			if err := probes[name](ctx); err != nil {
				checks[name] = err.Error()
				ready = false
				continue
			}
			checks[name] = "ok"
		}
		status := http.StatusOK
		detail := "ready"
		if !ready {
			status, detail = http.StatusServiceUnavailable, "not ready"
		}
		writeEnvelope(w, status, detail, checks)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.addr == "" {
		<-ctx.Done()
		return nil
	}
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logg.Info(s.logg.WithField(ctx, "addr", s.addr), "admin server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func writeEnvelope(w http.ResponseWriter, status int, detail string, data any) {
	success := 1
	if status >= http.StatusBadRequest {
		success = 0
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.Envelope{Success: success, Detail: detail, Data: data})
}
