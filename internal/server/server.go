// Package server exposes the monitor over a small local HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tnunamak/gravmeter/internal/metrics"
	"github.com/tnunamak/gravmeter/internal/monitor"
	"github.com/tnunamak/gravmeter/internal/present"
)

// refreshTimeout bounds a poll started by POST /refresh. The poll is not
// tied to the request, so a client hanging up does not fail it.
const refreshTimeout = 30 * time.Second

// Monitor is the part of *monitor.Monitor the server drives.
type Monitor interface {
	Snapshot() (monitor.Snapshot, bool)
	Poll(ctx context.Context) (monitor.Snapshot, error)
	Reconnect()
}

type Server struct {
	mon    Monitor
	logger zerolog.Logger
	server *http.Server
	ln     net.Listener
}

func New(mon Monitor, logger zerolog.Logger) *Server {
	s := &Server{mon: mon, logger: logger.With().Str("component", "http").Logger()}
	s.server = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes builds the router. It is exported for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Get("/usage", s.handleUsage)
	r.Get("/report", s.handleReport)
	r.Post("/refresh", s.handleRefresh)
	r.Post("/reconnect", s.handleReconnect)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

// Start binds addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("serving usage API")

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("http server error")
		}
	}()
	return nil
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.mon.Snapshot()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no usage yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.mon.Snapshot()
	if !ok || snap.Record == nil {
		writeError(w, http.StatusServiceUnavailable, "no usage yet")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := present.RenderReport(w, snap.Record, present.ReportOptions{Stale: snap.Stale, Error: snap.Err})
	if err != nil {
		s.logger.Error().Err(err).Msg("render report")
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), refreshTimeout)
	defer cancel()
	snap, err := s.mon.Poll(ctx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, snap)
	case errors.Is(err, monitor.ErrPollInFlight), errors.Is(err, monitor.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, monitor.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSON(w, http.StatusBadGateway, snap)
	}
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	s.mon.Reconnect()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconnecting"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func loggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("request_id", middleware.GetReqID(r.Context())).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
