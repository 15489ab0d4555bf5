package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// StatusServer exposes liveness and queue state for the daemon over HTTP.
// It serves exactly two read-only endpoints; training traffic never goes
// through it.
type StatusServer struct {
	server  *http.Server
	router  *http.ServeMux
	worker  *Worker
	version string
	started time.Time
}

// NewStatusServer builds the status server for the given worker.
func NewStatusServer(addr string, w *Worker, version string) *StatusServer {
	s := &StatusServer{
		router:  http.NewServeMux(),
		worker:  w,
		version: version,
		started: time.Now(),
	}

	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)

	handler := correlationIDMiddleware(recoveryMiddleware(loggingMiddleware(s.router)))
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *StatusServer) Start() error {
	slog.Info("starting status server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	var processed, failed int64
	connected := false
	if s.worker != nil {
		processed, failed = s.worker.Stats()
		connected = s.worker.Connected()
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":          "running",
		"version":         s.version,
		"uptime_seconds":  int64(time.Since(s.started).Seconds()),
		"queue_connected": connected,
		"jobs_processed":  processed,
		"jobs_failed":     failed,
	})
}

func (s *StatusServer) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "error", err)
	}
}
