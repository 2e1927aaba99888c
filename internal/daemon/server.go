// Package daemon exposes monitoring sessions over a local HTTP API: session
// creation, incremental status polling, and a live SSE log stream.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cgale/vigil/internal/config"
	"github.com/cgale/vigil/internal/logger"
	"github.com/cgale/vigil/internal/monitor"
	"github.com/cgale/vigil/internal/store"
)

// Server represents the vigil HTTP daemon
type Server struct {
	httpServer  *http.Server
	handlers    *Handlers
	broadcaster *SSEBroadcaster
	lifecycle   *Lifecycle
	port        int
}

// NewServer creates a new daemon server
func NewServer(cfg *config.Config, st store.SessionStore, registry *monitor.Registry, version string) *Server {
	handlers := NewHandlers(st, registry, version)
	broadcaster := NewSSEBroadcaster(st)
	lifecycle := NewLifecycle(cfg.Settings.Daemon)

	port := cfg.Settings.Daemon.Port
	if port == 0 {
		port = 8764
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.Health)
	mux.HandleFunc("POST /api/sessions", handlers.CreateSession)
	mux.HandleFunc("GET /api/sessions", handlers.Sessions)
	mux.HandleFunc("GET /api/sessions/{id}", handlers.SessionDetail)
	mux.HandleFunc("GET /api/sessions/{id}/status", handlers.SessionStatus)

	mux.HandleFunc("GET /sse/logs", broadcaster.ServeHTTP)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("127.0.0.1:%d", port),
			Handler:           corsMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
		},
		handlers:    handlers,
		broadcaster: broadcaster,
		lifecycle:   lifecycle,
		port:        port,
	}
}

// Start starts the server
func (s *Server) Start(ctx context.Context) error {
	if err := s.lifecycle.WritePID(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	s.broadcaster.Start(ctx)

	logger.Info().
		Int("port", s.port).
		Str("url", fmt.Sprintf("http://127.0.0.1:%d", s.port)).
		Msg("Starting vigil daemon")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	logger.Info().Msg("Stopping vigil daemon")

	s.broadcaster.Stop()

	_ = s.lifecycle.RemovePID()

	return s.httpServer.Shutdown(ctx)
}

// Port returns the server port
func (s *Server) Port() int {
	return s.port
}

// Lifecycle returns the lifecycle manager
func (s *Server) Lifecycle() *Lifecycle {
	return s.lifecycle
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
