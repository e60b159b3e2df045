// Package web implements the HTTP API: session CRUD, dataset upload,
// the message endpoint that drives the orchestrator, exchange history,
// and the per-session event feed.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/datachat-ai/datachat/internal/buildinfo"
	"github.com/datachat-ai/datachat/internal/dataset"
	"github.com/datachat-ai/datachat/internal/orchestrator"
	"github.com/datachat-ai/datachat/internal/store"
)

// writeJSON encodes v as JSON to w with the given status, logging
// encode failures at debug level. A failure here usually means the
// client disconnected mid-response.
func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	store    *store.Store
	registry *dataset.Registry
	orch     *orchestrator.Orchestrator
	hub      *Hub
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates the API server.
func NewServer(address string, port int, st *store.Store, registry *dataset.Registry, orch *orchestrator.Orchestrator, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:  address,
		port:     port,
		store:    st,
		registry: registry,
		orch:     orch,
		hub:      hub,
		logger:   logger,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/version", s.handleVersion)

	mux.Handle("POST /api/sessions", s.withUser(s.handleCreateSession))
	mux.Handle("GET /api/sessions", s.withUser(s.handleListSessions))
	mux.Handle("GET /api/sessions/{id}", s.withSession(s.handleGetSession))
	mux.Handle("PATCH /api/sessions/{id}", s.withSession(s.handleRenameSession))
	mux.Handle("DELETE /api/sessions/{id}", s.withSession(s.handleDeleteSession))

	mux.Handle("PUT /api/sessions/{id}/dataset", s.withSession(s.handlePutDataset))
	mux.Handle("GET /api/sessions/{id}/dataset/export", s.withSession(s.handleExportDataset))
	mux.Handle("GET /api/sessions/{id}/exchanges", s.withSession(s.handleListExchanges))
	mux.Handle("POST /api/sessions/{id}/messages", s.withSession(s.handleMessage))
	mux.Handle("GET /api/sessions/{id}/events", s.withSession(s.handleEvents))

	return s.withLogging(mux)
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", s.server.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.CloseAll()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{"error": message}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Info(), s.logger)
}
