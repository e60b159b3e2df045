package web

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/datachat-ai/datachat/internal/store"
)

type sessionRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "New conversation"
	}

	session, err := s.store.CreateSession(r.Context(), requestUser(r).ID, name)
	if err != nil {
		s.logger.Error("failed to create session", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, session, s.logger)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context(), requestUser(r).ID)
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions}, s.logger)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, requestSession(r), s.logger)
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.errorResponse(w, http.StatusBadRequest, "name is required")
		return
	}

	session := requestSession(r)
	if err := s.store.RenameSession(r.Context(), session.ID, name); err != nil {
		s.logger.Error("failed to rename session", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to rename session")
		return
	}
	session.Name = name
	writeJSON(w, http.StatusOK, session, s.logger)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	session := requestSession(r)
	if err := s.store.DeleteSession(r.Context(), session.ID); err != nil {
		s.logger.Error("failed to delete session", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	s.registry.Drop(session.ID)
	s.hub.CloseSession(session.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleListExchanges returns a session's exchange history, optionally
// limited to exchanges created at or after a ?since=RFC3339 timestamp.
func (s *Server) handleListExchanges(w http.ResponseWriter, r *http.Request) {
	session := requestSession(r)

	var (
		exchanges []*store.Exchange
		err       error
	)
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			s.errorResponse(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		exchanges, err = s.store.ListExchangesSince(r.Context(), session.ID, since)
	} else {
		exchanges, err = s.store.ListExchanges(r.Context(), session.ID)
	}
	if err != nil {
		s.logger.Error("failed to list exchanges", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list exchanges")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exchanges": exchanges}, s.logger)
}
