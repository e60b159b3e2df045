package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/datachat-ai/datachat/internal/orchestrator"
	"github.com/datachat-ai/datachat/internal/quota"
)

type messageRequest struct {
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty"` // primary, secondary, automatic
}

// messageResponse is the orchestrator response plus rendered HTML for
// clients that display rich text.
type messageResponse struct {
	*orchestrator.Response
	MessageHTML string `json:"messageHtml,omitempty"`
}

// handleMessage runs one full exchange. Quota rejection is the only
// request-level failure mode; backend failures come back as a normal
// response carrying an error field, because the attempt was made and
// persisted.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	resp, err := s.orch.HandleMessage(r.Context(), orchestrator.Request{
		Session:    requestSession(r),
		User:       requestUser(r),
		Message:    message,
		Preference: req.Provider,
	})
	if err != nil {
		var qe *quota.Error
		if errors.As(err, &qe) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":   qe.Error(),
				"limit":   qe.Limit,
				"current": qe.Current,
			}, s.logger)
			return
		}
		s.logger.Error("exchange aborted", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	html, err := renderMarkdown(resp.Message)
	if err != nil {
		s.logger.Debug("markdown rendering failed", "error", err)
		html = ""
	}
	writeJSON(w, http.StatusOK, messageResponse{Response: resp, MessageHTML: html}, s.logger)
}
