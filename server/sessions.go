package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/opsmind/opsmind/session"
)

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	var req struct {
		Metadata map[string]any `json:"metadata,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}

	sess, err := s.cfg.Sessions.CreateSession(r.Context(), req.Metadata)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleSessionSubresources(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/sessions/"))
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("session id is required"))
		return
	}
	sessionID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		if err := s.cfg.Sessions.DeleteSession(r.Context(), sessionID); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, session.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"deleted": sessionID})
		return
	}

	if len(parts) == 2 && parts[1] == "messages" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		messages, err := s.cfg.Sessions.ListMessages(r.Context(), sessionID, parseInt(r.URL.Query().Get("limit"), 0))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, session.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, http.StatusOK, messages)
		return
	}

	writeError(w, http.StatusNotFound, fmt.Errorf("unknown resource"))
}
