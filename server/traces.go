package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	observestore "github.com/opsmind/opsmind/observe/store"
)

// handleRuns serves the persisted runtime trace: per-run event lists and an
// aggregate summary. Returns 404 when no trace store is configured.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Traces == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("trace store is not configured"))
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/runs/"))

	if len(parts) == 1 && parts[0] == "summary" {
		query := observestore.MetricsQuery{}
		if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
			since, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid since timestamp: %w", err))
				return
			}
			query.Since = &since
		}
		summary, err := s.cfg.Traces.AggregateMetrics(r.Context(), query)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
		return
	}

	if len(parts) == 2 && parts[1] == "events" {
		events, err := s.cfg.Traces.ListEventsByRun(r.Context(), parts[0], observestore.ListQuery{
			Limit:  parseInt(r.URL.Query().Get("limit"), 0),
			Offset: parseInt(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
		return
	}

	writeError(w, http.StatusNotFound, fmt.Errorf("unknown resource"))
}
