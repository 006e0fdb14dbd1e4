package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/agentbridge/agentbridge/internal/server/store"
)

func (h *Handler) handlePostSuggestion(w http.ResponseWriter, r *http.Request) {
	b, ok := readBody(w, r)
	if !ok {
		return
	}
	for _, field := range []string{"from", "title", "description"} {
		if !b.has(field) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Missing '%s'", field))
			return
		}
	}
	var sg store.Suggestion
	if err := json.Unmarshal(b.raw, &sg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	entry, err := h.store.SaveSuggestion(sg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save suggestion")
		return
	}
	slog.Info("suggestion", "from", entry.From, "title", entry.Title)

	writeJSON(w, http.StatusOK, map[string]any{
		"submitted": true,
		"id":        entry.ID,
		"timestamp": entry.Timestamp,
	})
}

func (h *Handler) handleGetSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.store.Suggestions(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read suggestions")
		return
	}
	if suggestions == nil {
		suggestions = []store.Suggestion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}
