package api

import (
	"encoding/json"
	"net/http"

	"github.com/agentbridge/agentbridge/internal/server/presence"
)

// presenceAck echoes the stored entry back to the caller.
type presenceAck struct {
	Thread      string         `json:"thread"`
	Participant string         `json:"participant"`
	State       string         `json:"state"`
	UpdatedAt   string         `json:"updated_at"`
	Details     map[string]any `json:"details,omitempty"`
}

func (h *Handler) handleGetPresence(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	writeJSON(w, http.StatusOK, map[string]any{
		"thread":       threadID,
		"ttl_seconds":  int(presence.TTL.Seconds()),
		"participants": h.presence.Snapshot(threadID),
	})
}

func (h *Handler) handlePostPresence(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")

	b, ok := readBody(w, r)
	if !ok {
		return
	}
	var req struct {
		From    string          `json:"from"`
		State   string          `json:"state"`
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(b.raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	if req.From == "" {
		writeError(w, http.StatusBadRequest, "Missing 'from'")
		return
	}
	if req.State == "" {
		writeError(w, http.StatusBadRequest, "Missing 'state'")
		return
	}

	// nil means "not sent": prior details survive. An explicit object
	// replaces them; anything else is a caller error.
	var details map[string]any
	if len(req.Details) > 0 {
		if err := json.Unmarshal(req.Details, &details); err != nil {
			writeError(w, http.StatusBadRequest, "'details' must be an object")
			return
		}
	}

	p := h.presence.Set(threadID, req.From, req.State, details)
	writeJSON(w, http.StatusOK, map[string]any{
		"received": true,
		"presence": presenceAck{
			Thread:      threadID,
			Participant: p.ID,
			State:       p.State,
			UpdatedAt:   p.UpdatedAt,
			Details:     p.Details,
		},
	})
}
