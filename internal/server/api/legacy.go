package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/agentbridge/agentbridge/internal/server/store"
	"github.com/agentbridge/agentbridge/internal/util/timefmt"
)

func (h *Handler) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"server":    ServerName,
		"version":   Version,
		"timestamp": timefmt.Now(),
	})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "Agent Bridge",
		"version": Version,
		"endpoints": map[string]string{
			"GET /ping":                       "Health check",
			"GET /threads":                    "List threads",
			"POST /threads":                   "Create thread (name?, from?)",
			"GET /threads/{id}/events":        "Read thread events (?since=)",
			"POST /threads/{id}/events":       "Append thread event",
			"GET /threads/{id}/events/stream": "Live thread events (SSE)",
			"GET /threads/{id}/state":         "Derived thread state",
			"GET /threads/{id}/presence":      "Presence snapshot",
			"POST /threads/{id}/presence":     "Update presence (from, state, details?)",
			"POST /message":                   "Send message (from, to?, content, visibility?)",
			"GET /messages":                   "Get messages (?since=, ?for=, ?visibility=)",
			"GET /latest":                     "Get most recent (?for=)",
			"POST /broadcast":                 "User broadcast (content, context?)",
			"POST /suggest":                   "Suggest bridge improvement (from, title, description)",
			"GET /suggestions":                "List suggestions (?status=)",
		},
	})
}

// Legacy flat-file message endpoints, kept for clients that predate
// threads. They share the data dir but never touch thread journals.

func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	b, ok := readBody(w, r)
	if !ok {
		return
	}
	if !b.has("from") {
		writeError(w, http.StatusBadRequest, "Missing 'from'")
		return
	}
	if !b.has("content") {
		writeError(w, http.StatusBadRequest, "Missing 'content'")
		return
	}
	var m store.Message
	if err := json.Unmarshal(b.raw, &m); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	entry, err := h.store.AppendMessage(m)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to write message")
		return
	}
	to := entry.To
	if to == "" {
		to = "all"
	}
	slog.Info("message", "from", entry.From, "to", to)

	writeJSON(w, http.StatusOK, map[string]any{
		"received":  true,
		"id":        entry.ID,
		"timestamp": entry.Timestamp,
	})
}

func (h *Handler) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msgs, err := h.store.ReadMessages(q.Get("since"), q.Get("for"), q.Get("visibility"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read messages")
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

func (h *Handler) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.LatestMessage(r.URL.Query().Get("for"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": m})
}

func (h *Handler) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	b, ok := readBody(w, r)
	if !ok {
		return
	}
	if !b.has("content") {
		writeError(w, http.StatusBadRequest, "Missing 'content'")
		return
	}
	var req struct {
		Content string `json:"content"`
		Context any    `json:"context"`
	}
	if err := json.Unmarshal(b.raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	entry, err := h.store.AppendMessage(store.Message{
		From:       "user",
		To:         "all",
		Visibility: "all",
		Type:       "broadcast",
		Content:    req.Content,
		Context:    req.Context,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to write message")
		return
	}
	slog.Info("broadcast", "id", entry.ID)

	writeJSON(w, http.StatusOK, map[string]any{
		"broadcast": true,
		"id":        entry.ID,
		"timestamp": entry.Timestamp,
	})
}
