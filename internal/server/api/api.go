// Package api implements the bridge's HTTP surface: thread and event
// endpoints, the SSE stream, presence, derived thread state, and the
// legacy flat-file message endpoints kept for older clients.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/agentbridge/agentbridge/internal/server/presence"
	"github.com/agentbridge/agentbridge/internal/server/store"
)

// ServerName identifies this server in /ping responses.
const ServerName = "agent-bridge"

// Version is the bridge protocol version reported by /ping and /.
const Version = "0.3.0"

// Handler holds the dependencies shared by all endpoints.
type Handler struct {
	store    *store.Store
	presence *presence.Registry

	// SSE pacing; shortened in tests.
	streamPoll      time.Duration
	streamKeepAlive time.Duration
}

// New creates a Handler backed by the given store and presence registry.
func New(st *store.Store, reg *presence.Registry) *Handler {
	return &Handler{
		store:           st,
		presence:        reg,
		streamPoll:      time.Second,
		streamKeepAlive: 15 * time.Second,
	}
}

// Register installs all routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /ping", h.handlePing)

	mux.HandleFunc("GET /threads", h.handleListThreads)
	mux.HandleFunc("POST /threads", h.handleCreateThread)
	mux.HandleFunc("GET /threads/{id}/events", h.handleGetEvents)
	mux.HandleFunc("POST /threads/{id}/events", h.handlePostEvent)
	mux.HandleFunc("GET /threads/{id}/events/stream", h.handleStreamEvents)
	mux.HandleFunc("GET /threads/{id}/state", h.handleGetState)
	mux.HandleFunc("GET /threads/{id}/presence", h.handleGetPresence)
	mux.HandleFunc("POST /threads/{id}/presence", h.handlePostPresence)

	mux.HandleFunc("POST /message", h.handlePostMessage)
	mux.HandleFunc("GET /messages", h.handleGetMessages)
	mux.HandleFunc("GET /latest", h.handleGetLatest)
	mux.HandleFunc("POST /broadcast", h.handleBroadcast)
	mux.HandleFunc("POST /suggest", h.handlePostSuggestion)
	mux.HandleFunc("GET /suggestions", h.handleGetSuggestions)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// body is a request body decoded far enough to check which keys the
// caller actually sent. Handlers re-unmarshal raw into typed structs.
type body struct {
	raw    []byte
	fields map[string]json.RawMessage
}

func (b body) has(key string) bool {
	_, ok := b.fields[key]
	return ok
}

// readBody reads and decodes the request body. A missing, empty or
// non-object body is rejected with 400 and ok=false.
func readBody(w http.ResponseWriter, r *http.Request) (body, bool) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No JSON body")
		return body{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "No JSON body")
		return body{}, false
	}
	return body{raw: raw, fields: fields}, true
}
