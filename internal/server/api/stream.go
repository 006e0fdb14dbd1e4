package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentbridge/agentbridge/internal/metrics"
)

// handleStreamEvents serves a live SSE feed of one thread. With no
// cursor the stream starts at the current tail; events are never
// replayed. The loop polls the journal and emits a keep-alive comment
// after 15s without one, so proxies do not drop the connection.
func (h *Handler) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	last := r.URL.Query().Get("since")
	if last == "" {
		tail, err := h.store.Tail(threadID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid thread id")
			return
		}
		last = tail
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.SSEStreamsActive.Inc()
	defer metrics.SSEStreamsActive.Dec()

	ctx := r.Context()
	lastKeepAlive := time.Now()
	for {
		events, err := h.store.ReadEvents(threadID, last)
		if err != nil {
			return
		}
		for _, e := range events {
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
			if e.TS != "" {
				last = e.TS
			}
		}
		if time.Since(lastKeepAlive) >= h.streamKeepAlive {
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
			lastKeepAlive = time.Now()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(h.streamPoll):
		}
	}
}
