package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/agentbridge/agentbridge/internal/event"
	"github.com/agentbridge/agentbridge/internal/metrics"
	"github.com/agentbridge/agentbridge/internal/server/eventid"
	"github.com/agentbridge/agentbridge/internal/server/state"
	"github.com/agentbridge/agentbridge/internal/server/store"
	"github.com/agentbridge/agentbridge/internal/util/sanitize"
)

func (h *Handler) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := h.store.Threads()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read thread index")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

func (h *Handler) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	// Body is optional; a bare POST creates an untitled thread.
	var req struct {
		Name string `json:"name"`
		From string `json:"from"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	name := sanitize.Name(req.Name, 200)
	if name == "" {
		name = "Untitled"
	}
	from := req.From
	if from == "" {
		from = event.User
	}

	threadID := eventid.New()
	if _, err := h.store.AppendEvent(threadID, event.Event{
		Type:    event.TypeThreadCreated,
		From:    from,
		To:      event.All,
		Content: event.Text(name),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create thread")
		return
	}
	metrics.EventsAppendedTotal.WithLabelValues(event.TypeThreadCreated).Inc()
	slog.Info("thread created", "thread", threadID, "name", name)

	writeJSON(w, http.StatusOK, map[string]string{"id": threadID, "name": name})
}

func (h *Handler) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	events, err := h.store.ReadEvents(threadID, r.URL.Query().Get("since"))
	if err != nil {
		if errors.Is(err, store.ErrInvalidThreadID) {
			writeError(w, http.StatusBadRequest, "Invalid thread id")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to read events")
		return
	}
	if events == nil {
		events = []event.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (h *Handler) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")

	b, ok := readBody(w, r)
	if !ok {
		return
	}
	if !b.has("from") {
		writeError(w, http.StatusBadRequest, "Missing 'from'")
		return
	}
	var e event.Event
	if err := json.Unmarshal(b.raw, &e); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event body")
		return
	}
	if e.Type == event.TypeMessage && !b.has("content") {
		writeError(w, http.StatusBadRequest, "Missing 'content'")
		return
	}

	// Admission: non-user message events are gated on the derived state.
	if e.Type == event.TypeMessage && e.From != event.User {
		events, err := h.store.ReadEvents(threadID, "")
		if err != nil {
			if errors.Is(err, store.ErrInvalidThreadID) {
				writeError(w, http.StatusBadRequest, "Invalid thread id")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to read events")
			return
		}
		st := state.Reduce(events)
		if st.IsMuted(e.From) {
			h.reject(w, "participant_muted", "Participant is muted for this thread.", threadID, e.From)
			return
		}
		if st.Paused {
			h.reject(w, "thread_paused", "Thread is paused for non-user participants.", threadID, e.From)
			return
		}
	}

	stored, err := h.store.AppendEvent(threadID, e)
	if err != nil {
		if errors.Is(err, store.ErrInvalidThreadID) {
			writeError(w, http.StatusBadRequest, "Invalid thread id")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to append event")
		return
	}
	metrics.EventsAppendedTotal.WithLabelValues(eventTypeLabel(stored.Type)).Inc()

	writeJSON(w, http.StatusOK, map[string]any{"received": true, "event": stored})
}

// reject writes the 409 admission envelope.
func (h *Handler) reject(w http.ResponseWriter, code, message, thread, participant string) {
	metrics.AdmissionRejectedTotal.WithLabelValues(code).Inc()
	slog.Debug("event rejected", "code", code, "thread", thread, "participant", participant)
	writeJSON(w, http.StatusConflict, map[string]any{
		"error": map[string]string{
			"code":        code,
			"message":     message,
			"thread":      thread,
			"participant": participant,
		},
	})
}

// eventTypeLabel keeps the metric label space bounded.
func eventTypeLabel(t string) string {
	switch t {
	case event.TypeMessage, event.TypeControl, event.TypeThreadCreated, event.TypeThreadRenamed:
		return t
	default:
		return "other"
	}
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	events, err := h.store.ReadEvents(threadID, "")
	if err != nil {
		if errors.Is(err, store.ErrInvalidThreadID) {
			writeError(w, http.StatusBadRequest, "Invalid thread id")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to read events")
		return
	}
	st := state.Reduce(events)
	writeJSON(w, http.StatusOK, map[string]any{
		"thread": threadID,
		"state": map[string]any{
			"paused": st.Paused,
			"muted":  st.MutedList(),
			"discussion": map[string]bool{
				"on":                   st.Discussion.On,
				"allow_agent_mentions": st.Discussion.AllowAgentMentions,
			},
		},
	})
}
