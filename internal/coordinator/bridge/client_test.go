package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbridge/agentbridge/internal/event"
)

func TestListThreads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/threads", r.URL.Path)
		fmt.Fprint(w, `{"threads":[{"id":"t1","name":"Planning"},{"id":"t2","name":"Review"}]}`)
	}))
	defer srv.Close()

	threads, err := New(srv.URL).ListThreads(context.Background())
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "t1", threads[0].ID)
	assert.Equal(t, "Review", threads[1].Name)
}

func TestEvents_SinceParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/threads/t1/events", r.URL.Path)
		require.Equal(t, "2026-01-01T00:00:00.000000", r.URL.Query().Get("since"))
		fmt.Fprint(w, `{"events":[{"id":"e1","type":"message","from":"user","content":"hi"}],"count":1}`)
	}))
	defer srv.Close()

	events, err := New(srv.URL).Events(context.Background(), "t1", "2026-01-01T00:00:00.000000")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "hi", events[0].Text())
}

func TestAppendEvent_ReturnsStamped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e event.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		assert.Equal(t, "claude", e.From)
		e.ID = "stamped"
		e.TS = "2026-01-01T00:00:00.000000"
		resp := map[string]any{"received": true, "event": e}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	stored, err := New(srv.URL).AppendEvent(context.Background(), "t1", event.Event{
		Type:    event.TypeMessage,
		From:    "claude",
		Content: event.Text("done"),
	})
	require.NoError(t, err)
	assert.Equal(t, "stamped", stored.ID)
	assert.Equal(t, "claude", stored.From)
}

func TestAppendEvent_AdmissionRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error":{"code":"participant_muted","message":"Participant is muted for this thread.","thread":"t1","participant":"claude"}}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).AppendEvent(context.Background(), "t1", event.Event{
		Type: event.TypeMessage,
		From: "claude",
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "participant_muted", apiErr.Code)
	assert.Contains(t, apiErr.Message, "muted")
}

func TestAppendEvent_ValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"Missing 'from'"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).AppendEvent(context.Background(), "t1", event.Event{Type: event.TypeMessage})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Empty(t, apiErr.Code)
	assert.Equal(t, "Missing 'from'", apiErr.Message)
}

func TestTryPostPresence_SwallowsFailure(t *testing.T) {
	// Server is down: the call must not panic or block.
	c := New("http://127.0.0.1:1")
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.TryPostPresence(context.Background(), "t1", "claude", "listening", nil)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("presence post did not return")
	}
}

func TestPostPresence_SendsDetails(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"received":true}`)
	}))
	defer srv.Close()

	err := New(srv.URL).PostPresence(context.Background(), "t1", "claude", "thinking", map[string]any{
		"client": "claude-code",
		"model":  "opus",
	})
	require.NoError(t, err)
	assert.Equal(t, "claude", got["from"])
	assert.Equal(t, "thinking", got["state"])
	details, ok := got["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "claude-code", details["client"])
}

func TestStream_DecodesDataFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/threads/t1/events/stream", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"id\":\"e1\",\"type\":\"message\",\"from\":\"user\",\"content\":\"one\"}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"e2\",\"type\":\"message\",\"from\":\"claude\",\"content\":\"two\"}\n\n")
	}))
	defer srv.Close()

	var seen []string
	err := New(srv.URL).Stream(context.Background(), "t1", "", func(e event.Event) {
		seen = append(seen, e.ID)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, seen)
}

func TestStream_BadThread(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"Invalid thread id"}`)
	}))
	defer srv.Close()

	err := New(srv.URL).Stream(context.Background(), "bad", "", func(event.Event) {})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}
