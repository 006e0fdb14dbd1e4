package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openStream starts an SSE request and returns a channel of raw lines.
// The stream is torn down via the returned cancel.
func openStream(t *testing.T, url string) (<-chan string, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		defer resp.Body.Close()
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				lines <- line
			}
		}
	}()
	return lines, cancel
}

// waitForLine reads lines until pred matches or the deadline passes.
func waitForLine(t *testing.T, lines <-chan string, pred func(string) bool) string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before expected line")
			}
			if pred(line) {
				return line
			}
		case <-deadline:
			t.Fatal("timed out waiting for stream line")
		}
	}
}

func TestStream_DeliversNewEvents(t *testing.T) {
	h, srv := newTestServer(t)
	h.streamPoll = 5 * time.Millisecond
	h.streamKeepAlive = time.Minute

	thread := createThread(t, srv.URL, "live")
	eventsURL := fmt.Sprintf("%s/threads/%s/events", srv.URL, thread)

	// Pre-existing events must not be replayed when no cursor is given.
	postJSON(t, eventsURL, map[string]any{"type": "message", "from": "user", "content": "old"})

	lines, cancel := openStream(t, fmt.Sprintf("%s/threads/%s/events/stream", srv.URL, thread))
	defer cancel()

	// Give the handler a moment to take its tail snapshot.
	time.Sleep(50 * time.Millisecond)
	postJSON(t, eventsURL, map[string]any{"type": "message", "from": "user", "content": "fresh"})

	line := waitForLine(t, lines, func(l string) bool { return strings.HasPrefix(l, "data: ") })
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &got))
	assert.Equal(t, "fresh", got["content"])
	assert.Equal(t, thread, got["thread"])
}

func TestStream_SinceCursorReplays(t *testing.T) {
	h, srv := newTestServer(t)
	h.streamPoll = 5 * time.Millisecond
	h.streamKeepAlive = time.Minute

	thread := createThread(t, srv.URL, "cursor")
	eventsURL := fmt.Sprintf("%s/threads/%s/events", srv.URL, thread)

	_, first := postJSON(t, eventsURL, map[string]any{"type": "message", "from": "user", "content": "one"})
	firstTS := first["event"].(map[string]any)["ts"].(string)
	postJSON(t, eventsURL, map[string]any{"type": "message", "from": "user", "content": "two"})

	lines, cancel := openStream(t, fmt.Sprintf("%s/threads/%s/events/stream?since=%s", srv.URL, thread, firstTS))
	defer cancel()

	line := waitForLine(t, lines, func(l string) bool { return strings.HasPrefix(l, "data: ") })
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &got))
	assert.Equal(t, "two", got["content"])
}

func TestStream_KeepAlive(t *testing.T) {
	h, srv := newTestServer(t)
	h.streamPoll = 5 * time.Millisecond
	h.streamKeepAlive = 30 * time.Millisecond

	thread := createThread(t, srv.URL, "idle")

	lines, cancel := openStream(t, fmt.Sprintf("%s/threads/%s/events/stream", srv.URL, thread))
	defer cancel()

	waitForLine(t, lines, func(l string) bool { return strings.HasPrefix(l, ": keep-alive") })
}
