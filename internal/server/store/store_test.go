package store_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbridge/agentbridge/internal/event"
	"github.com/agentbridge/agentbridge/internal/server/store"
)

func newTestStore(t *testing.T) *store.Store {
	s, _ := newTestStoreDir(t)
	return s
}

func newTestStoreDir(t *testing.T) (*store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(dir)
	require.NoError(t, err)
	return s, dir
}

func TestAppendEvent_StampsFields(t *testing.T) {
	s := newTestStore(t)

	e, err := s.AppendEvent("t1", event.Event{
		Type:    event.TypeMessage,
		From:    "user",
		To:      "all",
		Content: event.Text("hello"),
	})
	require.NoError(t, err)

	assert.Len(t, e.ID, 26)
	assert.NotEmpty(t, e.TS)
	assert.Equal(t, "t1", e.Thread)
	assert.Equal(t, "hello", e.Text())
}

func TestAppendEvent_StampsOverrideCallerFields(t *testing.T) {
	s := newTestStore(t)

	e, err := s.AppendEvent("t1", event.Event{
		ID:     "forged",
		TS:     "9999-01-01T00:00:00.000000",
		Thread: "other",
		Type:   event.TypeMessage,
		From:   "user",
	})
	require.NoError(t, err)
	assert.NotEqual(t, "forged", e.ID)
	assert.NotEqual(t, "9999-01-01T00:00:00.000000", e.TS)
	assert.Equal(t, "t1", e.Thread)
}

func TestAppendEvent_RejectsUnsafeIDs(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"", ".", "..", "a/b", `a\b`, "../../etc/passwd"} {
		_, err := s.AppendEvent(id, event.Event{Type: event.TypeMessage, From: "user"})
		assert.ErrorIs(t, err, store.ErrInvalidThreadID, "id %q", id)
	}
}

func TestReadEvents_OrderAndSince(t *testing.T) {
	s := newTestStore(t)

	var ids []string
	for _, text := range []string{"one", "two", "three"} {
		e, err := s.AppendEvent("t1", event.Event{Type: event.TypeMessage, From: "user", Content: event.Text(text)})
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}

	events, err := s.ReadEvents("t1", "")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, ids[i], e.ID)
	}

	// since is strict: the cursor event itself is excluded.
	tail, err := s.ReadEvents("t1", events[1].TS)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "three", tail[0].Text())
}

func TestReadEvents_MissingThreadIsEmpty(t *testing.T) {
	s := newTestStore(t)
	events, err := s.ReadEvents("nope", "")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestReadEvents_DropsPartialTrailingLine(t *testing.T) {
	s, dir := newTestStoreDir(t)
	_, err := s.AppendEvent("t1", event.Event{Type: event.TypeMessage, From: "user", Content: event.Text("whole")})
	require.NoError(t, err)

	// Simulate a writer caught mid-line.
	journal := filepath.Join(dir, "conversations", "threads", "t1.jsonl")
	f, err := os.OpenFile(journal, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"partial","ts":"2`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := s.ReadEvents("t1", "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "whole", events[0].Text())
}

func TestAppendEvent_ThreadCreatedUpdatesIndex(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AppendEvent("t1", event.Event{
		Type:    event.TypeThreadCreated,
		From:    "user",
		To:      "all",
		Content: event.Text("release planning"),
	})
	require.NoError(t, err)

	threads, err := s.Threads()
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "t1", threads[0].ID)
	assert.Equal(t, "release planning", threads[0].Name)
	assert.NotEmpty(t, threads[0].CreatedAt)
	assert.Equal(t, threads[0].CreatedAt, threads[0].UpdatedAt)
}

func TestAppendEvent_ThreadRenamedUpdatesIndex(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AppendEvent("t1", event.Event{Type: event.TypeThreadCreated, From: "user", Content: event.Text("old")})
	require.NoError(t, err)
	_, err = s.AppendEvent("t1", event.Event{Type: event.TypeThreadRenamed, From: "user", Content: event.Text("new")})
	require.NoError(t, err)

	threads, err := s.Threads()
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "new", threads[0].Name)
}

func TestAppendEvent_EmptyNameBecomesUntitled(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendEvent("t1", event.Event{Type: event.TypeThreadCreated, From: "user"})
	require.NoError(t, err)

	threads, err := s.Threads()
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "Untitled", threads[0].Name)
}

func TestAppendEvent_MessagesDoNotTouchIndex(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendEvent("t1", event.Event{Type: event.TypeMessage, From: "user", Content: event.Text("hi")})
	require.NoError(t, err)

	threads, err := s.Threads()
	require.NoError(t, err)
	assert.Empty(t, threads)
}

func TestThreads_CreationOrder(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"b", "a", "c"} {
		_, err := s.AppendEvent(id, event.Event{Type: event.TypeThreadCreated, From: "user", Content: event.Text(id)})
		require.NoError(t, err)
	}

	threads, err := s.Threads()
	require.NoError(t, err)
	require.Len(t, threads, 3)
	assert.Equal(t, "b", threads[0].ID)
	assert.Equal(t, "a", threads[1].ID)
	assert.Equal(t, "c", threads[2].ID)
}

func TestAppendEvent_ConcurrentWritersKeepLinesWhole(t *testing.T) {
	s := newTestStore(t)

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := s.AppendEvent("t1", event.Event{Type: event.TypeMessage, From: "user", Content: event.Text("x")})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	events, err := s.ReadEvents("t1", "")
	require.NoError(t, err)
	assert.Len(t, events, writers*perWriter)

	// Every line must be valid JSON with a distinct id.
	seen := make(map[string]bool)
	for _, e := range events {
		assert.False(t, seen[e.ID], "duplicate id %s", e.ID)
		seen[e.ID] = true
	}
}

func TestTail(t *testing.T) {
	s := newTestStore(t)

	tail, err := s.Tail("t1")
	require.NoError(t, err)
	assert.Empty(t, tail)

	_, err = s.AppendEvent("t1", event.Event{Type: event.TypeMessage, From: "user", Content: event.Text("a")})
	require.NoError(t, err)
	last, err := s.AppendEvent("t1", event.Event{Type: event.TypeMessage, From: "user", Content: event.Text("b")})
	require.NoError(t, err)

	tail, err = s.Tail("t1")
	require.NoError(t, err)
	assert.Equal(t, last.TS, tail)
}

func TestIndexFile_PrettyPrintedAndAtomic(t *testing.T) {
	s, dir := newTestStoreDir(t)
	_, err := s.AppendEvent("t1", event.Event{Type: event.TypeThreadCreated, From: "user", Content: event.Text("x")})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "conversations", "index.json"))
	require.NoError(t, err)

	var idx struct {
		Threads []store.Thread `json:"threads"`
	}
	require.NoError(t, json.Unmarshal(data, &idx))
	require.Len(t, idx.Threads, 1)

	// No leftover temp file after the rename.
	_, err = os.Stat(filepath.Join(dir, "conversations", "index.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}
