package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbridge/agentbridge/internal/server/store"
)

func TestAppendMessage_StampsAndDefaults(t *testing.T) {
	s := newTestStore(t)

	m, err := s.AppendMessage(store.Message{From: "codex", Content: "hi"})
	require.NoError(t, err)
	assert.Len(t, m.ID, 26)
	assert.NotEmpty(t, m.Timestamp)
	assert.Equal(t, "all", m.Visibility)
}

func TestReadMessages_SinceIsStrict(t *testing.T) {
	s := newTestStore(t)

	first, err := s.AppendMessage(store.Message{From: "codex", Content: "one"})
	require.NoError(t, err)
	_, err = s.AppendMessage(store.Message{From: "codex", Content: "two"})
	require.NoError(t, err)

	msgs, err := s.ReadMessages(first.Timestamp, "", "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "two", msgs[0].Content)
}

func TestReadMessages_ForFilter(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AppendMessage(store.Message{From: "user", To: "codex", Content: "direct"})
	require.NoError(t, err)
	_, err = s.AppendMessage(store.Message{From: "user", Content: "broadcast"}) // no to -> all
	require.NoError(t, err)
	_, err = s.AppendMessage(store.Message{From: "user", To: "claude", Content: "other"})
	require.NoError(t, err)

	msgs, err := s.ReadMessages("", "codex", "")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "direct", msgs[0].Content)
	assert.Equal(t, "broadcast", msgs[1].Content)
}

func TestReadMessages_VisibilityFilter(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AppendMessage(store.Message{From: "user", Content: "open"}) // defaults to all
	require.NoError(t, err)
	_, err = s.AppendMessage(store.Message{From: "user", Content: "ops only", Visibility: "ops"})
	require.NoError(t, err)
	_, err = s.AppendMessage(store.Message{From: "user", Content: "dev only", Visibility: "dev"})
	require.NoError(t, err)

	msgs, err := s.ReadMessages("", "", "ops")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "open", msgs[0].Content)
	assert.Equal(t, "ops only", msgs[1].Content)
}

func TestLatestMessage(t *testing.T) {
	s := newTestStore(t)

	m, err := s.LatestMessage("")
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = s.AppendMessage(store.Message{From: "user", Content: "first"})
	require.NoError(t, err)
	_, err = s.AppendMessage(store.Message{From: "user", Content: "second"})
	require.NoError(t, err)

	m, err = s.LatestMessage("")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "second", m.Content)
}
