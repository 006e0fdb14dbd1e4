package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestions(t *testing.T) {
	_, srv := newTestServer(t)

	status, out := postJSON(t, srv.URL+"/suggest", map[string]any{"from": "codex", "title": "no description"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing 'description'", out["error"])

	status, out = postJSON(t, srv.URL+"/suggest", map[string]any{
		"from": "codex", "title": "Add search", "description": "full text search over threads",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, out["submitted"])
	assert.Len(t, out["id"], 26)

	status, list := getJSON(t, srv.URL+"/suggestions")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), list["count"])
	sg := list["suggestions"].([]any)[0].(map[string]any)
	assert.Equal(t, "pending", sg["status"])
	assert.Equal(t, "Add search", sg["title"])

	status, list = getJSON(t, srv.URL+"/suggestions?status=accepted")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), list["count"])
}
