// Package bridge is the coordinator's HTTP client for the bridge
// server. All calls carry short timeouts; presence posts are
// best-effort with an even shorter one.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agentbridge/agentbridge/internal/event"
)

// Thread is one entry of the server's thread index.
type Thread struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// APIError is a non-2xx response from the bridge. Code carries the
// machine code of admission rejections when the server sent one.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("bridge: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("bridge: status %d: %s", e.Status, e.Message)
}

// Client talks to one bridge server.
type Client struct {
	baseURL string

	http         *http.Client
	presenceHTTP *http.Client
}

// New creates a client for the bridge at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: 10 * time.Second},
		presenceHTTP: &http.Client{Timeout: 2 * time.Second},
	}
}

// BaseURL returns the server address this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks that the bridge is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.getJSON(ctx, "/ping", &struct{}{})
}

// ListThreads returns the thread index.
func (c *Client) ListThreads(ctx context.Context) ([]Thread, error) {
	var out struct {
		Threads []Thread `json:"threads"`
	}
	if err := c.getJSON(ctx, "/threads", &out); err != nil {
		return nil, err
	}
	return out.Threads, nil
}

// Events returns the thread's events with ts strictly after since; an
// empty since returns the whole journal.
func (c *Client) Events(ctx context.Context, threadID, since string) ([]event.Event, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/events"
	if since != "" {
		path += "?since=" + url.QueryEscape(since)
	}
	var out struct {
		Events []event.Event `json:"events"`
	}
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// AppendEvent posts an event to the thread and returns the stored,
// stamped event.
func (c *Client) AppendEvent(ctx context.Context, threadID string, e event.Event) (event.Event, error) {
	var out struct {
		Event event.Event `json:"event"`
	}
	path := "/threads/" + url.PathEscape(threadID) + "/events"
	if err := c.postJSON(ctx, c.http, path, e, &out); err != nil {
		return event.Event{}, err
	}
	return out.Event, nil
}

// Presence is one participant's entry in a thread presence snapshot.
type Presence struct {
	ID        string         `json:"id"`
	State     string         `json:"state"`
	UpdatedAt string         `json:"updated_at"`
	Stale     bool           `json:"stale"`
	Details   map[string]any `json:"details,omitempty"`
}

// ThreadPresence returns the thread's presence snapshot.
func (c *Client) ThreadPresence(ctx context.Context, threadID string) ([]Presence, error) {
	var out struct {
		Participants []Presence `json:"participants"`
	}
	path := "/threads/" + url.PathEscape(threadID) + "/presence"
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Participants, nil
}

// PostPresence publishes a participant's presence on the thread.
func (c *Client) PostPresence(ctx context.Context, threadID, participant, state string, details map[string]any) error {
	body := map[string]any{"from": participant, "state": state}
	if details != nil {
		body["details"] = details
	}
	path := "/threads/" + url.PathEscape(threadID) + "/presence"
	return c.postJSON(ctx, c.presenceHTTP, path, body, nil)
}

// TryPostPresence is PostPresence with failures swallowed. Presence is
// best-effort by contract.
func (c *Client) TryPostPresence(ctx context.Context, threadID, participant, state string, details map[string]any) {
	_ = c.PostPresence(ctx, threadID, participant, state, details)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, client *http.Client, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// apiError decodes the server's structured error body. The error field
// is a plain string for validation errors and an object for admission
// rejections.
func apiError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(data, &envelope) != nil || len(envelope.Error) == 0 {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}

	var msg string
	if json.Unmarshal(envelope.Error, &msg) == nil {
		apiErr.Message = msg
		return apiErr
	}
	var rejection struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(envelope.Error, &rejection) == nil {
		apiErr.Code = rejection.Code
		apiErr.Message = rejection.Message
	}
	return apiErr
}
