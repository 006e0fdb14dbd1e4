// Package event defines the wire format shared by the bridge server
// and the coordinator. Events are immutable once written to a thread
// journal.
package event

import "encoding/json"

// Event types.
const (
	TypeMessage       = "message"
	TypeControl       = "control"
	TypeThreadCreated = "thread.created"
	TypeThreadRenamed = "thread.renamed"
)

// Reserved participant ids.
const (
	User = "user" // the human; authoritative sender for control events
	All  = "all"  // broadcast address
)

// Event is one line of a thread journal. Content is kept as raw JSON
// because messages carry strings while control events carry an object
// (or a JSON-encoded string of one).
type Event struct {
	ID      string          `json:"id,omitempty"`
	TS      string          `json:"ts,omitempty"`
	Thread  string          `json:"thread,omitempty"`
	Type    string          `json:"type,omitempty"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Meta    map[string]any  `json:"meta,omitempty"`
}

// Text returns the content as a plain string, or "" when the content
// is absent or not a JSON string.
func (e *Event) Text() string {
	var s string
	if len(e.Content) > 0 && json.Unmarshal(e.Content, &s) == nil {
		return s
	}
	return ""
}

// Recipient returns the addressed participant, defaulting to All when
// the event carries no explicit address.
func (e *Event) Recipient() string {
	if e.To == "" {
		return All
	}
	return e.To
}

// Text encodes a plain string as event content.
func Text(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// Object encodes a JSON object as event content. Used for controls.
func Object(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}
