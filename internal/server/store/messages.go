package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/agentbridge/agentbridge/internal/server/eventid"
	"github.com/agentbridge/agentbridge/internal/util/timefmt"
)

// Message is one entry of the legacy flat message log. The log rolls
// over daily; reads only ever see the current day's file.
type Message struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	From       string `json:"from"`
	To         string `json:"to,omitempty"`
	Type       string `json:"type,omitempty"`
	Content    string `json:"content"`
	Visibility string `json:"visibility,omitempty"`
	Context    any    `json:"context,omitempty"`
}

func (s *Store) dailyPath() string {
	return filepath.Join(s.conversationsDir(), s.now().Format("2006-01-02")+".jsonl")
}

// AppendMessage stamps id and timestamp onto m, defaults visibility to
// "all", and appends it to the current day's log.
func (s *Store) AppendMessage(m Message) (Message, error) {
	m.ID = eventid.New()
	m.Timestamp = timefmt.Format(s.now())
	if m.Visibility == "" {
		m.Visibility = "all"
	}

	data, err := json.Marshal(m)
	if err != nil {
		return Message{}, fmt.Errorf("marshal message: %w", err)
	}

	s.legacyMu.Lock()
	defer s.legacyMu.Unlock()
	if err := atomicAppend(s.dailyPath(), data); err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}

// ReadMessages returns today's messages filtered by the legacy query
// semantics: timestamp strictly after since; to matching forID or
// "all"; visibility matching the given one or "all".
func (s *Store) ReadMessages(since, forID, visibility string) ([]Message, error) {
	lines, err := readJSONLines(s.dailyPath())
	if err != nil {
		return nil, fmt.Errorf("read message log: %w", err)
	}

	var messages []Message
	for _, line := range lines {
		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			continue
		}
		if since != "" && m.Timestamp <= since {
			continue
		}
		vis := m.Visibility
		if vis == "" {
			vis = "all"
		}
		if visibility != "" && vis != visibility && vis != "all" {
			continue
		}
		if forID != "" {
			to := m.To
			if to == "" {
				to = "all"
			}
			if to != "all" && to != forID {
				continue
			}
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// LatestMessage returns today's most recent message addressed to forID
// (or to everyone), or nil when there is none.
func (s *Store) LatestMessage(forID string) (*Message, error) {
	messages, err := s.ReadMessages("", forID, "")
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}
	return &messages[len(messages)-1], nil
}
