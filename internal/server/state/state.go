// Package state derives authoritative thread state from control
// events. The reducer is pure: state is a fold over the event list and
// is never stored.
package state

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/agentbridge/agentbridge/internal/event"
)

// State is the derived thread state.
type State struct {
	Paused     bool
	Muted      map[string]bool
	Discussion Discussion
}

// Discussion is the thread's inter-agent discussion policy.
type Discussion struct {
	On                 bool
	AllowAgentMentions bool
}

// New returns the zero state: not paused, nobody muted, discussion off.
func New() State {
	return State{Muted: map[string]bool{}}
}

// IsMuted reports whether the participant is currently muted.
func (s State) IsMuted(participant string) bool {
	return s.Muted[participant]
}

// MutedList returns the muted participants in sorted order.
func (s State) MutedList() []string {
	ids := make([]string, 0, len(s.Muted))
	for id := range s.Muted {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Control is one variant of a user-issued control. Unknown content is
// simply never parsed into a variant, so it is inert by construction.
type Control interface{ isControl() }

// Mute adds targets to the muted set.
type Mute struct{ Targets []string }

// Unmute removes targets from the muted set.
type Unmute struct{ Targets []string }

// Pause sets the paused flag.
type Pause struct{ On bool }

// SetDiscussion sets the discussion policy.
type SetDiscussion struct{ On, AllowAgentMentions bool }

func (Mute) isControl()          {}
func (Unmute) isControl()        {}
func (Pause) isControl()         {}
func (SetDiscussion) isControl() {}

// Apply folds a single control variant into the state.
func Apply(s *State, c Control) {
	switch c := c.(type) {
	case Mute:
		for _, t := range c.Targets {
			if id := strings.TrimSpace(t); id != "" {
				s.Muted[id] = true
			}
		}
	case Unmute:
		for _, t := range c.Targets {
			if id := strings.TrimSpace(t); id != "" {
				delete(s.Muted, id)
			}
		}
	case Pause:
		s.Paused = c.On
	case SetDiscussion:
		s.Discussion = Discussion{On: c.On, AllowAgentMentions: c.AllowAgentMentions}
	}
}

// Controls parses the control variants carried by an event. It returns
// nil unless the event is a control event from the user. One event may
// carry several variants; they are returned in a fixed order (mute,
// unmute, pause, discussion).
func Controls(e event.Event) []Control {
	if e.Type != event.TypeControl || e.From != event.User {
		return nil
	}
	obj, ok := parseControlContent(e.Content)
	if !ok {
		return nil
	}

	var controls []Control

	if raw, ok := obj["mute"]; ok && isObject(raw) {
		var m struct {
			Mode    string   `json:"mode"`
			Targets []string `json:"targets"`
		}
		if err := json.Unmarshal(raw, &m); err == nil && m.Targets != nil {
			// Only hard mutes exist today; other modes are reserved.
			if m.Mode == "" || m.Mode == "hard" {
				controls = append(controls, Mute{Targets: m.Targets})
			}
		}
	}

	if raw, ok := obj["unmute"]; ok && isObject(raw) {
		var u struct {
			Targets []string `json:"targets"`
		}
		if err := json.Unmarshal(raw, &u); err == nil && u.Targets != nil {
			controls = append(controls, Unmute{Targets: u.Targets})
		}
	}

	if raw, ok := obj["pause"]; ok && isObject(raw) {
		var p struct {
			On *bool `json:"on"`
		}
		if err := json.Unmarshal(raw, &p); err == nil {
			on := true
			if p.On != nil {
				on = *p.On
			}
			controls = append(controls, Pause{On: on})
		}
	}

	if raw, ok := obj["discussion"]; ok && isObject(raw) {
		var d struct {
			On                 *bool `json:"on"`
			AllowAgentMentions *bool `json:"allow_agent_mentions"`
		}
		if err := json.Unmarshal(raw, &d); err == nil {
			on := true
			if d.On != nil {
				on = *d.On
			}
			allow := on
			if d.AllowAgentMentions != nil {
				allow = *d.AllowAgentMentions
			}
			controls = append(controls, SetDiscussion{On: on, AllowAgentMentions: allow})
		}
	}

	return controls
}

// Reduce folds every qualifying control event into a fresh state.
func Reduce(events []event.Event) State {
	s := New()
	for _, e := range events {
		for _, c := range Controls(e) {
			Apply(&s, c)
		}
	}
	return s
}

// Before returns the state just before the event with the given id:
// the fold of every qualifying control that appears earlier in the
// sequence. Controls never apply to events that precede them.
func Before(events []event.Event, eventID string) State {
	s := New()
	for _, e := range events {
		if e.ID == eventID {
			break
		}
		for _, c := range Controls(e) {
			Apply(&s, c)
		}
	}
	return s
}

// parseControlContent accepts either a JSON object or a JSON string
// containing one. Anything else is silently rejected.
func parseControlContent(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if isObject(raw) {
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, false
		}
		return obj, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// isObject reports whether raw begins with a JSON object.
func isObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b == '{'
		}
	}
	return false
}
