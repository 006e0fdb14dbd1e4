// Package cursor persists the coordinator's per-thread progress: the
// last event timestamp each thread has been scanned to.
package cursor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// State is the durable cursor file content.
type State struct {
	Threads map[string]*Thread `json:"threads"`
}

// Thread is the cursor for one thread.
type Thread struct {
	LastTS string `json:"last_ts"`
}

// New returns an empty state.
func New() *State {
	return &State{Threads: make(map[string]*Thread)}
}

// Load reads the state file. A missing file is an empty state.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if s.Threads == nil {
		s.Threads = make(map[string]*Thread)
	}
	return &s, nil
}

// LastTS returns the thread's cursor, or "" when the thread is new.
func (s *State) LastTS(threadID string) string {
	if t := s.Threads[threadID]; t != nil {
		return t.LastTS
	}
	return ""
}

// Advance moves the thread's cursor forward. Empty or older timestamps
// are ignored so the cursor never regresses.
func (s *State) Advance(threadID, ts string) {
	if ts == "" {
		return
	}
	t := s.Threads[threadID]
	if t == nil {
		t = &Thread{}
		s.Threads[threadID] = t
	}
	if ts > t.LastTS {
		t.LastTS = ts
	}
}

// Save writes the state atomically (temp file + rename).
func (s *State) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
