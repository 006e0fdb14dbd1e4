package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/agentbridge/agentbridge/internal/server/eventid"
	"github.com/agentbridge/agentbridge/internal/util/timefmt"
)

// Suggestion is an improvement proposal for the bridge itself, stored
// as one JSON file per entry so humans can triage them with an editor.
type Suggestion struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Status      string `json:"status"`
	From        string `json:"from"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// SaveSuggestion stamps id and timestamp, defaults status to
// "pending", and writes the suggestion to its own file.
func (s *Store) SaveSuggestion(sug Suggestion) (Suggestion, error) {
	sug.ID = eventid.New()
	sug.Timestamp = timefmt.Format(s.now())
	if sug.Status == "" {
		sug.Status = "pending"
	}

	data, err := json.MarshalIndent(sug, "", "  ")
	if err != nil {
		return Suggestion{}, fmt.Errorf("marshal suggestion: %w", err)
	}
	path := filepath.Join(s.suggestionsDir(), sug.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Suggestion{}, fmt.Errorf("write suggestion: %w", err)
	}
	return sug, nil
}

// Suggestions lists stored suggestions in filename order, optionally
// filtered by status. Ids sort by creation time, so filename order is
// submission order.
func (s *Store) Suggestions(status string) ([]Suggestion, error) {
	paths, err := filepath.Glob(filepath.Join(s.suggestionsDir(), "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	sort.Strings(paths)

	suggestions := make([]Suggestion, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read suggestion: %w", err)
		}
		var sug Suggestion
		if err := json.Unmarshal(data, &sug); err != nil {
			continue
		}
		if status != "" && sug.Status != status {
			continue
		}
		suggestions = append(suggestions, sug)
	}
	return suggestions, nil
}
