// Package presence tracks ephemeral participant liveness per thread.
// The registry is in-memory only and lost on restart; callers treat
// every operation as best-effort.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/agentbridge/agentbridge/internal/util/timefmt"
)

// TTL is how long an entry stays fresh. Older entries are still
// reported but flagged stale.
const TTL = 120 * time.Second

// Participant is one presence snapshot entry.
type Participant struct {
	ID        string         `json:"id"`
	State     string         `json:"state"`
	UpdatedAt string         `json:"updated_at"`
	Stale     bool           `json:"stale"`
	Details   map[string]any `json:"details,omitempty"`
}

type entry struct {
	state     string
	updatedAt time.Time
	details   map[string]any
}

// Registry tracks participant state per thread. Thread-safe.
type Registry struct {
	mu      sync.RWMutex
	threads map[string]map[string]*entry // thread -> participant -> entry

	now func() time.Time // test hook
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		threads: make(map[string]map[string]*entry),
		now:     time.Now,
	}
}

// Set upserts a participant's presence. When details is nil, prior
// details are preserved so a state transition (thinking -> listening)
// does not erase identity.
func (r *Registry) Set(thread, participant, state string, details map[string]any) Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	tp := r.threads[thread]
	if tp == nil {
		tp = make(map[string]*entry)
		r.threads[thread] = tp
	}

	e := &entry{state: state, updatedAt: r.now()}
	if details == nil {
		if prev := tp[participant]; prev != nil {
			e.details = prev.details
		}
	} else {
		e.details = details
	}
	tp[participant] = e

	return Participant{
		ID:        participant,
		State:     e.state,
		UpdatedAt: timefmt.Format(e.updatedAt),
		Details:   e.details,
	}
}

// Snapshot returns every participant known for the thread, non-stale
// entries first, then by id.
func (r *Registry) Snapshot(thread string) []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	tp := r.threads[thread]
	participants := make([]Participant, 0, len(tp))
	for id, e := range tp {
		participants = append(participants, Participant{
			ID:        id,
			State:     e.state,
			UpdatedAt: timefmt.Format(e.updatedAt),
			Stale:     now.Sub(e.updatedAt) > TTL,
			Details:   e.details,
		})
	}
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].Stale != participants[j].Stale {
			return !participants[i].Stale
		}
		return participants[i].ID < participants[j].ID
	})
	return participants
}
