// Package store persists bridge data under a single directory: one
// append-only JSONL journal per thread, a thread index, the legacy
// daily message log, and the suggestions inbox.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agentbridge/agentbridge/internal/event"
	"github.com/agentbridge/agentbridge/internal/server/eventid"
	"github.com/agentbridge/agentbridge/internal/util/sanitize"
	"github.com/agentbridge/agentbridge/internal/util/timefmt"
)

// maxThreadNameLen caps display names taken from thread.created and
// thread.renamed event content.
const maxThreadNameLen = 200

// ErrInvalidThreadID is returned for thread ids that cannot name a
// journal file.
var ErrInvalidThreadID = errors.New("invalid thread id")

// Store owns the on-disk layout. All methods are safe for concurrent
// use; appends are serialized per thread, reads are lock-free scans.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-thread append locks

	indexMu  sync.Mutex // serializes index read-modify-write
	legacyMu sync.Mutex // serializes daily-log appends

	now func() time.Time // test hook
}

// New creates a Store rooted at dir, creating the layout if needed.
func New(dir string) (*Store, error) {
	s := &Store{
		root:  dir,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
	for _, d := range []string{s.conversationsDir(), s.threadsDir(), s.suggestionsDir()} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return s, nil
}

func (s *Store) conversationsDir() string { return filepath.Join(s.root, "conversations") }
func (s *Store) threadsDir() string       { return filepath.Join(s.conversationsDir(), "threads") }
func (s *Store) indexPath() string        { return filepath.Join(s.conversationsDir(), "index.json") }
func (s *Store) suggestionsDir() string   { return filepath.Join(s.root, "suggestions") }

func (s *Store) journalPath(threadID string) (string, error) {
	if threadID == "" || threadID == "." || threadID == ".." ||
		strings.ContainsAny(threadID, `/\`) {
		return "", ErrInvalidThreadID
	}
	return filepath.Join(s.threadsDir(), threadID+".jsonl"), nil
}

func (s *Store) lockFor(threadID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.locks[threadID]
	if l == nil {
		l = &sync.Mutex{}
		s.locks[threadID] = l
	}
	return l
}

// AppendEvent stamps id, ts and thread onto e and appends it to the
// thread's journal. Events of type thread.created and thread.renamed
// also update the thread index. The stamped event is returned.
func (s *Store) AppendEvent(threadID string, e event.Event) (event.Event, error) {
	path, err := s.journalPath(threadID)
	if err != nil {
		return event.Event{}, err
	}

	e.ID = eventid.New()
	e.TS = timefmt.Format(s.now())
	e.Thread = threadID

	data, err := json.Marshal(e)
	if err != nil {
		return event.Event{}, fmt.Errorf("marshal event: %w", err)
	}

	l := s.lockFor(threadID)
	l.Lock()
	defer l.Unlock()

	if err := atomicAppend(path, data); err != nil {
		return event.Event{}, fmt.Errorf("append event: %w", err)
	}

	if e.Type == event.TypeThreadCreated || e.Type == event.TypeThreadRenamed {
		name := sanitize.Name(e.Text(), maxThreadNameLen)
		if name == "" {
			name = "Untitled"
		}
		if _, err := s.upsertThread(threadID, name); err != nil {
			return event.Event{}, fmt.Errorf("update index: %w", err)
		}
	}

	return e, nil
}

// ReadEvents returns the thread's events with ts strictly after since;
// an empty since returns the whole journal. A missing journal is an
// empty thread, not an error.
func (s *Store) ReadEvents(threadID, since string) ([]event.Event, error) {
	path, err := s.journalPath(threadID)
	if err != nil {
		return nil, err
	}
	lines, err := readJSONLines(path)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	var events []event.Event
	for _, line := range lines {
		var e event.Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if since != "" && e.TS <= since {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Tail returns the ts of the thread's last event, or "".
func (s *Store) Tail(threadID string) (string, error) {
	events, err := s.ReadEvents(threadID, "")
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "", nil
	}
	return events[len(events)-1].TS, nil
}

// Thread is one entry of the thread index.
type Thread struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type index struct {
	Threads []Thread `json:"threads"`
}

// Threads lists the thread index in creation order. A missing index
// file is an empty list.
func (s *Store) Threads() ([]Thread, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	return idx.Threads, nil
}

func (s *Store) loadIndex() (index, error) {
	var idx index
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return index{Threads: []Thread{}}, nil
		}
		return idx, fmt.Errorf("read index: %w", err)
	}
	if err := json.Unmarshal(data, &idx); err != nil {
		return idx, fmt.Errorf("parse index: %w", err)
	}
	if idx.Threads == nil {
		idx.Threads = []Thread{}
	}
	return idx, nil
}

// upsertThread updates the named thread's display name and updated_at,
// appending a new entry when the id is unknown. The index is replaced
// atomically (temp file + rename).
func (s *Store) upsertThread(threadID, name string) (Thread, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return Thread{}, err
	}

	now := timefmt.Format(s.now())
	for i := range idx.Threads {
		if idx.Threads[i].ID == threadID {
			if name != "" {
				idx.Threads[i].Name = name
			}
			idx.Threads[i].UpdatedAt = now
			if err := s.saveIndex(idx); err != nil {
				return Thread{}, err
			}
			return idx.Threads[i], nil
		}
	}

	entry := Thread{ID: threadID, Name: name, CreatedAt: now, UpdatedAt: now}
	if entry.Name == "" {
		entry.Name = "Untitled"
	}
	idx.Threads = append(idx.Threads, entry)
	if err := s.saveIndex(idx); err != nil {
		return Thread{}, err
	}
	return entry, nil
}

func (s *Store) saveIndex(idx index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}
