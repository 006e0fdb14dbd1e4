// Package coordinator implements the dispatch loop that watches bridge
// threads and routes targeted messages to configured agent adapters.
// It is a single cooperative worker: one tick lists threads, publishes
// presence heartbeats, scans each thread past its cursor, and runs any
// resulting adapter invocations sequentially.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/agentbridge/agentbridge/internal/coordinator/adapter"
	"github.com/agentbridge/agentbridge/internal/coordinator/bridge"
	"github.com/agentbridge/agentbridge/internal/coordinator/config"
	"github.com/agentbridge/agentbridge/internal/coordinator/cursor"
	"github.com/agentbridge/agentbridge/internal/coordinator/mentions"
	"github.com/agentbridge/agentbridge/internal/server/state"
)

// maxProcessedIDs caps each thread's dedup set; overflow clears it in
// bulk. The ts cursor keeps cleared ids from being re-dispatched.
const maxProcessedIDs = 5000

type invocationKey struct {
	thread string
	agent  string
}

// Coordinator drives the poll loop against one bridge server.
type Coordinator struct {
	cfg       *config.Config
	statePath string
	agentIDs  []string

	client *bridge.Client
	runner *adapter.Runner

	cursors   *cursor.State
	processed map[string]map[string]bool
	active    map[invocationKey]bool

	lastHeartbeat time.Time

	// scanDir caches the participant directory for the thread being
	// scanned; reset at the start of each scan.
	scanDir *mentions.Directory

	now func() time.Time
}

// New builds a coordinator from a validated configuration. In resume
// mode the persisted cursors are loaded from statePath; in end mode
// they are seeded to the thread tails when Run starts.
func New(cfg *config.Config, statePath string) (*Coordinator, error) {
	cursors := cursor.New()
	if cfg.StartupMode == config.StartupResume {
		loaded, err := cursor.Load(statePath)
		if err != nil {
			return nil, fmt.Errorf("load cursor state: %w", err)
		}
		cursors = loaded
	}

	ids := make([]string, 0, len(cfg.Agents))
	for id := range cfg.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &Coordinator{
		cfg:       cfg,
		statePath: statePath,
		agentIDs:  ids,
		client:    bridge.New(cfg.BridgeURL),
		runner:    &adapter.Runner{Timeout: cfg.AdapterTimeout()},
		cursors:   cursors,
		processed: make(map[string]map[string]bool),
		active:    make(map[invocationKey]bool),
		now:       time.Now,
	}, nil
}

// Run drives the poll loop until ctx is cancelled. Bridge outages are
// retried with exponential backoff; per-thread failures are logged and
// never abort the loop.
func (c *Coordinator) Run(ctx context.Context) error {
	slog.Info("coordinator started",
		"bridge", c.cfg.BridgeURL,
		"id", c.cfg.CoordinatorID,
		"agents", c.agentIDs,
		"poll", c.cfg.PollInterval(),
		"startup", c.cfg.StartupMode)

	if c.cfg.StartupMode != config.StartupResume {
		c.seedCursors(ctx)
	}

	bo := newDefaultBackoff()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			interval := bo.NextBackOff()
			slog.Warn("bridge unavailable, backing off", "error", err, "backoff", interval)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
			continue
		}
		bo.Reset()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.PollInterval()):
		}
	}
}

// tick runs one round: list threads, heartbeat, scan every thread.
// Only a failed thread listing is returned as an error; it means the
// bridge itself is unreachable.
func (c *Coordinator) tick(ctx context.Context) error {
	threads, err := c.client.ListThreads(ctx)
	if err != nil {
		return fmt.Errorf("list threads: %w", err)
	}
	c.maybeHeartbeat(ctx, threads)
	for _, t := range threads {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.scanThread(ctx, t.ID); err != nil {
			slog.Warn("thread scan failed", "thread", t.ID, "error", err)
		}
	}
	return nil
}

// seedCursors advances every thread's cursor to its current tail, so
// an end-mode start never replays history. Failures are logged only;
// the first scan of an unseeded thread skips to the tail anyway.
func (c *Coordinator) seedCursors(ctx context.Context) {
	threads, err := c.client.ListThreads(ctx)
	if err != nil {
		slog.Warn("seed cursors: list threads failed", "error", err)
		return
	}
	for _, t := range threads {
		events, err := c.client.Events(ctx, t.ID, "")
		if err != nil {
			slog.Warn("seed cursors: fetch events failed", "thread", t.ID, "error", err)
			continue
		}
		if len(events) > 0 {
			c.cursors.Advance(t.ID, events[len(events)-1].TS)
		}
	}
	c.saveCursors()
	slog.Info("cursors seeded to thread tails", "threads", len(threads))
}

// scanThread folds the thread's full event list and dispatches every
// message event past the cursor. Controls fold into the scan state as
// they are encountered, so a control between two new messages applies
// to the second but not the first. The cursor advances for every new
// event whether or not it is dispatched.
func (c *Coordinator) scanThread(ctx context.Context, threadID string) error {
	events, err := c.client.Events(ctx, threadID, "")
	if err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	last := c.cursors.LastTS(threadID)
	if last == "" {
		// First sighting of the thread: start at the tail, never
		// back-process history.
		c.cursors.Advance(threadID, events[len(events)-1].TS)
		c.saveCursors()
		return nil
	}

	seen := c.processed[threadID]
	if seen == nil {
		seen = make(map[string]bool)
		c.processed[threadID] = seen
	}
	c.scanDir = nil

	scanState := state.New()
	for _, e := range events {
		for _, ctrl := range state.Controls(e) {
			state.Apply(&scanState, ctrl)
		}
		if e.TS == "" || e.TS <= last {
			continue
		}
		if !seen[e.ID] {
			seen[e.ID] = true
			if len(seen) > maxProcessedIDs {
				clear(seen)
			}
			c.dispatchEvent(ctx, threadID, e, scanState, events)
		}
		c.cursors.Advance(threadID, e.TS)
	}

	if c.cursors.LastTS(threadID) != last {
		c.saveCursors()
	}
	return nil
}

func (c *Coordinator) saveCursors() {
	if err := c.cursors.Save(c.statePath); err != nil {
		slog.Warn("persist cursor state failed", "path", c.statePath, "error", err)
	}
}

// newDefaultBackoff creates an exponential backoff: 1s → 60s, multiplier 2x, ±20% jitter.
func newDefaultBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 60 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}
