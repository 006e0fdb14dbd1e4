package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agentbridge/agentbridge/internal/coordinator/adapter"
	"github.com/agentbridge/agentbridge/internal/coordinator/mentions"
	"github.com/agentbridge/agentbridge/internal/event"
	"github.com/agentbridge/agentbridge/internal/metrics"
	"github.com/agentbridge/agentbridge/internal/server/state"
)

// errorReplyLimit bounds the in-thread report posted for a failed
// adapter run.
const errorReplyLimit = 4000

// dispatchEvent applies the dispatch gate to one event and invokes the
// adapters it targets, sequentially. events is the thread's full list
// as of this scan; its tail becomes the adapter context window.
func (c *Coordinator) dispatchEvent(ctx context.Context, threadID string, e event.Event, st state.State, events []event.Event) {
	targets := c.resolveTargets(ctx, threadID, e, st)
	for _, agentID := range targets {
		c.invoke(ctx, threadID, agentID, e, events)
	}
}

// resolveTargets works out which configured agents the event
// addresses. It returns nil for events that must not be dispatched:
// coordinator echoes, non-messages, human-bound messages, messages in
// a paused thread, and messages whose targets are all muted.
func (c *Coordinator) resolveTargets(ctx context.Context, threadID string, e event.Event, st state.State) []string {
	if e.Type != event.TypeMessage || e.From == c.cfg.CoordinatorID {
		return nil
	}
	to := e.Recipient()
	if to == event.User {
		return nil
	}
	if st.Paused {
		return nil
	}

	var candidates []string
	if to != event.All {
		if _, ok := c.cfg.Agents[to]; !ok {
			return nil
		}
		candidates = []string{to}
	} else {
		candidates = c.resolveMentions(ctx, threadID, e, st)
	}

	targets := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if st.IsMuted(id) {
			continue
		}
		if _, ok := c.cfg.Agents[id]; !ok {
			continue
		}
		targets = append(targets, id)
	}
	return targets
}

// resolveMentions handles messages addressed to "all": extract mention
// tokens, resolve each against the thread's participant directory, and
// fall back to broadcast fan-out when no tokens are present.
func (c *Coordinator) resolveMentions(ctx context.Context, threadID string, e event.Event, st state.State) []string {
	mayMention := e.From == event.User || (st.Discussion.On && st.Discussion.AllowAgentMentions)

	var tokens []string
	if c.cfg.EnableMentions && mayMention {
		tokens = mentions.Extract(e.Text(), c.cfg.MentionPrefix)
	}
	if len(tokens) == 0 {
		return c.broadcastTargets(e)
	}

	dir := c.threadDirectory(ctx, threadID)
	resolved := make(map[string]bool)
	for _, token := range tokens {
		res := dir.Resolve(token)
		if res.Reserved {
			// A reserved group mention cancels dispatch for the whole
			// event.
			c.postNotice(ctx, threadID, e, reservedNotice(c.cfg.MentionPrefix, token))
			return nil
		}
		if len(res.Ambiguous) > 0 {
			c.postNotice(ctx, threadID, e, ambiguityNotice(c.cfg.MentionPrefix, token, res.Ambiguous))
			continue
		}
		for _, id := range res.IDs {
			resolved[id] = true
		}
	}

	// Self-wake suppression: an agent mentioning its own id never
	// triggers itself.
	delete(resolved, e.From)

	ids := make([]string, 0, len(resolved))
	for id := range resolved {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// broadcastTargets implements the optional mention-free fan-out. It is
// disabled by default and only ever applies to user messages.
func (c *Coordinator) broadcastTargets(e event.Event) []string {
	if !c.cfg.EnableBroadcast || e.From != event.User {
		return nil
	}
	if len(c.cfg.BroadcastAgents) == 0 {
		return c.agentIDs
	}
	ids := make([]string, 0, len(c.cfg.BroadcastAgents))
	for _, id := range c.cfg.BroadcastAgents {
		if _, ok := c.cfg.Agents[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// threadDirectory builds (once per scan) the participant directory for
// mention resolution: configured agents first, then participants seen
// in the thread's presence snapshot. A failed snapshot fetch degrades
// to the configured agents alone.
func (c *Coordinator) threadDirectory(ctx context.Context, threadID string) *mentions.Directory {
	if c.scanDir != nil {
		return c.scanDir
	}

	participants := make([]mentions.Participant, 0, len(c.agentIDs))
	for _, id := range c.agentIDs {
		p := c.cfg.Agents[id].Profile
		participants = append(participants, mentions.Participant{
			ID:       id,
			Nickname: p.Nickname,
			Client:   p.Client,
			Model:    p.Model,
			Roles:    p.Roles,
		})
	}

	snapshot, err := c.client.ThreadPresence(ctx, threadID)
	if err != nil {
		slog.Debug("presence snapshot unavailable", "thread", threadID, "error", err)
	}
	for _, pr := range snapshot {
		participants = append(participants, mentions.Participant{
			ID:       pr.ID,
			Nickname: detailString(pr.Details, "nickname"),
			Client:   detailString(pr.Details, "client"),
			Model:    detailString(pr.Details, "model"),
			Roles:    detailStrings(pr.Details, "roles"),
		})
	}

	c.scanDir = mentions.NewDirectory(participants)
	return c.scanDir
}

// invoke runs one adapter for one trigger event and posts the outcome
// back to the thread: the trimmed reply on success, an error report
// from the coordinator otherwise.
func (c *Coordinator) invoke(ctx context.Context, threadID, agentID string, trigger event.Event, events []event.Event) {
	agent := c.cfg.Agents[agentID]
	key := invocationKey{thread: threadID, agent: agentID}
	c.active[key] = true
	metrics.ActiveInvocations.Inc()
	defer func() {
		delete(c.active, key)
		metrics.ActiveInvocations.Dec()
		c.client.TryPostPresence(ctx, threadID, agentID, presenceListening, nil)
	}()

	slog.Info("invoking adapter", "thread", threadID, "agent", agentID, "trigger", trigger.ID)
	c.client.TryPostPresence(ctx, threadID, agentID, presenceThinking, nil)

	res := c.runner.Invoke(ctx, adapter.Invocation{
		Agent:   agentID,
		Command: agent.Command,
		Dir:     agent.Cwd,
		Env:     agent.Env,
		Payload: c.buildPayload(threadID, trigger, events),
	})
	metrics.AdapterDuration.WithLabelValues(agentID).Observe(res.Duration.Seconds())

	if res.ExitCode == 0 {
		metrics.DispatchesTotal.WithLabelValues(agentID, "ok").Inc()
		reply := strings.TrimSpace(truncate(strings.TrimSpace(res.Stdout), c.cfg.MaxReplyChars))
		if reply == "" {
			reply = "[no output]"
		}
		slog.Info("adapter replied",
			"thread", threadID,
			"agent", agentID,
			"invocation", res.InvocationID,
			"duration", res.Duration,
			"chars", len(reply))
		c.postEvent(ctx, threadID, event.Event{
			Type:    event.TypeMessage,
			From:    agentID,
			To:      event.All,
			Content: event.Text(reply),
			Meta:    map[string]any{"reply_to": trigger.ID, "tags": []string{"coordinator"}},
		})
		return
	}

	outcome := "error"
	if res.Timeout() {
		outcome = "timeout"
	}
	metrics.DispatchesTotal.WithLabelValues(agentID, outcome).Inc()
	slog.Warn("adapter failed",
		"thread", threadID,
		"agent", agentID,
		"invocation", res.InvocationID,
		"exit", res.ExitCode,
		"duration", res.Duration)
	report := fmt.Sprintf("Adapter failed for %s (exit %d).\n\nstderr:\n%s\n\nstdout:\n%s",
		agentID, res.ExitCode, strings.TrimSpace(res.Stderr), strings.TrimSpace(res.Stdout))
	c.postEvent(ctx, threadID, event.Event{
		Type:    event.TypeMessage,
		From:    c.cfg.CoordinatorID,
		To:      event.All,
		Content: event.Text(truncate(report, errorReplyLimit)),
		Meta:    map[string]any{"reply_to": trigger.ID, "tags": []string{"coordinator", "error"}},
	})
}

// adapterPayload is the JSON document fed to adapters on stdin.
type adapterPayload struct {
	Bridge        bridgeRef     `json:"bridge"`
	Thread        threadRef     `json:"thread"`
	Trigger       triggerRef    `json:"trigger"`
	ContextWindow []event.Event `json:"context_window"`
}

type bridgeRef struct {
	URL string `json:"url"`
}

type threadRef struct {
	ID string `json:"id"`
}

type triggerRef struct {
	ID      string          `json:"id"`
	TS      string          `json:"ts"`
	Type    string          `json:"type"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Content json.RawMessage `json:"content"`
}

func (c *Coordinator) buildPayload(threadID string, trigger event.Event, events []event.Event) adapterPayload {
	window := []event.Event{}
	if k := c.cfg.ContextWindowSize; k > 0 {
		if len(events) > k {
			window = events[len(events)-k:]
		} else {
			window = events
		}
	}
	return adapterPayload{
		Bridge: bridgeRef{URL: c.cfg.BridgeURL},
		Thread: threadRef{ID: threadID},
		Trigger: triggerRef{
			ID:      trigger.ID,
			TS:      trigger.TS,
			Type:    trigger.Type,
			From:    trigger.From,
			To:      trigger.Recipient(),
			Content: trigger.Content,
		},
		ContextWindow: window,
	}
}

// postNotice sends a coordinator message back to the user, replying to
// the trigger event.
func (c *Coordinator) postNotice(ctx context.Context, threadID string, trigger event.Event, text string) {
	c.postEvent(ctx, threadID, event.Event{
		Type:    event.TypeMessage,
		From:    c.cfg.CoordinatorID,
		To:      event.User,
		Content: event.Text(text),
		Meta:    map[string]any{"reply_to": trigger.ID, "tags": []string{"coordinator"}},
	})
}

// postEvent appends an event, logging failures instead of propagating
// them. A rejected or lost post must never take the loop down.
func (c *Coordinator) postEvent(ctx context.Context, threadID string, e event.Event) {
	if _, err := c.client.AppendEvent(ctx, threadID, e); err != nil {
		slog.Warn("append event failed", "thread", threadID, "from", e.From, "error", err)
	}
}

func reservedNotice(prefix, token string) string {
	return fmt.Sprintf("Reserved mention %q is not supported. Address agents by id or nickname.", prefix+token)
}

func ambiguityNotice(prefix, token string, candidates []mentions.Participant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mention %q matches multiple participants:\n", prefix+token)
	for _, p := range candidates {
		if display := mentions.Display(p); display != "" {
			fmt.Fprintf(&b, "- %s — %s\n", p.ID, display)
		} else {
			fmt.Fprintf(&b, "- %s\n", p.ID)
		}
	}
	b.WriteString("Use a participant id to disambiguate.")
	return b.String()
}

func detailString(details map[string]any, key string) string {
	s, _ := details[key].(string)
	return s
}

func detailStrings(details map[string]any, key string) []string {
	raw, ok := details[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

const truncationNotice = "\n\n[truncated]\n"

// truncate caps s at max bytes. Oversized input keeps the first
// max-20 bytes, cut back to a rune boundary, plus a truncation marker.
// Truncating an already-truncated string is a no-op.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	keep := max - 20
	if keep < 0 {
		keep = 0
	}
	for keep > 0 && !utf8.RuneStart(s[keep]) {
		keep--
	}
	out := s[:keep] + truncationNotice
	if len(out) > max {
		out = out[:max]
	}
	return out
}
