package coordinator

import (
	"context"
	"log/slog"

	"github.com/agentbridge/agentbridge/internal/coordinator/bridge"
	"github.com/agentbridge/agentbridge/internal/coordinator/config"
	"github.com/agentbridge/agentbridge/internal/metrics"
)

// Presence states published by the coordinator.
const (
	presenceThinking  = "thinking"
	presenceListening = "listening"
)

// maybeHeartbeat publishes listening presence for every configured
// agent in every known thread once per heartbeat interval, skipping
// agents that are mid-invocation. The coordinator announces itself
// alongside them. All posts are best-effort.
func (c *Coordinator) maybeHeartbeat(ctx context.Context, threads []bridge.Thread) {
	interval := c.cfg.HeartbeatInterval()
	if interval <= 0 {
		return
	}
	now := c.now()
	if !c.lastHeartbeat.IsZero() && now.Sub(c.lastHeartbeat) < interval {
		return
	}
	c.lastHeartbeat = now

	for _, t := range threads {
		for _, id := range c.agentIDs {
			if c.active[invocationKey{thread: t.ID, agent: id}] {
				continue
			}
			c.client.TryPostPresence(ctx, t.ID, id, presenceListening, profileDetails(c.cfg.Agents[id].Profile))
		}
		c.client.TryPostPresence(ctx, t.ID, c.cfg.CoordinatorID, presenceListening, map[string]any{
			"client":   "agent-bridge",
			"model":    "coordinator",
			"nickname": "coordinator",
		})
	}
	metrics.HeartbeatsTotal.Inc()
	slog.Debug("presence heartbeat", "threads", len(threads))
}

// profileDetails converts a configured profile into presence details,
// leaving out empty fields. Nil means the post carries no details and
// the server keeps whatever it already has.
func profileDetails(p config.Profile) map[string]any {
	details := make(map[string]any, 4)
	if p.Client != "" {
		details["client"] = p.Client
	}
	if p.Model != "" {
		details["model"] = p.Model
	}
	if p.Nickname != "" {
		details["nickname"] = p.Nickname
	}
	if len(p.Roles) > 0 {
		details["roles"] = p.Roles
	}
	if len(details) == 0 {
		return nil
	}
	return details
}
