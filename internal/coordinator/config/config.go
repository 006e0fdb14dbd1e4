// Package config loads the coordinator's configuration file. Defaults,
// the file itself, and BRIDGE_* environment overrides are layered in
// that order. The file is parsed as YAML, of which JSON is a subset,
// so both formats load unchanged.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Startup modes: "end" skips everything already in the logs, "resume"
// picks up from the persisted cursors.
const (
	StartupEnd    = "end"
	StartupResume = "resume"
)

// Config holds the coordinator's runtime configuration.
type Config struct {
	BridgeURL          string           `koanf:"bridge_url"`
	CoordinatorID      string           `koanf:"coordinator_id"`
	Agents             map[string]Agent `koanf:"agents"`
	MaxReplyChars      int              `koanf:"max_reply_chars"`
	ContextWindowSize  int              `koanf:"context_window_size"`
	AdapterTimeoutS    int              `koanf:"adapter_timeout_s"`
	PollThreadsS       float64          `koanf:"poll_threads_s"`
	StartupMode        string           `koanf:"startup_mode"`
	EnableMentions     bool             `koanf:"enable_mentions"`
	MentionPrefix      string           `koanf:"mention_prefix"`
	PresenceHeartbeatS int              `koanf:"presence_heartbeat_s"`

	// Broadcast fan-out is off unless explicitly enabled; when on, a
	// user message to "all" with no mentions targets BroadcastAgents,
	// or every configured agent when the list is empty.
	EnableBroadcast bool     `koanf:"enable_broadcast"`
	BroadcastAgents []string `koanf:"broadcast_agents"`
}

// Agent describes one configured adapter.
type Agent struct {
	Command []string          `koanf:"command"`
	Cwd     string            `koanf:"cwd"`
	Env     map[string]string `koanf:"env"`
	Profile Profile           `koanf:"profile"`
}

// Profile is the identity published in presence heartbeats and used
// for mention resolution.
type Profile struct {
	Client   string   `koanf:"client"`
	Model    string   `koanf:"model"`
	Nickname string   `koanf:"nickname"`
	Roles    []string `koanf:"roles"`
}

func defaults() map[string]any {
	return map[string]any{
		"bridge_url":           "http://localhost:5111",
		"coordinator_id":       "bridge-coordinator",
		"max_reply_chars":      8000,
		"context_window_size":  25,
		"adapter_timeout_s":    600,
		"poll_threads_s":       5.0,
		"startup_mode":         "end",
		"enable_mentions":      true,
		"mention_prefix":       "@",
		"presence_heartbeat_s": 10,
		"enable_broadcast":     false,
	}
}

// Load reads the configuration from path. The file must exist; a
// missing agents table is a separate Validate error so the message can
// point at the right mistake.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	// BRIDGE_POLL_THREADS_S=2 overrides poll_threads_s, and so on for
	// every scalar key. Nested agent settings stay file-only.
	if err := k.Load(env.Provider("BRIDGE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "BRIDGE_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.BridgeURL == "" {
		return fmt.Errorf("bridge_url is required")
	}
	if c.CoordinatorID == "" {
		return fmt.Errorf("coordinator_id is required")
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("no agents configured under agents")
	}
	for id, a := range c.Agents {
		if len(a.Command) == 0 {
			return fmt.Errorf("agent %s: command is required", id)
		}
		for _, arg := range a.Command {
			if arg == "" {
				return fmt.Errorf("agent %s: command contains an empty argument", id)
			}
		}
	}
	if c.MaxReplyChars <= 0 {
		return fmt.Errorf("max_reply_chars must be positive")
	}
	if c.AdapterTimeoutS <= 0 {
		return fmt.Errorf("adapter_timeout_s must be positive")
	}
	if c.PollThreadsS <= 0 {
		return fmt.Errorf("poll_threads_s must be positive")
	}
	if c.StartupMode != StartupEnd && c.StartupMode != StartupResume {
		return fmt.Errorf("startup_mode must be \"end\" or \"resume\", got %q", c.StartupMode)
	}
	if c.EnableMentions && c.MentionPrefix == "" {
		return fmt.Errorf("mention_prefix must not be empty while mentions are enabled")
	}
	if c.PresenceHeartbeatS < 0 {
		return fmt.Errorf("presence_heartbeat_s must not be negative")
	}
	return nil
}

// PollInterval is the tick period of the coordinator loop.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollThreadsS * float64(time.Second))
}

// AdapterTimeout is the hard kill deadline for adapter runs.
func (c *Config) AdapterTimeout() time.Duration {
	return time.Duration(c.AdapterTimeoutS) * time.Second
}

// HeartbeatInterval is the presence heartbeat period; zero disables
// heartbeats.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.PresenceHeartbeatS) * time.Second
}

// DefaultConfigPath returns the default coordinator config location,
// honoring the BRIDGE_COORDINATOR_CONFIG override.
func DefaultConfigPath() string {
	if v := os.Getenv("BRIDGE_COORDINATOR_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(defaultBaseDir(), "coordinator.config.json")
}

// DefaultStatePath returns the default cursor-file location, honoring
// the BRIDGE_COORDINATOR_STATE override. The file lives inside the
// server's conversations directory, next to the journals it indexes.
func DefaultStatePath() string {
	if v := os.Getenv("BRIDGE_COORDINATOR_STATE"); v != "" {
		return v
	}
	return filepath.Join(defaultBaseDir(), "conversations", "coordinator_state.json")
}

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "agentbridge")
	}
	return filepath.Join(home, ".config", "agentbridge")
}
