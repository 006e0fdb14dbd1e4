package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the bridge server's runtime configuration.
type Config struct {
	Addr    string // Listen address (e.g. ":5111")
	DataDir string // Data directory for journals, index, suggestions
}

// DefineFlags registers command-line flags on the given flag set.
// Call fs.Parse() separately after defining all flags.
func DefineFlags(fs *flag.FlagSet) *Config {
	c := &Config{}
	fs.StringVar(&c.Addr, "addr", ":5111", "listen address")
	fs.StringVar(&c.DataDir, "data-dir", DefaultDataDir(), "data directory")
	return c
}

// Validate checks the configuration values and ensures the data directory exists.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}

	if err := os.MkdirAll(c.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	return nil
}

// DefaultDataDir returns the default location for bridge data.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "agentbridge")
	}
	return filepath.Join(home, ".config", "agentbridge")
}
