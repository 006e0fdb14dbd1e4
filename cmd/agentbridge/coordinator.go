package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentbridge/agentbridge/coordinator"
	"github.com/agentbridge/agentbridge/internal/coordinator/config"
	"github.com/agentbridge/agentbridge/internal/logging"
)

func runCoordinator(args []string) error {
	fs := flag.NewFlagSet("coordinator", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultConfigPath(), "coordinator config file")
	statePath := fs.String("state", config.DefaultStatePath(), "cursor state file")
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(args)

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	// Misconfiguration is an operator mistake, not a runtime failure:
	// report it plainly and exit 2.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentbridge coordinator: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "agentbridge coordinator: invalid config %s: %v\n", *configPath, err)
		os.Exit(2)
	}

	logging.PrintBanner("coordinator", version, cfg.BridgeURL)

	c, err := coordinator.New(cfg, *statePath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
