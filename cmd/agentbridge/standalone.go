package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/agentbridge/agentbridge/coordinator"
	"github.com/agentbridge/agentbridge/internal/coordinator/bridge"
	coordconfig "github.com/agentbridge/agentbridge/internal/coordinator/config"
	"github.com/agentbridge/agentbridge/internal/logging"
	srvconfig "github.com/agentbridge/agentbridge/internal/server/config"
	"github.com/agentbridge/agentbridge/server"
)

func runStandalone(args []string) error {
	fs := flag.NewFlagSet("agentbridge", flag.ExitOnError)
	cfg := srvconfig.DefineFlags(fs)
	configPath := fs.String("config", coordconfig.DefaultConfigPath(), "coordinator config file")
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(args)

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	logging.PrintBanner("standalone", version, cfg.Addr)

	srv, err := server.NewServer(server.ServerConfig{
		Addr:    cfg.Addr,
		DataDir: cfg.DataDir,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the server in background.
	var wg sync.WaitGroup
	srvErrCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		srvErrCh <- srv.Serve(ctx)
	}()

	client := bridge.New(loopbackURL(cfg.Addr))
	if err := waitForPing(ctx, client); err != nil {
		stop()
		wg.Wait()
		return fmt.Errorf("wait for bridge: %w", err)
	}

	// The coordinator half is optional: without a usable config the
	// process still serves the bridge API.
	if coordCfg := loadStandaloneCoordinator(*configPath); coordCfg != nil {
		coordCfg.BridgeURL = client.BaseURL()
		statePath := os.Getenv("BRIDGE_COORDINATOR_STATE")
		if statePath == "" {
			statePath = filepath.Join(cfg.DataDir, "conversations", "coordinator_state.json")
		}

		c, err := coordinator.New(coordCfg, statePath)
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("create coordinator: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("coordinator error", "error", err)
			}
		}()
	}

	select {
	case err := <-srvErrCh:
		stop()
		wg.Wait()
		return err
	case <-ctx.Done():
		wg.Wait()
		return nil
	}
}

func loadStandaloneCoordinator(path string) *coordconfig.Config {
	cfg, err := coordconfig.Load(path)
	if err != nil {
		slog.Warn("coordinator config not loaded, running server only", "path", path, "error", err)
		return nil
	}
	if err := cfg.Validate(); err != nil {
		slog.Warn("coordinator config invalid, running server only", "path", path, "error", err)
		return nil
	}
	return cfg
}

// waitForPing polls until the in-process server answers (max ~5 seconds).
func waitForPing(ctx context.Context, client *bridge.Client) error {
	for i := 0; i < 50; i++ {
		if err := client.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("bridge did not answer /ping at %s in time", client.BaseURL())
}

// loopbackURL turns a listen address into a dialable local URL.
func loopbackURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
