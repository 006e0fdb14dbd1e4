package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/agentbridge/agentbridge/internal/logging"
	"github.com/agentbridge/agentbridge/internal/server/config"
	"github.com/agentbridge/agentbridge/server"
)

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	cfg := config.DefineFlags(fs)
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(args)

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	logging.PrintBanner("server", version, cfg.Addr)

	srv, err := server.NewServer(server.ServerConfig{
		Addr:    cfg.Addr,
		DataDir: cfg.DataDir,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}
