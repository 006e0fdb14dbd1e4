package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/agentbridge/agentbridge/internal/logging"
	"github.com/agentbridge/agentbridge/internal/server/api"
)

var version = api.Version

func main() {
	logging.Setup()

	if len(os.Args) < 2 {
		// No subcommand: run standalone mode (default).
		if err := runStandalone(os.Args[1:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "server":
		if err := runServer(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "coordinator":
		if err := runCoordinator(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "watch":
		if err := runWatch(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		// If the first arg starts with '-', treat as standalone flags.
		if len(os.Args[1]) > 0 && os.Args[1][0] == '-' {
			if err := runStandalone(os.Args[1:]); err != nil {
				slog.Error("fatal", "error", err)
				os.Exit(1)
			}
			return
		}
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "usage: agentbridge [server|coordinator|watch|version] [flags]\n")
		os.Exit(1)
	}
}
