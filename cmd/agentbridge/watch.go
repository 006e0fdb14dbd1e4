package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/agentbridge/agentbridge/internal/coordinator/bridge"
	"github.com/agentbridge/agentbridge/internal/event"
)

// watchResetThreshold is the stream lifetime after which the reconnect
// backoff starts over.
const watchResetThreshold = 30 * time.Second

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	bridgeURL := fs.String("bridge", "http://localhost:5111", "bridge server URL")
	thread := fs.String("thread", "", "thread id to tail")
	since := fs.String("since", "", "replay events after this timestamp first")
	_ = fs.Parse(args)

	if *thread == "" {
		fmt.Fprintln(os.Stderr, "agentbridge watch: -thread is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := bridge.New(*bridgeURL)
	last := *since

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = 60 * time.Second
	bo.Multiplier = 2.0
	bo.RandomizationFactor = 0.2

	for {
		start := time.Now()
		err := client.Stream(ctx, *thread, last, func(e event.Event) {
			if e.TS > last {
				last = e.TS
			}
			printEvent(e)
		})
		if ctx.Err() != nil {
			return nil
		}

		// A stream that lived for a while earns a fresh backoff.
		if time.Since(start) >= watchResetThreshold {
			bo.Reset()
		}
		interval := bo.NextBackOff()
		slog.Warn("stream interrupted, reconnecting...", "error", err, "backoff", interval)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func printEvent(e event.Event) {
	body := e.Text()
	if body == "" {
		body = string(e.Content)
	}
	if e.Type == event.TypeMessage {
		fmt.Printf("%s %s -> %s: %s\n", e.TS, e.From, e.Recipient(), body)
		return
	}
	fmt.Printf("%s %s -> %s [%s]: %s\n", e.TS, e.From, e.Recipient(), e.Type, body)
}
