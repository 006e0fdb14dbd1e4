// Package server provides a reusable bridge server that can be
// embedded in other binaries (e.g. the standalone all-in-one binary).
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/agentbridge/agentbridge/internal/logging"
	"github.com/agentbridge/agentbridge/internal/metrics"
	"github.com/agentbridge/agentbridge/internal/server/api"
	"github.com/agentbridge/agentbridge/internal/server/config"
	"github.com/agentbridge/agentbridge/internal/server/presence"
	"github.com/agentbridge/agentbridge/internal/server/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// ServerConfig holds configuration for a bridge server.
type ServerConfig struct {
	Addr    string // TCP listen address
	DataDir string // Data directory for journals, index, suggestions
}

// Server is a reusable bridge server instance.
type Server struct {
	cfg    *config.Config
	store  *store.Store
	server *http.Server

	cancelRequests context.CancelFunc
}

// NewServer creates a new bridge server. It prepares the data
// directory and wires the full HTTP surface. Call Serve() to start
// listening.
func NewServer(sc ServerConfig) (*Server, error) {
	cfg := &config.Config{
		Addr:    sc.Addr,
		DataDir: sc.DataDir,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	st, err := store.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	mux := http.NewServeMux()
	api.New(st, presence.New()).Register(mux)

	// Prometheus metrics endpoint.
	mux.Handle("/metrics", promhttp.Handler())

	h2cHandler := h2c.NewHandler(logging.HTTPMiddleware(metrics.HTTPMiddleware(mux)), &http2.Server{
		MaxConcurrentStreams: 1000,
	})

	// Request contexts derive from reqCtx so open SSE streams can be
	// ended during shutdown; Shutdown alone would wait on them forever.
	reqCtx, cancelRequests := context.WithCancel(context.Background())

	server := &http.Server{
		Handler:           h2cHandler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return reqCtx },
	}

	return &Server{
		cfg:            cfg,
		store:          st,
		server:         server,
		cancelRequests: cancelRequests,
	}, nil
}

// Store returns the server's store for direct access (e.g. for
// seeding data in the standalone binary or in tests).
func (s *Server) Store() *store.Store {
	return s.store
}

// Serve starts the bridge server on its TCP listener. It blocks until
// ctx is cancelled, then performs graceful shutdown.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen tcp: %w", err)
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		slog.Info("bridge shutting down...")

		// 1. End open SSE streams.
		s.cancelRequests()

		// 2. Drain in-flight HTTP requests.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)

		close(shutdownDone)
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()

	slog.Info("bridge listening", "addr", s.cfg.Addr, "data_dir", s.cfg.DataDir)

	if err := <-errCh; err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}

	// 3. Wait for the shutdown goroutine to complete.
	<-shutdownDone
	return nil
}
