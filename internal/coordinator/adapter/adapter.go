// Package adapter runs external agent programs as one-shot
// subprocesses: the dispatch payload goes in on stdin, the reply comes
// back on stdout. Failures never surface as errors; they are encoded
// as exit codes so the dispatch loop can report them uniformly.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"syscall"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Synthetic exit codes for runs that never produced a real one.
const (
	// ExitTimeout marks an adapter killed for exceeding its deadline.
	ExitTimeout = 124
	// ExitSpawnError marks an adapter that could not be started.
	ExitSpawnError = 125
)

// Invocation describes one adapter run.
type Invocation struct {
	// Agent is the participant id the run is on behalf of.
	Agent string
	// Command is the argv vector to spawn.
	Command []string
	// Dir is the working directory; empty means inherit.
	Dir string
	// Env entries are appended to the parent environment.
	Env map[string]string
	// Payload is marshalled to JSON and written to stdin.
	Payload any
}

// Result is the outcome of a completed run.
type Result struct {
	// InvocationID correlates log lines for one run.
	InvocationID string
	ExitCode     int
	Stdout       string
	Stderr       string
	Duration     time.Duration
}

// Timeout reports whether the run was killed for exceeding its deadline.
func (r Result) Timeout() bool { return r.ExitCode == ExitTimeout }

// Runner invokes adapter subprocesses with a per-run deadline.
type Runner struct {
	// Timeout bounds each run; zero or negative means no deadline.
	Timeout time.Duration
}

// Invoke runs the invocation to completion and classifies the outcome.
// The subprocess gets SIGTERM when ctx is cancelled or the deadline
// passes, then SIGKILL if it lingers.
func (r *Runner) Invoke(ctx context.Context, inv Invocation) Result {
	res := Result{InvocationID: newInvocationID()}

	if len(inv.Command) == 0 {
		res.ExitCode = ExitSpawnError
		res.Stderr = "adapter error: empty command"
		return res
	}
	payload, err := json.Marshal(inv.Payload)
	if err != nil {
		res.ExitCode = ExitSpawnError
		res.Stderr = fmt.Sprintf("adapter error: encode payload: %v", err)
		return res
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, inv.Command[0], inv.Command[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = append(cmd.Environ(), envPairs(inv.Env)...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// SIGTERM first so the adapter can flush; Go escalates to SIGKILL
	// after WaitDelay.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	runErr := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.ExitCode = ExitTimeout
		res.Stdout = ""
		res.Stderr = "adapter timeout after " + strconv.Itoa(int(r.Timeout.Seconds())) + "s"
	case runErr == nil:
		res.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = ExitSpawnError
			res.Stdout = ""
			res.Stderr = "adapter error: " + runErr.Error()
		}
	}
	return res
}

func envPairs(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+env[k])
	}
	return pairs
}

func newInvocationID() string {
	id, err := gonanoid.Generate("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789", 16)
	if err != nil {
		panic(fmt.Sprintf("generate nanoid: %v", err))
	}
	return id
}
