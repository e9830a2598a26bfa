// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package stdio implements the MCP transport over a child process's standard streams.
package stdio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/jsonrpc2"

	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
	"github.com/stacklok/mcpgate/pkg/jsonrpc"
	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/process"
	"github.com/stacklok/mcpgate/pkg/transport/pending"
	"github.com/stacklok/mcpgate/pkg/transport/types"
)

const (
	// maxLineSize caps a single stdout message.
	maxLineSize = 10 * 1024 * 1024
	// stderrRingSize is how many error lines are kept for exit diagnostics.
	stderrRingSize = 10
	// defaultShutdownGrace is how long Close waits after closing stdin.
	defaultShutdownGrace = 2 * time.Second
	// exitDrainGrace is how long stderr may drain after the process exits.
	// A descendant that inherited the pipes can keep them open much longer.
	exitDrainGrace = 250 * time.Millisecond
	outboundBuffer = 64
)

// StderrHandler receives every classified stderr line.
type StderrHandler func(level slog.Level, line string)

// Config describes the process to spawn.
type Config struct {
	ServerID       string
	Command        string
	Args           []string
	Env            map[string]string
	RequestTimeout time.Duration
	ShutdownGrace  time.Duration
	OnStderr       StderrHandler
}

// Transport speaks newline-delimited JSON-RPC with a child process.
type Transport struct {
	cfg   Config
	cmd   *exec.Cmd
	stdin io.WriteCloser

	ids      types.IDGenerator
	pending  *pending.Table
	outbound chan []byte
	errLines *lineRing

	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	exitMu  sync.Mutex
	exitErr error
}

var _ types.Transport = (*Transport)(nil)

// Spawn starts the process and its I/O loops. A missing executable is reported
// as a dependency_missing error; other start failures as connection_failed.
func Spawn(ctx context.Context, cfg Config) (*Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, mcperrors.NewConnectionFailedError("spawn cancelled", err)
	}
	if cfg.Command == "" {
		return nil, mcperrors.NewConnectionFailedError("No command specified", nil)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = types.DefaultRequestTimeout
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}

	// #nosec G204: the command comes from the user's own backend configuration.
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, mcperrors.NewConnectionFailedError("failed to open stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, mcperrors.NewConnectionFailedError("failed to open stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, mcperrors.NewConnectionFailedError("failed to open stderr", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, mcperrors.NewDependencyMissingError(
				fmt.Sprintf("command %q not found; install it or fix the backend command", cfg.Command), err)
		}
		return nil, mcperrors.NewConnectionFailedError(fmt.Sprintf("failed to start %q", cfg.Command), err)
	}

	t := &Transport{
		cfg:      cfg,
		cmd:      cmd,
		stdin:    stdin,
		pending:  pending.New(),
		outbound: make(chan []byte, outboundBuffer),
		errLines: newLineRing(stderrRingSize),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		t.readStdout(stdout)
	}()
	go func() {
		defer readers.Done()
		t.readStderr(stderr)
	}()
	go t.writeLoop()
	go t.waitForExit(&readers, stdout, stderr)

	logger.Debugw("spawned backend process", "server", cfg.ServerID, "command", cfg.Command, "pid", cmd.Process.Pid)
	return t, nil
}

// SendRequest writes a request and waits for the response with the same id.
// A JSON-RPC error object in the response is returned as a protocol error
// alongside the response.
func (t *Transport) SendRequest(ctx context.Context, method string, params any) (*jsonrpc2.Response, error) {
	if t.closed.Load() {
		return nil, mcperrors.NewTransportError("transport closed", nil)
	}

	id := t.ids.Next()
	req, err := jsonrpc2.NewCall(id, method, params)
	if err != nil {
		return nil, mcperrors.NewProtocolError("failed to build request", err)
	}
	line, err := jsonrpc.EncodeLine(req)
	if err != nil {
		return nil, mcperrors.NewProtocolError("failed to encode request", err)
	}

	key := jsonrpc.IDKey(id)
	ch, err := t.pending.Register(key)
	if err != nil {
		return nil, err
	}
	if err := t.enqueue(ctx, line); err != nil {
		t.pending.Cancel(key)
		return nil, err
	}

	resp, err := t.pending.Wait(ctx, key, ch, t.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return resp, jsonrpc.ResponseError(resp)
}

// SendNotification writes a message without an id.
func (t *Transport) SendNotification(ctx context.Context, method string, params any) error {
	if t.closed.Load() {
		return mcperrors.NewTransportError("transport closed", nil)
	}
	msg, err := jsonrpc2.NewNotification(method, params)
	if err != nil {
		return mcperrors.NewProtocolError("failed to build notification", err)
	}
	line, err := jsonrpc.EncodeLine(msg)
	if err != nil {
		return mcperrors.NewProtocolError("failed to encode notification", err)
	}
	return t.enqueue(ctx, line)
}

func (t *Transport) enqueue(ctx context.Context, line []byte) error {
	select {
	case <-t.done:
		return t.exitError()
	default:
	}
	select {
	case t.outbound <- line:
		return nil
	case <-t.done:
		return t.exitError()
	case <-t.closing:
		return mcperrors.NewTransportError("transport closed", nil)
	case <-ctx.Done():
		return mcperrors.NewTransportError("send cancelled", ctx.Err())
	}
}

// writeLoop is the only writer to stdin, so on-wire order matches enqueue order.
func (t *Transport) writeLoop() {
	defer func() { _ = t.stdin.Close() }()
	for {
		select {
		case line := <-t.outbound:
			if _, err := t.stdin.Write(line); err != nil {
				logger.Debugw("failed to write to backend stdin", "server", t.cfg.ServerID, "error", err)
				return
			}
		case <-t.closing:
			return
		case <-t.done:
			return
		}
	}
}

func (t *Transport) readStdout(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg, err := jsonrpc.DecodeLine([]byte(line))
		if err != nil {
			logger.Warnw("ignoring unparseable line from backend", "server", t.cfg.ServerID, "line", truncate(line, 200))
			continue
		}
		switch m := msg.(type) {
		case *jsonrpc2.Response:
			if !t.pending.Complete(jsonrpc.IDKey(m.ID), m) {
				logger.Debugw("dropping response with no waiter", "server", t.cfg.ServerID, "id", m.ID.Raw())
			}
		case *jsonrpc2.Request:
			logger.Debugw("ignoring message from backend", "server", t.cfg.ServerID, "method", m.Method)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warnw("stopped reading backend stdout", "server", t.cfg.ServerID, "error", err)
	}
}

func (t *Transport) readStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		level := ClassifyLine(line)
		if level == slog.LevelError {
			t.errLines.push(line)
		}
		if t.cfg.OnStderr != nil {
			t.cfg.OnStderr(level, line)
		} else {
			logger.Logw(level, line, "server", t.cfg.ServerID)
		}
	}
}

// waitForExit waits for the process itself rather than for EOF on its pipes,
// then closes the pipes once the readers drained or the grace passed.
func (t *Transport) waitForExit(readers *sync.WaitGroup, pipes ...io.Closer) {
	state, waitErr := t.cmd.Process.Wait()

	drained := make(chan struct{})
	go func() {
		readers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(exitDrainGrace):
		logger.Debugw("backend output still open after exit", "server", t.cfg.ServerID)
	}
	for _, p := range pipes {
		_ = p.Close()
	}

	exitErr := mcperrors.NewTransportError(t.diagnostic(state, waitErr), nil)
	t.exitMu.Lock()
	t.exitErr = exitErr
	t.exitMu.Unlock()

	t.pending.FailAll(exitErr)
	close(t.done)

	if !t.closed.Load() {
		logger.Warnw("backend process exited", "server", t.cfg.ServerID, "reason", exitErr.Message)
	}
}

func (t *Transport) diagnostic(state *os.ProcessState, waitErr error) string {
	var b strings.Builder
	b.WriteString("backend process exited")
	switch {
	case waitErr != nil:
		fmt.Fprintf(&b, ": %v", waitErr)
	case state != nil && !state.Success():
		fmt.Fprintf(&b, " with %s", state.String())
	}
	if lines := t.errLines.snapshot(); len(lines) > 0 {
		b.WriteString("; stderr: ")
		b.WriteString(strings.Join(lines, " | "))
	}
	return b.String()
}

func (t *Transport) exitError() error {
	t.exitMu.Lock()
	defer t.exitMu.Unlock()
	if t.exitErr != nil {
		return t.exitErr
	}
	return mcperrors.NewTransportError("backend process exited", nil)
}

// Done is closed once the process has exited.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Closed reports whether Close has been called.
func (t *Transport) Closed() bool {
	return t.closed.Load()
}

// PID returns the child's process id.
func (t *Transport) PID() int {
	return t.cmd.Process.Pid
}

// Close closes stdin, waits for the process to exit and kills it if it does not.
// Outstanding requests fail immediately.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.pending.FailAll(mcperrors.NewTransportError("transport closed", nil))
		close(t.closing)

		select {
		case <-t.done:
			return
		case <-time.After(t.cfg.ShutdownGrace):
		}

		logger.Debugw("backend did not exit after stdin closed, terminating", "server", t.cfg.ServerID)
		if killErr := process.Terminate(t.cmd.Process.Pid, t.cfg.ShutdownGrace); killErr != nil {
			err = fmt.Errorf("failed to terminate backend process: %w", killErr)
			return
		}
		select {
		case <-t.done:
		case <-time.After(t.cfg.ShutdownGrace):
			err = fmt.Errorf("backend process %d did not exit", t.cmd.Process.Pid)
		}
	})
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
