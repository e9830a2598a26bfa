// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package pending correlates JSON-RPC responses with the requests waiting for them.
package pending

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/jsonrpc2"

	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
)

// Result is delivered to a waiter exactly once.
type Result struct {
	Response *jsonrpc2.Response
	Err      error
}

// Table maps request id keys to one-shot completion channels.
// Every entry is completed, failed, or cancelled at most once.
type Table struct {
	mu      sync.Mutex
	entries map[string]chan Result
	closed  error
}

// New returns an empty table.
func New() *Table {
	return &Table{entries: make(map[string]chan Result)}
}

// Register adds an entry for key. It fails if the table has been closed by FailAll
// or if key is already waiting.
func (t *Table) Register(key string) (<-chan Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed != nil {
		return nil, t.closed
	}
	if _, exists := t.entries[key]; exists {
		return nil, mcperrors.NewProtocolError(fmt.Sprintf("duplicate request id %s", key), nil)
	}
	ch := make(chan Result, 1)
	t.entries[key] = ch
	return ch, nil
}

// Complete delivers resp to the waiter for key and removes the entry.
// It returns false when no entry exists, e.g. for a late or duplicate response.
func (t *Table) Complete(key string, resp *jsonrpc2.Response) bool {
	t.mu.Lock()
	ch, ok := t.entries[key]
	if ok {
		delete(t.entries, key)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	ch <- Result{Response: resp}
	return true
}

// Cancel removes the entry for key without delivering anything.
// It returns false if the entry was already gone.
func (t *Table) Cancel(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	delete(t.entries, key)
	return ok
}

// FailAll delivers err to every waiter, empties the table and rejects later
// registrations with err.
func (t *Table) FailAll(err error) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]chan Result)
	if t.closed == nil {
		t.closed = err
	}
	t.mu.Unlock()

	for _, ch := range entries {
		ch <- Result{Err: err}
	}
}

// Err returns the error the table was closed with, or nil.
func (t *Table) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Len returns the number of outstanding entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Wait blocks until the entry for key is resolved, timeout elapses or ctx is done.
// On timeout or cancellation the entry is removed so a late response is dropped.
func (t *Table) Wait(ctx context.Context, key string, ch <-chan Result, timeout time.Duration) (*jsonrpc2.Response, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.Response, res.Err
	case <-timer.C:
		return t.abandon(key, ch, mcperrors.NewTransportError(fmt.Sprintf("request timed out after %v", timeout), nil))
	case <-ctx.Done():
		return t.abandon(key, ch, mcperrors.NewTransportError("request cancelled", ctx.Err()))
	}
}

func (t *Table) abandon(key string, ch <-chan Result, err error) (*jsonrpc2.Response, error) {
	if t.Cancel(key) {
		return nil, err
	}
	// resolved concurrently; the result is already buffered
	res := <-ch
	return res.Response, res.Err
}
