// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package connections keeps the live protocol clients of connected backends.
package connections

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/mcpclient"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=registry.go Client

// Client is a live session with one backend.
type Client interface {
	// CallTool invokes a tool on the backend.
	CallTool(ctx context.Context, name string, args map[string]any) (*mcpclient.CallResult, error)
	// Tools returns the tools listed at initialization.
	Tools() []mcpclient.Tool
	// Done is closed when the backend goes away on its own.
	Done() <-chan struct{}
	// Shutdown releases the session.
	Shutdown() error
}

var _ Client = (*mcpclient.Client)(nil)

// Registry maps backend ids to clients. Its lock is held only for map
// operations; callers do I/O on the handle after it has been copied out.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: map[string]Client{}}
}

// Get returns the client of a backend.
func (r *Registry) Get(id string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// Insert stores a client and returns the one it replaced, if any.
func (r *Registry) Insert(id string, c Client) (Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.clients[id]
	r.clients[id] = c
	return prev, ok
}

// Remove deletes and returns the client of a backend.
func (r *Registry) Remove(id string) (Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	return c, ok
}

// RemoveIf deletes the entry only if it still holds c.
func (r *Registry) RemoveIf(id string, c Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.clients[id]; ok && cur == c {
		delete(r.clients, id)
		return true
	}
	return false
}

// IDs returns the registered backend ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll empties the registry and shuts every client down concurrently.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = map[string]Client{}
	r.mu.Unlock()

	var g errgroup.Group
	for id, c := range clients {
		g.Go(func() error {
			if err := c.Shutdown(); err != nil {
				logger.Warnw("failed to shut down backend client", "server", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
