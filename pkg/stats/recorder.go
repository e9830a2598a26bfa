// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stacklok/mcpgate/pkg/logger"
)

// DefaultFlushInterval is how often dirty stats are written to the Store.
const DefaultFlushInterval = 30 * time.Second

// Recorder aggregates tool calls in memory.
type Recorder struct {
	mu      sync.RWMutex
	servers map[string]*ServerStats
	dirty   map[string]bool

	// storeMu orders Persist and Reset so a flush cannot bring back stats
	// that a concurrent Reset deleted.
	storeMu sync.Mutex
	store   Store
	metrics *Metrics
	now     func() time.Time

	// OnRecord is called after each Record, outside the lock.
	OnRecord func(serverID string)
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithStore sets the persistence backend.
func WithStore(store Store) RecorderOption {
	return func(r *Recorder) { r.store = store }
}

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder returns an empty Recorder. Without a store nothing is persisted.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		servers: make(map[string]*ServerStats),
		dirty:   make(map[string]bool),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replaces the in-memory stats with what the store holds.
func (r *Recorder) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	loaded, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers = make(map[string]*ServerStats, len(loaded))
	for id, s := range loaded {
		s.ensureMaps()
		r.servers[id] = s
	}
	r.dirty = make(map[string]bool)
	logger.Debugw("loaded call statistics", "servers", len(loaded))
	return nil
}

// Record counts one tool call. The client is tallied only when non-empty.
func (r *Recorder) Record(serverID, tool, client string, d time.Duration, isError bool) {
	ms := uint64(d.Milliseconds())

	r.mu.Lock()
	s, ok := r.servers[serverID]
	if !ok {
		s = NewServerStats()
		r.servers[serverID] = s
	}
	s.TotalCalls++
	s.TotalDurationMs += ms
	if isError {
		s.Errors++
	}

	ts, ok := s.Tools[tool]
	if !ok {
		ts = &ToolStats{}
		s.Tools[tool] = ts
	}
	ts.TotalCalls++
	ts.TotalDurationMs += ms
	if isError {
		ts.Errors++
	}

	if client != "" {
		s.Clients[client]++
	}
	s.pushCall(CallEntry{
		Tool:       tool,
		Client:     client,
		DurationMs: ms,
		IsError:    isError,
		Timestamp:  r.now().Unix(),
	})
	r.dirty[serverID] = true
	r.mu.Unlock()

	r.metrics.ObserveCall(serverID, tool, d, isError)
	if r.OnRecord != nil {
		r.OnRecord(serverID)
	}
}

// Get returns a copy of the stats of serverID, empty when there are none.
func (r *Recorder) Get(serverID string) *ServerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.servers[serverID]; ok {
		return s.Clone()
	}
	return NewServerStats()
}

// Reset forgets the stats of serverID in memory and in the store.
func (r *Recorder) Reset(ctx context.Context, serverID string) error {
	r.storeMu.Lock()
	defer r.storeMu.Unlock()

	r.mu.Lock()
	delete(r.servers, serverID)
	delete(r.dirty, serverID)
	r.mu.Unlock()

	if r.store == nil {
		return nil
	}
	if err := r.store.Delete(ctx, serverID); err != nil {
		return fmt.Errorf("failed to reset stats for %s: %w", serverID, err)
	}
	return nil
}

// Persist writes every entry changed since the last flush.
func (r *Recorder) Persist(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	r.storeMu.Lock()
	defer r.storeMu.Unlock()

	r.mu.Lock()
	if len(r.dirty) == 0 {
		r.mu.Unlock()
		return nil
	}
	snapshot := make(map[string]*ServerStats, len(r.dirty))
	for id := range r.dirty {
		if s, ok := r.servers[id]; ok {
			snapshot[id] = s.Clone()
		}
	}
	flushed := r.dirty
	r.dirty = make(map[string]bool)
	r.mu.Unlock()

	if err := r.store.Save(ctx, snapshot); err != nil {
		// Put the entries back so the next flush retries them.
		r.mu.Lock()
		for id := range flushed {
			if _, ok := r.servers[id]; ok {
				r.dirty[id] = true
			}
		}
		r.mu.Unlock()
		return fmt.Errorf("failed to persist stats: %w", err)
	}
	return nil
}

// Run flushes on every tick of interval until ctx ends, then once more.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Persist(ctx); err != nil {
				logger.Warnw("stats flush failed", "error", err)
			}
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := r.Persist(flushCtx); err != nil {
				logger.Warnw("final stats flush failed", "error", err)
			}
			cancel()
			return
		}
	}
}
