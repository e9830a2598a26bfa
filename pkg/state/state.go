// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package state holds the configuration-side view of the gateway: the
// backend list with statuses, the cached tool descriptors of connected
// backends and the discovery flag. Changes are written through to the
// configuration store.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/stacklok/mcpgate/pkg/config"
	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
	"github.com/stacklok/mcpgate/pkg/logger"
)

const persistTimeout = 5 * time.Second

// ErrAttemptSuperseded is returned when a connect attempt finishes after the
// backend was disconnected, removed or connected again.
var ErrAttemptSuperseded = errors.New("connect attempt superseded")

// ToolDescriptor is a tool of a connected backend as exposed by the gateway.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	ServerID    string          `json:"server_id"`
	ServerName  string          `json:"server_name"`
}

// BackendView is a backend together with its runtime details.
type BackendView struct {
	config.BackendConfig
	StatusMessage string `json:"status_message,omitempty"`
	ToolCount     int    `json:"tool_count"`
}

// State is safe for concurrent use. Its lock is only held while fields are
// read or written.
type State struct {
	mu        sync.Mutex
	backends  []config.BackendConfig
	discovery bool
	gateway   config.GatewayConfig
	stats     config.StatsConfig
	tools     map[string][]ToolDescriptor
	messages  map[string]string
	attempts  map[string]uint64

	store     config.Store
	persistMu sync.Mutex
}

// Load reads the configuration from store and builds a State on it.
func Load(ctx context.Context, store config.Store) (*State, error) {
	cfg, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return New(cfg, store), nil
}

// New builds a State from cfg. A nil store keeps everything in memory.
func New(cfg *config.Config, store config.Store) *State {
	s := &State{
		tools:    map[string][]ToolDescriptor{},
		messages: map[string]string{},
		attempts: map[string]uint64{},
		store:    store,
	}
	if cfg != nil {
		s.backends = slices.Clone(cfg.Backends)
		s.discovery = cfg.Discovery.Enabled
		s.gateway = cfg.Gateway
		s.stats = cfg.Stats
	}
	for i := range s.backends {
		if s.backends[i].Status == "" {
			s.backends[i].Status = config.StatusDisconnected
		}
	}
	return s
}

// persist writes the backend list and discovery flag to the store. Snapshots
// are taken under persistMu so writes land in the order they were made.
func (s *State) persist() {
	if s.store == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	backends := cloneBackends(s.backends)
	discovery := s.discovery
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	err := s.store.Update(ctx, func(c *config.Config) {
		c.Backends = backends
		c.Discovery.Enabled = discovery
	})
	if err != nil {
		logger.Warnw("failed to persist configuration", "error", err)
	}
}

func cloneBackends(in []config.BackendConfig) []config.BackendConfig {
	out := make([]config.BackendConfig, len(in))
	for i, b := range in {
		out[i] = cloneBackend(b)
	}
	return out
}

func cloneBackend(b config.BackendConfig) config.BackendConfig {
	b.Args = slices.Clone(b.Args)
	b.Tags = slices.Clone(b.Tags)
	if b.Env != nil {
		env := make(map[string]string, len(b.Env))
		for k, v := range b.Env {
			env[k] = v
		}
		b.Env = env
	}
	if b.Headers != nil {
		headers := make(map[string]string, len(b.Headers))
		for k, v := range b.Headers {
			headers[k] = v
		}
		b.Headers = headers
	}
	if b.LastConnected != nil {
		t := *b.LastConnected
		b.LastConnected = &t
	}
	return b
}

func (s *State) indexLocked(id string) int {
	for i := range s.backends {
		if s.backends[i].ID == id {
			return i
		}
	}
	return -1
}

func notFound(id string) error {
	return mcperrors.NewNotFoundError(fmt.Sprintf("No server found with ID: %s", id), nil)
}

// Backends returns a copy of every backend in configuration order.
func (s *State) Backends() []config.BackendConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBackends(s.backends)
}

// Views returns every backend with its status message and tool count.
func (s *State) Views() []BackendView {
	s.mu.Lock()
	defer s.mu.Unlock()
	views := make([]BackendView, 0, len(s.backends))
	for _, b := range s.backends {
		views = append(views, BackendView{
			BackendConfig: cloneBackend(b),
			StatusMessage: s.messages[b.ID],
			ToolCount:     len(s.tools[b.ID]),
		})
	}
	return views
}

// Backend returns a copy of one backend.
func (s *State) Backend(id string) (config.BackendConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return config.BackendConfig{}, false
	}
	return cloneBackend(s.backends[i]), true
}

// AddBackend validates and appends a backend. Its status starts disconnected.
func (s *State) AddBackend(b config.BackendConfig) error {
	if b.ID == "" {
		return mcperrors.NewValidationError("backend id is required", nil)
	}
	if err := b.Validate(); err != nil {
		return mcperrors.NewValidationError(err.Error(), nil)
	}
	b.Status = config.StatusDisconnected
	b.LastConnected = nil
	if b.Transport == config.TransportHTTP && b.HTTPMode == "" {
		b.HTTPMode = config.HTTPModeAuto
	}

	s.mu.Lock()
	if s.indexLocked(b.ID) >= 0 {
		s.mu.Unlock()
		return mcperrors.NewValidationError(fmt.Sprintf("a server with ID %s already exists", b.ID), nil)
	}
	s.backends = append(s.backends, cloneBackend(b))
	s.mu.Unlock()

	s.persist()
	return nil
}

// RemoveBackend deletes a backend and everything cached for it.
func (s *State) RemoveBackend(id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return notFound(id)
	}
	s.backends = slices.Delete(s.backends, i, i+1)
	delete(s.tools, id)
	delete(s.messages, id)
	s.mu.Unlock()

	s.persist()
	return nil
}

// SetEnabled changes whether the backend is connected at startup.
func (s *State) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return notFound(id)
	}
	s.backends[i].Enabled = enabled
	s.mu.Unlock()

	s.persist()
	return nil
}

// BeginConnect moves a backend to connecting and returns the attempt number
// that CompleteConnect and FailConnect must present. It fails with not_found
// for an unknown id and already_active when a connect is in flight or done.
func (s *State) BeginConnect(id string) (config.BackendConfig, uint64, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return config.BackendConfig{}, 0, notFound(id)
	}
	b := &s.backends[i]
	if b.Status.IsActive() {
		status := b.Status
		s.mu.Unlock()
		return config.BackendConfig{}, 0, mcperrors.NewAlreadyActiveError(
			fmt.Sprintf("Server %s is already %s", id, status), nil)
	}
	b.Status = config.StatusConnecting
	delete(s.messages, id)
	s.attempts[id]++
	attempt := s.attempts[id]
	out := cloneBackend(*b)
	s.mu.Unlock()

	s.persist()
	return out, attempt, nil
}

// currentAttemptLocked reports whether attempt is still the in-flight connect
// of backend i.
func (s *State) currentAttemptLocked(i int, attempt uint64) bool {
	b := s.backends[i]
	return b.Status == config.StatusConnecting && s.attempts[b.ID] == attempt
}

// CompleteConnect marks a backend connected if attempt is still in flight.
// Otherwise nothing changes and ErrAttemptSuperseded is returned.
func (s *State) CompleteConnect(id string, attempt uint64, tools []ToolDescriptor, at time.Time) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrAttemptSuperseded
	}
	if !s.currentAttemptLocked(i, attempt) {
		s.mu.Unlock()
		return ErrAttemptSuperseded
	}
	s.setConnectedLocked(i, tools, at)
	s.mu.Unlock()

	s.persist()
	return nil
}

// ConnectedBy reports whether the backend is connected through attempt.
func (s *State) ConnectedBy(id string, attempt uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	return i >= 0 && s.backends[i].Status == config.StatusConnected && s.attempts[id] == attempt
}

// FailConnect moves a backend to error if attempt is still in flight and
// reports whether it did.
func (s *State) FailConnect(id string, attempt uint64, message string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 || !s.currentAttemptLocked(i, attempt) {
		s.mu.Unlock()
		return false
	}
	s.backends[i].Status = config.StatusError
	s.messages[id] = message
	delete(s.tools, id)
	s.mu.Unlock()

	s.persist()
	return true
}

// SetStatus sets a backend's status and message.
func (s *State) SetStatus(id string, status config.ConnectionStatus, message string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return notFound(id)
	}
	s.backends[i].Status = status
	if message == "" {
		delete(s.messages, id)
	} else {
		s.messages[id] = message
	}
	if status != config.StatusConnected {
		delete(s.tools, id)
	}
	s.mu.Unlock()

	s.persist()
	return nil
}

// SetConnected marks a backend connected and caches its tools, whatever its
// current status.
func (s *State) SetConnected(id string, tools []ToolDescriptor, at time.Time) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return notFound(id)
	}
	s.setConnectedLocked(i, tools, at)
	s.mu.Unlock()

	s.persist()
	return nil
}

func (s *State) setConnectedLocked(i int, tools []ToolDescriptor, at time.Time) {
	id := s.backends[i].ID
	s.backends[i].Status = config.StatusConnected
	connectedAt := at.UTC()
	s.backends[i].LastConnected = &connectedAt
	s.tools[id] = slices.Clone(tools)
	delete(s.messages, id)
}

// ReplaceTools swaps the cached tools of a connected backend.
func (s *State) ReplaceTools(id string, tools []ToolDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return notFound(id)
	}
	if s.backends[i].Status != config.StatusConnected {
		return mcperrors.NewValidationError(fmt.Sprintf("Server %s is not connected", id), nil)
	}
	s.tools[id] = slices.Clone(tools)
	return nil
}

// ClearConnection moves a backend to disconnected and drops its tools.
func (s *State) ClearConnection(id, message string) error {
	return s.SetStatus(id, config.StatusDisconnected, message)
}

// StatusMessage returns the human-readable status detail of a backend.
func (s *State) StatusMessage(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id]
}

// Tools returns the cached tool descriptors of a backend.
func (s *State) Tools(id string) []ToolDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tools[id])
}

// ConnectedBackends returns the connected backends in configuration order.
func (s *State) ConnectedBackends() []config.BackendConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []config.BackendConfig
	for _, b := range s.backends {
		if b.Status == config.StatusConnected {
			out = append(out, cloneBackend(b))
		}
	}
	return out
}

// DiscoveryEnabled reports whether the discovery endpoint is active.
func (s *State) DiscoveryEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discovery
}

// SetDiscoveryEnabled toggles the discovery endpoint.
func (s *State) SetDiscoveryEnabled(enabled bool) {
	s.mu.Lock()
	s.discovery = enabled
	s.mu.Unlock()
	s.persist()
}

// GatewayConfig returns the listener settings loaded at startup.
func (s *State) GatewayConfig() config.GatewayConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gateway
}

// StatsConfig returns the statistics settings loaded at startup.
func (s *State) StatsConfig() config.StatsConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// ResetStatuses moves every backend to disconnected, as after a restart, and
// returns those that were connecting or connected.
func (s *State) ResetStatuses() []config.BackendConfig {
	s.mu.Lock()
	var previous []config.BackendConfig
	for i := range s.backends {
		b := &s.backends[i]
		if b.Status.IsActive() {
			previous = append(previous, cloneBackend(*b))
		}
		b.Status = config.StatusDisconnected
	}
	s.tools = map[string][]ToolDescriptor{}
	s.messages = map[string]string{}
	s.mu.Unlock()

	s.persist()
	return previous
}
