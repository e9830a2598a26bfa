// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/mcpgate/pkg/config"
	"github.com/stacklok/mcpgate/pkg/connections"
	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
	"github.com/stacklok/mcpgate/pkg/events"
	"github.com/stacklok/mcpgate/pkg/integrations"
	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/mcpclient"
	"github.com/stacklok/mcpgate/pkg/state"
	"github.com/stacklok/mcpgate/pkg/stats"
)

const (
	// ProcessExitedMessage is the status message of a backend whose session ended on its own.
	ProcessExitedMessage = "process exited"

	recoverParallelism = 4
	readyPollInterval  = 100 * time.Millisecond
	readyPollTries     = 50
)

// AuthRequiredMessage is the status message of a backend that answered 401.
func AuthRequiredMessage(id string) string {
	return fmt.Sprintf("Authentication required. Run `mcpgate auth %s` to sign in.", id)
}

// Orchestrator implements Manager. Connection I/O never runs under the state
// or registry locks.
type Orchestrator struct {
	state     *state.State
	registry  *connections.Registry
	connector Connector
	auth      Authenticator
	events    events.Sink
	syncer    integrations.Syncer
	notifier  ToolChangeNotifier
	metrics   *stats.Metrics
	recorder  *stats.Recorder
	port      func() int
	now       func() time.Time

	attemptsMu sync.Mutex
	attempts   map[string]inflight

	closing   chan struct{}
	closeOnce sync.Once
}

// inflight is a connect attempt that Disconnect can abort.
type inflight struct {
	attempt uint64
	cancel  context.CancelFunc
}

var _ Manager = (*Orchestrator)(nil)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConnector replaces the default mcpclient connector.
func WithConnector(c Connector) Option {
	return func(o *Orchestrator) { o.connector = c }
}

// WithAuthenticator enables token resolution and the OAuth flow.
func WithAuthenticator(a Authenticator) Option {
	return func(o *Orchestrator) { o.auth = a }
}

// WithEvents sets the event sink.
func WithEvents(sink events.Sink) Option {
	return func(o *Orchestrator) { o.events = sink }
}

// WithSyncer publishes the endpoints after every change.
func WithSyncer(s integrations.Syncer) Option {
	return func(o *Orchestrator) { o.syncer = s }
}

// WithNotifier reports tool changes to notification streams.
func WithNotifier(n ToolChangeNotifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithMetrics keeps the connected backends gauge current.
func WithMetrics(m *stats.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRecorder drops the statistics of removed backends.
func WithRecorder(r *stats.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithPort reports the gateway port to the syncer.
func WithPort(port func() int) Option {
	return func(o *Orchestrator) { o.port = port }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator returns an Orchestrator over st and registry.
func NewOrchestrator(st *state.State, registry *connections.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		state:    st,
		registry: registry,
		events:   events.LogSink{},
		port:     func() int { return 0 },
		now:      time.Now,
		attempts: map[string]inflight{},
		closing:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.connector == nil {
		o.connector = &ClientConnector{Events: o.events}
	}
	return o
}

// List returns every configured backend with its runtime details.
func (o *Orchestrator) List() []state.BackendView {
	return o.state.Views()
}

// Get returns one backend.
func (o *Orchestrator) Get(id string) (state.BackendView, error) {
	for _, v := range o.state.Views() {
		if v.ID == id {
			return v, nil
		}
	}
	return state.BackendView{}, notFound(id)
}

// Add stores a new backend, disconnected.
func (o *Orchestrator) Add(_ context.Context, backend config.BackendConfig) (config.BackendConfig, error) {
	if backend.ID == "" {
		backend.ID = uuid.NewString()
	}
	if err := o.state.AddBackend(backend); err != nil {
		return config.BackendConfig{}, err
	}
	added, _ := o.state.Backend(backend.ID)
	logger.Infow("backend added", "server", added.Name, "id", added.ID)
	return added, nil
}

// Remove disconnects the backend if needed and deletes it with its
// statistics and OAuth record.
func (o *Orchestrator) Remove(ctx context.Context, id string) error {
	backend, ok := o.state.Backend(id)
	if !ok {
		return notFound(id)
	}
	if err := o.state.RemoveBackend(id); err != nil {
		return err
	}
	o.abortAttempt(id)
	if client, ok := o.registry.Remove(id); ok {
		shutdown(id, client)
	}
	if o.notifier != nil {
		o.notifier.Forget(id)
	}
	if o.recorder != nil {
		if err := o.recorder.Reset(ctx, id); err != nil {
			logger.Warnw("failed to drop statistics of removed backend", "server", backend.Name, "error", err)
		}
	}
	if o.auth != nil && backend.Transport == config.TransportHTTP {
		if err := o.auth.Forget(ctx, id); err != nil {
			logger.Warnw("failed to drop OAuth record of removed backend", "server", backend.Name, "error", err)
		}
	}
	logger.Infow("backend removed", "server", backend.Name, "id", id)
	o.afterChange()
	return nil
}

// Connect moves a backend from disconnected or error to connected. A backend
// that is already connecting or connected gets an already_active error and
// is left alone. Disconnect or Remove during the handshake aborts it.
func (o *Orchestrator) Connect(ctx context.Context, id string) error {
	backend, attempt, err := o.state.BeginConnect(id)
	if err != nil {
		return err
	}
	o.emit(events.Event{Type: events.EventStatusChanged, ServerID: id, Status: config.StatusConnecting})
	logger.Infow("connecting backend", "server", backend.Name, "transport", backend.Transport)

	// the session must outlive the request that asked for it
	attemptCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.trackAttempt(id, attempt, cancel)
	defer o.untrackAttempt(id, attempt)

	if err := backend.Validate(); err != nil {
		return o.fail(backend, attempt, mcperrors.NewConnectionFailedError(err.Error(), nil))
	}

	var token string
	if backend.Transport == config.TransportHTTP && o.auth != nil {
		token = o.auth.ResolveAccessToken(attemptCtx, id)
	}

	client, err := o.connector.Connect(attemptCtx, backend, token)
	if err != nil {
		return o.fail(backend, attempt, err)
	}

	tools := descriptors(backend, client.Tools())
	if err := o.state.CompleteConnect(id, attempt, tools, o.now()); err != nil {
		logger.Infow("backend was disconnected while connecting, closing the new session", "server", backend.Name)
		shutdown(id, client)
		return mcperrors.NewConnectionFailedError(
			fmt.Sprintf("Server %s was disconnected while connecting", backend.Name), err)
	}
	o.untrackAttempt(id, attempt)
	if prev, replaced := o.registry.Insert(id, client); replaced && prev != client {
		shutdown(id, prev)
	}
	// Disconnect may have run between CompleteConnect and Insert
	if !o.state.ConnectedBy(id, attempt) {
		if o.registry.RemoveIf(id, client) {
			shutdown(id, client)
		}
		return mcperrors.NewConnectionFailedError(
			fmt.Sprintf("Server %s was disconnected while connecting", backend.Name), state.ErrAttemptSuperseded)
	}
	logger.Infow("backend connected", "server", backend.Name, "tools", len(tools))

	o.emit(events.Event{Type: events.EventStatusChanged, ServerID: id, Status: config.StatusConnected})
	o.emit(events.Event{Type: events.EventToolsUpdated, ServerID: id, Tools: len(tools)})
	o.toolsChanged(id, tools)
	o.afterChange()

	go o.watch(id, backend.Name, client)
	return nil
}

func (o *Orchestrator) trackAttempt(id string, attempt uint64, cancel context.CancelFunc) {
	o.attemptsMu.Lock()
	defer o.attemptsMu.Unlock()
	o.attempts[id] = inflight{attempt: attempt, cancel: cancel}
}

// untrackAttempt forgets a finished attempt without cancelling it, since a
// successful session keeps using its context.
func (o *Orchestrator) untrackAttempt(id string, attempt uint64) {
	o.attemptsMu.Lock()
	defer o.attemptsMu.Unlock()
	if a, ok := o.attempts[id]; ok && a.attempt == attempt {
		delete(o.attempts, id)
	}
}

// abortAttempt cancels the in-flight connect of a backend, if any.
func (o *Orchestrator) abortAttempt(id string) {
	o.attemptsMu.Lock()
	a, ok := o.attempts[id]
	delete(o.attempts, id)
	o.attemptsMu.Unlock()
	if ok {
		a.cancel()
	}
}

// fail records a failed attempt. A superseded attempt leaves the status to
// whoever superseded it.
func (o *Orchestrator) fail(backend config.BackendConfig, attempt uint64, err error) error {
	if mcperrors.IsAuthRequired(err) {
		msg := AuthRequiredMessage(backend.ID)
		logger.Warnw("backend requires authorization", "server", backend.Name)
		if o.failAttempt(backend.ID, attempt, msg) {
			o.emit(events.Event{Type: events.EventAuthRequired, ServerID: backend.ID, Message: msg})
		}
		return mcperrors.NewAuthRequiredError(msg, err)
	}

	msg := mcperrors.MessageOf(err)
	if !o.failAttempt(backend.ID, attempt, msg) {
		logger.Debugw("abandoned connect attempt failed", "server", backend.Name, "error", err)
		return err
	}
	logger.Warnw("backend connection failed", "server", backend.Name, "error", err)
	o.emit(events.Event{Type: events.EventServerError, ServerID: backend.ID, Message: msg})
	return err
}

func (o *Orchestrator) failAttempt(id string, attempt uint64, msg string) bool {
	if !o.state.FailConnect(id, attempt, msg) {
		return false
	}
	o.emit(events.Event{Type: events.EventStatusChanged, ServerID: id, Status: config.StatusError, Message: msg})
	return true
}

func (o *Orchestrator) setStatus(id string, status config.ConnectionStatus, msg string) {
	if err := o.state.SetStatus(id, status, msg); err != nil {
		logger.Debugw("failed to set backend status", "server", id, "error", err)
		return
	}
	o.emit(events.Event{Type: events.EventStatusChanged, ServerID: id, Status: status, Message: msg})
}

// Disconnect closes the session of a backend and clears its tools. A connect
// in flight is cancelled and its session, if it still arrives, is closed.
func (o *Orchestrator) Disconnect(_ context.Context, id string) error {
	backend, ok := o.state.Backend(id)
	if !ok {
		return notFound(id)
	}
	o.setStatus(id, config.StatusDisconnected, "")
	o.abortAttempt(id)
	if client, ok := o.registry.Remove(id); ok {
		shutdown(id, client)
	}
	logger.Infow("backend disconnected", "server", backend.Name)

	o.emit(events.Event{Type: events.EventToolsUpdated, ServerID: id})
	o.toolsChanged(id, nil)
	o.afterChange()
	return nil
}

// watch moves the backend to disconnected when its session ends on its own.
func (o *Orchestrator) watch(id, name string, client connections.Client) {
	select {
	case <-client.Done():
	case <-o.closing:
		return
	}
	if !o.registry.RemoveIf(id, client) {
		return
	}
	shutdown(id, client)
	logger.Warnw("backend session ended", "server", name)

	o.setStatus(id, config.StatusDisconnected, ProcessExitedMessage)
	o.emit(events.Event{Type: events.EventToolsUpdated, ServerID: id})
	o.toolsChanged(id, nil)
	o.afterChange()
}

// Recover resets the persisted statuses, waits for ready and reconnects the
// backends that were active when the previous daemon stopped.
func (o *Orchestrator) Recover(ctx context.Context, ready func() bool) error {
	previous := o.state.ResetStatuses()
	if len(previous) == 0 {
		return nil
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if ready() {
			return struct{}{}, nil
		}
		return struct{}{}, errors.New("gateway is not ready")
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(readyPollInterval)),
		backoff.WithMaxTries(readyPollTries),
	)
	if err != nil {
		logger.Warnw("gateway did not become ready, reconnecting anyway", "error", err)
	}

	logger.Infow("reconnecting backends", "count", len(previous))
	return o.connectAll(ctx, previous)
}

// ConnectEnabled connects every enabled backend that is not already active.
func (o *Orchestrator) ConnectEnabled(ctx context.Context) error {
	var enabled []config.BackendConfig
	for _, b := range o.state.Backends() {
		if b.Enabled && !b.Status.IsActive() {
			enabled = append(enabled, b)
		}
	}
	return o.connectAll(ctx, enabled)
}

func (o *Orchestrator) connectAll(ctx context.Context, backends []config.BackendConfig) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recoverParallelism)
	for _, b := range backends {
		g.Go(func() error {
			err := o.Connect(gctx, b.ID)
			switch {
			case err == nil, mcperrors.IsAlreadyActive(err):
			default:
				logger.Warnw("failed to reconnect backend", "server", b.Name, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Authorize signs in to an HTTP backend and reconnects it with the new token.
func (o *Orchestrator) Authorize(ctx context.Context, id string) error {
	backend, ok := o.state.Backend(id)
	if !ok {
		return notFound(id)
	}
	if backend.Transport != config.TransportHTTP {
		return mcperrors.NewValidationError(fmt.Sprintf("Server %s does not use the http transport", backend.Name), nil)
	}
	if o.auth == nil {
		return mcperrors.NewValidationError("OAuth is not configured", nil)
	}

	if _, err := o.auth.Authorize(ctx, id, backend.URL); err != nil {
		msg := mcperrors.MessageOf(err)
		// a live or pending session keeps working on its old token
		if current, ok := o.state.Backend(id); ok && !current.Status.IsActive() {
			o.setStatus(id, config.StatusError, msg)
		}
		o.emit(events.Event{Type: events.EventServerError, ServerID: id, Message: msg})
		return err
	}
	logger.Infow("backend authorized, reconnecting", "server", backend.Name)

	if current, ok := o.state.Backend(id); ok && current.Status == config.StatusConnected {
		if err := o.Disconnect(ctx, id); err != nil {
			return err
		}
	}
	o.setStatus(id, config.StatusDisconnected, "")
	return o.Connect(ctx, id)
}

// RevokeAuth drops the stored tokens of a backend.
func (o *Orchestrator) RevokeAuth(ctx context.Context, id string) error {
	backend, ok := o.state.Backend(id)
	if !ok {
		return notFound(id)
	}
	if o.auth == nil {
		return mcperrors.NewValidationError("OAuth is not configured", nil)
	}
	if err := o.auth.Revoke(ctx, id); err != nil {
		return err
	}
	logger.Infow("revoked OAuth tokens", "server", backend.Name)
	return nil
}

// Tools returns the cached tools of a backend.
func (o *Orchestrator) Tools(id string) ([]state.ToolDescriptor, error) {
	if _, ok := o.state.Backend(id); !ok {
		return nil, notFound(id)
	}
	tools := o.state.Tools(id)
	if tools == nil {
		tools = []state.ToolDescriptor{}
	}
	return tools, nil
}

// DiscoveryEnabled reports the discovery flag.
func (o *Orchestrator) DiscoveryEnabled() bool {
	return o.state.DiscoveryEnabled()
}

// SetDiscoveryEnabled toggles the discovery endpoint and republishes the
// endpoints.
func (o *Orchestrator) SetDiscoveryEnabled(enabled bool) {
	o.state.SetDiscoveryEnabled(enabled)
	logger.Infow("tool discovery toggled", "enabled", enabled)
	o.sync()
}

// Close stops the exit watchers and shuts down every session.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.closing)
		o.attemptsMu.Lock()
		for id, a := range o.attempts {
			a.cancel()
			delete(o.attempts, id)
		}
		o.attemptsMu.Unlock()
		o.registry.CloseAll()
	})
}

func (o *Orchestrator) toolsChanged(id string, tools []state.ToolDescriptor) {
	if o.notifier == nil {
		return
	}
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	o.notifier.ToolsChanged(id, names)
}

func (o *Orchestrator) afterChange() {
	o.metrics.SetConnected(o.registry.Len())
	o.sync()
}

func (o *Orchestrator) sync() {
	if o.syncer == nil {
		return
	}
	port := o.port()
	if port == 0 {
		return
	}
	endpoints := integrations.Endpoints(o.state.DiscoveryEnabled(), o.state.ConnectedBackends())
	if err := o.syncer.Sync(port, endpoints); err != nil {
		logger.Warnw("failed to publish gateway endpoints", "error", err)
	}
}

func (o *Orchestrator) emit(e events.Event) {
	if e.Time.IsZero() {
		e.Time = o.now()
	}
	o.events.Emit(e)
}

func shutdown(id string, client connections.Client) {
	if err := client.Shutdown(); err != nil {
		logger.Debugw("backend shutdown returned an error", "server", id, "error", err)
	}
}

func notFound(id string) error {
	return mcperrors.NewNotFoundError(fmt.Sprintf("No server found with ID: %s", id), nil)
}

func descriptors(backend config.BackendConfig, tools []mcpclient.Tool) []state.ToolDescriptor {
	out := make([]state.ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		out = append(out, state.ToolDescriptor{
			Name:        t.Name,
			Title:       t.Title,
			Description: t.Description,
			InputSchema: t.InputSchema,
			ServerID:    backend.ID,
			ServerName:  backend.Name,
		})
	}
	return out
}
