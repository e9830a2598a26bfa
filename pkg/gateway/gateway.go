// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package gateway serves every connected backend, and the discovery
// aggregate, as its own MCP endpoint on one loopback listener.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stacklok/mcpgate/pkg/connections"
	"github.com/stacklok/mcpgate/pkg/jsonrpc"
	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/networking"
	"github.com/stacklok/mcpgate/pkg/state"
	"github.com/stacklok/mcpgate/pkg/stats"
	"github.com/stacklok/mcpgate/pkg/toolcall"
)

const (
	// SessionHeader carries the session id minted by initialize.
	SessionHeader = "Mcp-Session-Id"

	// DiscoveryPath is the route of the aggregate endpoint.
	DiscoveryPath = "/discovery"

	// DefaultKeepAlive is the interval of comments on idle notification streams.
	DefaultKeepAlive = 30 * time.Second

	maxRequestBody = 4 << 20
)

// DiscoveryHandler serves the tools of the aggregate endpoint.
type DiscoveryHandler interface {
	Enabled() bool
	ListTools() []mcp.Tool
	CallTool(ctx context.Context, name string, args map[string]any, client string) (*toolcall.Result, *jsonrpc.RPCError)
}

// Deps are the collaborators of the gateway.
type Deps struct {
	State     *state.State
	Registry  *connections.Registry
	Recorder  *stats.Recorder
	Notifier  *Notifier
	Discovery DiscoveryHandler
	// Metrics is served at /metrics when set.
	Metrics *stats.Metrics
	// Admin is mounted at /api/v1 when set.
	Admin http.Handler
}

// Server is the gateway HTTP server.
type Server struct {
	state     *state.State
	forwarder *toolcall.Forwarder
	notifier  *Notifier
	discovery DiscoveryHandler
	metrics   *stats.Metrics
	admin     http.Handler

	keepAlive time.Duration
	handler   http.Handler
	http      *http.Server
	listener  net.Listener
	port      atomic.Int32
	ready     atomic.Bool

	closing   chan struct{}
	closeOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithKeepAlive sets the keep-alive interval of notification streams.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) { s.keepAlive = d }
}

// New builds the gateway. It does not listen until Listen is called.
func New(deps Deps, opts ...Option) *Server {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NewNotifier()
	}
	s := &Server{
		state:     deps.State,
		forwarder: toolcall.NewForwarder(deps.State, deps.Registry, deps.Recorder),
		notifier:  notifier,
		discovery: deps.Discovery,
		metrics:   deps.Metrics,
		admin:     deps.Admin,
		keepAlive: DefaultKeepAlive,
		closing:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.routes()
	s.http = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(checkOrigin)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	if s.admin != nil {
		r.Mount("/api/v1", s.admin)
	}
	r.Post(DiscoveryPath, s.handleDiscoveryPost)
	r.Get(DiscoveryPath, s.handleStream)
	r.Post("/{serverID}", s.handleBackendPost)
	r.Get("/{serverID}", s.handleStream)
	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Notifier returns the tool change notifier.
func (s *Server) Notifier() *Notifier {
	return s.notifier
}

// Listen binds the loopback listener, preferring portOverride when non-zero.
func (s *Server) Listen(portOverride int) error {
	ln, err := networking.ListenLoopback(portOverride)
	if err != nil {
		return err
	}
	s.listener = ln
	s.port.Store(int32(ln.Addr().(*net.TCPAddr).Port)) //nolint:gosec // TCP ports fit in int32
	return nil
}

// Serve accepts connections until Shutdown. Listen must be called first.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("gateway is not listening")
	}
	logger.Infow("gateway listening", "address", "http://"+s.listener.Addr().String())
	s.ready.Store(true)
	err := s.http.Serve(s.listener)
	s.ready.Store(false)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Port is the bound port, or 0 before Listen.
func (s *Server) Port() int {
	return int(s.port.Load())
}

// Ready reports whether the gateway is serving.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// Shutdown ends every notification stream and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.notifier.Close()
	})
	return s.http.Shutdown(ctx)
}
