// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle drives backends through their connection states and
// keeps the configuration state, the connection registry and the published
// endpoints in step with each other.
package lifecycle

import (
	"context"

	"github.com/stacklok/mcpgate/pkg/auth/oauth"
	"github.com/stacklok/mcpgate/pkg/config"
	"github.com/stacklok/mcpgate/pkg/connections"
	"github.com/stacklok/mcpgate/pkg/state"
)

//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks -source=manager.go Manager,Connector,Authenticator

// Manager is the management surface of the gateway.
type Manager interface {
	// List returns every configured backend with its runtime details.
	List() []state.BackendView
	// Get returns one backend.
	Get(id string) (state.BackendView, error)
	// Add stores a new backend, minting its id when empty.
	Add(ctx context.Context, backend config.BackendConfig) (config.BackendConfig, error)
	// Remove disconnects a backend if needed and deletes it.
	Remove(ctx context.Context, id string) error
	// Connect connects a backend.
	Connect(ctx context.Context, id string) error
	// Disconnect closes the session of a backend.
	Disconnect(ctx context.Context, id string) error
	// Authorize runs the OAuth flow for an HTTP backend and reconnects it.
	Authorize(ctx context.Context, id string) error
	// RevokeAuth drops the stored tokens of a backend.
	RevokeAuth(ctx context.Context, id string) error
	// Tools returns the cached tools of a backend.
	Tools(id string) ([]state.ToolDescriptor, error)
	// DiscoveryEnabled reports the discovery flag.
	DiscoveryEnabled() bool
	// SetDiscoveryEnabled turns the discovery endpoint on or off.
	SetDiscoveryEnabled(enabled bool)
}

// Connector opens a session with a backend.
type Connector interface {
	Connect(ctx context.Context, backend config.BackendConfig, accessToken string) (connections.Client, error)
}

// TokenResolver returns a usable access token for a backend, or "".
type TokenResolver interface {
	ResolveAccessToken(ctx context.Context, backendID string) string
}

// Authenticator is the OAuth side of the orchestrator.
type Authenticator interface {
	TokenResolver
	Authorize(ctx context.Context, backendID, serverURL string) (*oauth.Tokens, error)
	Revoke(ctx context.Context, backendID string) error
	Forget(ctx context.Context, backendID string) error
}

// ToolChangeNotifier is told about the tool names of a backend after every
// connect and disconnect.
type ToolChangeNotifier interface {
	ToolsChanged(serverID string, toolNames []string) bool
	Forget(serverID string)
}

var _ Authenticator = (*oauth.Manager)(nil)
