// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
	"github.com/stacklok/mcpgate/pkg/logger"
)

// Manager owns the stored OAuth records and keeps access tokens fresh.
type Manager struct {
	store RecordStore
	flow  *Flow
	group singleflight.Group
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithHTTPClient sets the client used for discovery, registration and token calls.
func WithHTTPClient(client *http.Client) ManagerOption {
	return func(m *Manager) { m.flow.HTTPClient = client }
}

// WithBrowserOpener replaces the system browser.
func WithBrowserOpener(open func(string) error) ManagerOption {
	return func(m *Manager) { m.flow.OpenBrowser = open }
}

// WithCallbackTimeout bounds the wait for the browser redirect.
func WithCallbackTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.flow.CallbackTimeout = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.flow.Now = now }
}

// NewManager returns a Manager backed by store.
func NewManager(store RecordStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		store: store,
		flow:  &Flow{Store: store, CallbackTimeout: DefaultCallbackTimeout},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Authorize runs the interactive flow for one backend.
func (m *Manager) Authorize(ctx context.Context, backendID, serverURL string) (*Tokens, error) {
	v, err, _ := m.group.Do("authorize/"+backendID, func() (any, error) {
		return m.flow.Authorize(ctx, backendID, serverURL)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Tokens), nil
}

// Tokens returns the stored tokens of backendID, or nil.
func (m *Manager) Tokens(ctx context.Context, backendID string) *Tokens {
	rec, err := m.store.Get(ctx, backendID)
	if err != nil {
		return nil
	}
	return rec.Tokens
}

// Refresh trades the stored refresh token for a new token set. The old
// refresh token is kept when the server does not rotate it.
func (m *Manager) Refresh(ctx context.Context, backendID string) (*Tokens, error) {
	v, err, _ := m.group.Do("refresh/"+backendID, func() (any, error) {
		return m.refresh(ctx, backendID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Tokens), nil
}

func (m *Manager) refresh(ctx context.Context, backendID string) (*Tokens, error) {
	rec, err := m.store.Get(ctx, backendID)
	if err != nil {
		return nil, err
	}
	if rec.Tokens == nil || rec.Tokens.RefreshToken == "" {
		return nil, mcperrors.NewOAuthError(fmt.Sprintf("no refresh token stored for server %s", backendID), nil)
	}
	if rec.Metadata == nil || rec.ClientID == "" {
		return nil, mcperrors.NewOAuthError(fmt.Sprintf("incomplete OAuth record for server %s", backendID), nil)
	}

	cfg := oauth2Config(rec.Metadata, rec.ClientID, rec.ClientSecret, "")
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.flow.httpClient())
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.Tokens.RefreshToken}).Token()
	if err != nil {
		return nil, mcperrors.NewOAuthError("token refresh failed", err)
	}

	fresh := NewTokens(tok, m.flow.now())
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = rec.Tokens.RefreshToken
	}
	rec.Tokens = fresh
	if err := m.store.Put(ctx, backendID, rec); err != nil {
		return nil, err
	}
	logger.Debugw("refreshed access token", "server", backendID)
	return fresh, nil
}

// ResolveAccessToken returns a usable access token for backendID, refreshing
// it once if it is about to expire. It returns "" when there is none; the
// backend then answers 401 and the user is asked to sign in again.
func (m *Manager) ResolveAccessToken(ctx context.Context, backendID string) string {
	tokens := m.Tokens(ctx, backendID)
	if tokens == nil || tokens.AccessToken == "" {
		return ""
	}
	if !tokens.IsExpired(m.flow.now()) {
		return tokens.AccessToken
	}

	fresh, err := m.Refresh(ctx, backendID)
	if err != nil {
		logger.Warnw("access token expired and refresh failed", "server", backendID, "error", err)
		return ""
	}
	return fresh.AccessToken
}

// Revoke forgets the tokens of backendID. The client registration and
// metadata are kept so the next sign-in reuses them.
func (m *Manager) Revoke(ctx context.Context, backendID string) error {
	rec, err := m.store.Get(ctx, backendID)
	if mcperrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	rec.Tokens = nil
	return m.store.Put(ctx, backendID, rec)
}

// Forget deletes everything stored for backendID.
func (m *Manager) Forget(ctx context.Context, backendID string) error {
	return m.store.Delete(ctx, backendID)
}
