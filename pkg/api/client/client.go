// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client talks to the admin API of a running mcpgate daemon.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	v1 "github.com/stacklok/mcpgate/pkg/api/v1"
	"github.com/stacklok/mcpgate/pkg/config"
	"github.com/stacklok/mcpgate/pkg/events"
	"github.com/stacklok/mcpgate/pkg/networking"
	"github.com/stacklok/mcpgate/pkg/process"
	"github.com/stacklok/mcpgate/pkg/state"
	"github.com/stacklok/mcpgate/pkg/versions"
)

const (
	apiPrefix = "/api/v1"

	daemonPollInterval = 200 * time.Millisecond
)

// Client is an admin API client.
type Client struct {
	baseURL string
	http    networking.HTTPClient
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c networking.HTTPClient) Option {
	return func(cl *Client) { cl.http = c }
}

// New returns a client for the daemon at baseURL, such as http://127.0.0.1:55123.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForPort returns a client for a daemon listening on the loopback port.
func ForPort(port int, opts ...Option) *Client {
	return New(fmt.Sprintf("http://127.0.0.1:%d", port), opts...)
}

// WaitForDaemon reads the runtime file of the daemon and polls it until its
// admin API answers or timeout passes.
func WaitForDaemon(ctx context.Context, timeout time.Duration, opts ...Option) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return backoff.Retry(ctx, func() (*Client, error) {
		info, err := process.ReadRuntimeInfo()
		if err != nil {
			if errors.Is(err, process.ErrNotRunning) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		c := ForPort(info.Port, opts...)
		if _, err := c.Status(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}, backoff.WithBackOff(backoff.NewConstantBackOff(daemonPollInterval)))
}

func (c *Client) url(path string) string {
	return c.baseURL + apiPrefix + path
}

func serverPath(id string, suffix string) string {
	return "/servers/" + url.PathEscape(id) + suffix
}

// Status returns the gateway status.
func (c *Client) Status(ctx context.Context) (*v1.GatewayStatus, error) {
	return fetch[v1.GatewayStatus](ctx, c, http.MethodGet, "/status", nil)
}

// Servers lists every configured backend.
func (c *Client) Servers(ctx context.Context) ([]state.BackendView, error) {
	resp, err := fetch[v1.ServerListResponse](ctx, c, http.MethodGet, "/servers", nil)
	if err != nil {
		return nil, err
	}
	return resp.Servers, nil
}

// Server returns one backend.
func (c *Client) Server(ctx context.Context, id string) (*state.BackendView, error) {
	return fetch[state.BackendView](ctx, c, http.MethodGet, serverPath(id, ""), nil)
}

// AddServer adds a backend.
func (c *Client) AddServer(ctx context.Context, req v1.CreateServerRequest) (*config.BackendConfig, error) {
	return fetch[config.BackendConfig](ctx, c, http.MethodPost, "/servers", req, http.StatusCreated)
}

// RemoveServer removes a backend.
func (c *Client) RemoveServer(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, serverPath(id, ""))
}

// Connect connects a backend.
func (c *Client) Connect(ctx context.Context, id string) (*state.BackendView, error) {
	return fetch[state.BackendView](ctx, c, http.MethodPost, serverPath(id, "/connect"), nil)
}

// Disconnect disconnects a backend.
func (c *Client) Disconnect(ctx context.Context, id string) (*state.BackendView, error) {
	return fetch[state.BackendView](ctx, c, http.MethodPost, serverPath(id, "/disconnect"), nil)
}

// Authorize runs the OAuth flow of a backend in the daemon.
func (c *Client) Authorize(ctx context.Context, id string) (*state.BackendView, error) {
	return fetch[state.BackendView](ctx, c, http.MethodPost, serverPath(id, "/authorize"), nil)
}

// RevokeAuth drops the stored tokens of a backend.
func (c *Client) RevokeAuth(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, serverPath(id, "/oauth"))
}

// Tools lists the cached tools of a backend.
func (c *Client) Tools(ctx context.Context, id string) ([]state.ToolDescriptor, error) {
	resp, err := fetch[v1.ToolListResponse](ctx, c, http.MethodGet, serverPath(id, "/tools"), nil)
	if err != nil {
		return nil, err
	}
	return resp.Tools, nil
}

// Stats returns the call statistics of a backend.
func (c *Client) Stats(ctx context.Context, id string) (*v1.StatsResponse, error) {
	return fetch[v1.StatsResponse](ctx, c, http.MethodGet, serverPath(id, "/stats"), nil)
}

// ResetStats clears the call statistics of a backend.
func (c *Client) ResetStats(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, serverPath(id, "/stats"))
}

// Discovery reports the discovery flag.
func (c *Client) Discovery(ctx context.Context) (bool, error) {
	resp, err := fetch[v1.DiscoveryResponse](ctx, c, http.MethodGet, "/discovery", nil)
	if err != nil {
		return false, err
	}
	return resp.Enabled, nil
}

// SetDiscovery sets the discovery flag.
func (c *Client) SetDiscovery(ctx context.Context, enabled bool) (bool, error) {
	resp, err := fetch[v1.DiscoveryResponse](ctx, c, http.MethodPut, "/discovery", v1.DiscoveryRequest{Enabled: &enabled})
	if err != nil {
		return false, err
	}
	return resp.Enabled, nil
}

// Logs drains the buffered backend logs.
func (c *Client) Logs(ctx context.Context) ([]events.LogEntry, error) {
	resp, err := fetch[v1.LogsResponse](ctx, c, http.MethodGet, "/logs", nil)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func fetch[T any](ctx context.Context, c *Client, method, path string, body any, accept ...int) (*T, error) {
	opts := []networking.FetchOption{
		networking.WithMethod(method),
		networking.WithHeader("User-Agent", versions.UserAgent()),
		networking.WithAcceptedStatus(accept...),
	}
	if body != nil {
		opts = append(opts, networking.WithJSONBody(body))
	}
	out, err := networking.FetchJSON[T](ctx, c.http, c.url(path), opts...)
	if err != nil {
		return nil, apiError(err)
	}
	return out, nil
}

// send performs a request answered with 204 No Content.
func (c *Client) send(ctx context.Context, method, path string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", versions.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, networking.DefaultErrorPreviewSize))
	return apiError(networking.NewHTTPError(resp.StatusCode, req.URL.String(), string(msg)))
}

// Error is a non-success answer of the admin API.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// apiError turns an HTTP error into the message the daemon sent.
func apiError(err error) error {
	var httpErr *networking.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}
	msg := strings.TrimSpace(httpErr.Message)
	if msg == "" {
		msg = http.StatusText(httpErr.StatusCode)
	}
	return &Error{StatusCode: httpErr.StatusCode, Message: msg}
}

// IsStatus reports whether err is an admin API answer with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
