// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/exp/jsonrpc2"

	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
	"github.com/stacklok/mcpgate/pkg/jsonrpc"
	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/networking"
	"github.com/stacklok/mcpgate/pkg/transport/types"
)

// StreamableTransport sends each message as its own POST through the mcp-go
// streamable HTTP client.
type StreamableTransport struct {
	opts   Options
	client *transport.StreamableHTTP
	ids    atomic.Int64
	closed atomic.Bool
}

var _ types.Transport = (*StreamableTransport)(nil)

func newStreamable(ctx context.Context, opts Options) (*StreamableTransport, error) {
	headers := make(map[string]string, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		headers[k] = v
	}
	if opts.AccessToken != "" {
		headers["Authorization"] = "Bearer " + opts.AccessToken
	}

	client, err := transport.NewStreamableHTTP(opts.URL,
		transport.WithHTTPHeaders(headers),
		transport.WithHTTPBasicClient(sizeLimitedClient(opts.HTTPClient)),
		transport.WithHTTPLogger(mcpLogger{server: opts.ServerID}),
	)
	if err != nil {
		return nil, mcperrors.NewConnectionFailedError(fmt.Sprintf("invalid URL %q", opts.URL), err)
	}
	if err := client.Start(ctx); err != nil {
		return nil, mcperrors.NewConnectionFailedError("failed to start streamable HTTP client", err)
	}
	return &StreamableTransport{opts: opts, client: client}, nil
}

// sizeLimitedClient copies base with a transport that caps response bodies.
func sizeLimitedClient(base *http.Client) *http.Client {
	next := base.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	limited := *base
	limited.Transport = roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		resp.Body = struct {
			io.Reader
			io.Closer
		}{
			Reader: io.LimitReader(resp.Body, maxResponseSize),
			Closer: resp.Body,
		}
		return resp, nil
	})
	return &limited
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// mcpLogger routes the mcp-go client's own logging into ours.
type mcpLogger struct {
	server string
}

func (l mcpLogger) Infof(format string, v ...any) {
	logger.Debugw(fmt.Sprintf(format, v...), "server", l.server)
}

func (l mcpLogger) Errorf(format string, v ...any) {
	logger.Warnw(fmt.Sprintf(format, v...), "server", l.server)
}

// SessionID returns the session id the backend assigned, if any.
func (t *StreamableTransport) SessionID() string {
	return t.client.GetSessionId()
}

// SendRequest posts a request and returns the reply, which the backend may
// send as plain JSON or as an event stream.
func (t *StreamableTransport) SendRequest(ctx context.Context, method string, params any) (*jsonrpc2.Response, error) {
	if t.closed.Load() {
		return nil, mcperrors.NewTransportError("transport closed", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.RequestTimeout)
	defer cancel()

	resp, err := t.client.SendRequest(ctx, transport.JSONRPCRequest{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      mcp.NewRequestId(t.ids.Add(1)),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, t.classify(ctx, err)
	}

	if method == string(mcp.MethodInitialize) {
		var result struct {
			ProtocolVersion string `json:"protocolVersion"`
		}
		if json.Unmarshal(resp.Result, &result) == nil && result.ProtocolVersion != "" {
			t.client.SetProtocolVersion(result.ProtocolVersion)
		}
	}

	envelope, err := json.Marshal(resp)
	if err != nil {
		return nil, mcperrors.NewProtocolError("failed to re-encode response", err)
	}
	return jsonrpc.DecodeResponse(envelope)
}

// SendNotification posts a notification. A rejection other than 401 is
// logged and otherwise ignored.
func (t *StreamableTransport) SendNotification(ctx context.Context, method string, params any) error {
	if t.closed.Load() {
		return mcperrors.NewTransportError("transport closed", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.RequestTimeout)
	defer cancel()

	notification := mcp.JSONRPCNotification{JSONRPC: mcp.JSONRPC_VERSION}
	notification.Method = method
	if fields, ok := params.(map[string]any); ok {
		notification.Params.AdditionalFields = fields
	}

	err := t.client.SendNotification(ctx, notification)
	if err == nil {
		return nil
	}
	if errors.Is(err, transport.ErrUnauthorized) {
		return t.classify(ctx, err)
	}
	logger.Warnw("backend rejected notification", "server", t.opts.ServerID, "method", method, "error", err)
	return nil
}

// classify maps mcp-go client errors onto the gateway's error types.
func (t *StreamableTransport) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, transport.ErrUnauthorized):
		return mcperrors.NewAuthRequiredError("backend requires authorization",
			networking.NewHTTPError(http.StatusUnauthorized, t.opts.URL, err.Error()))
	case errors.Is(err, transport.ErrLegacySSEServer):
		return mcperrors.NewTransportError("backend rejected the streamable HTTP handshake; set the backend mode to sse", err)
	case errors.Is(err, transport.ErrSessionTerminated):
		return mcperrors.NewTransportError("backend ended the session", err)
	case t.closed.Load():
		return mcperrors.NewTransportError("transport closed", err)
	}
	return requestError(ctx, err)
}

// Close ends the session. Backends that issued a session id are sent a
// best-effort DELETE.
func (t *StreamableTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := t.client.Close(); err != nil {
		logger.Debugw("streamable HTTP client close failed", "server", t.opts.ServerID, "error", err)
	}
	return nil
}
