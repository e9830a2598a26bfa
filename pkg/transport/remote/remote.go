// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package remote implements the MCP transports over HTTP: streamable mode
// (one POST per message) and the legacy mode (a long-lived event stream
// for responses plus POSTs to a discovered endpoint).
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
	"github.com/stacklok/mcpgate/pkg/networking"
	"github.com/stacklok/mcpgate/pkg/transport/types"
)

const (
	// DefaultEndpointTimeout bounds the wait for the legacy endpoint event.
	DefaultEndpointTimeout = 15 * time.Second

	// SessionHeader carries the MCP session id.
	SessionHeader = "Mcp-Session-Id"

	acceptBoth = "application/json, text/event-stream"

	maxResponseSize = 10 * 1024 * 1024
)

// Mode values accepted in Options.Mode.
const (
	ModeAuto       = "auto"
	ModeStreamable = "streamable"
	ModeSSE        = "sse"
)

// Options configures an HTTP transport.
type Options struct {
	ServerID        string
	URL             string
	Headers         map[string]string
	AccessToken     string
	Mode            string
	HTTPClient      *http.Client
	RequestTimeout  time.Duration
	EndpointTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = types.DefaultRequestTimeout
	}
	if o.EndpointTimeout <= 0 {
		o.EndpointTimeout = DefaultEndpointTimeout
	}
}

// DetectMode resolves the transport type for a URL. An explicit mode wins;
// otherwise a path ending in /sse selects the legacy mode.
func DetectMode(rawURL, mode string) types.TransportType {
	switch mode {
	case ModeSSE:
		return types.TransportTypeSSE
	case ModeStreamable:
		return types.TransportTypeStreamableHTTP
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return types.TransportTypeStreamableHTTP
	}
	if strings.HasSuffix(strings.TrimSuffix(u.Path, "/"), "/sse") {
		return types.TransportTypeSSE
	}
	return types.TransportTypeStreamableHTTP
}

// Connect opens the transport selected by DetectMode.
func Connect(ctx context.Context, opts Options) (types.Transport, error) {
	if opts.URL == "" {
		return nil, mcperrors.NewConnectionFailedError("No URL specified", nil)
	}
	if !networking.IsURL(opts.URL) {
		return nil, mcperrors.NewConnectionFailedError(fmt.Sprintf("invalid URL %q", opts.URL), nil)
	}
	opts.setDefaults()

	if DetectMode(opts.URL, opts.Mode) == types.TransportTypeSSE {
		return connectLegacy(ctx, opts)
	}
	st, err := newStreamable(ctx, opts)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func applyHeaders(req *http.Request, opts *Options) {
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if opts.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+opts.AccessToken)
	}
}

// statusError classifies a non-2xx response, draining a preview of its body.
func statusError(resp *http.Response, requestURL string) error {
	preview, _ := io.ReadAll(io.LimitReader(resp.Body, networking.DefaultErrorPreviewSize))
	httpErr := networking.NewHTTPError(resp.StatusCode, requestURL, strings.TrimSpace(string(preview)))
	if resp.StatusCode == http.StatusUnauthorized {
		return mcperrors.NewAuthRequiredError("backend requires authorization", httpErr)
	}
	return mcperrors.NewTransportError(fmt.Sprintf("unexpected status %d", resp.StatusCode), httpErr)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// requestError wraps a failed HTTP round trip.
func requestError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return mcperrors.NewTransportError("request timed out", err)
	}
	return mcperrors.NewTransportError("HTTP request failed", err)
}
