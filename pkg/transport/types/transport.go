// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package types provides the interface shared by the process and HTTP
// transports used to talk to MCP backends.
package types

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/exp/jsonrpc2"
)

// DefaultRequestTimeout bounds how long a request waits for its response.
const DefaultRequestTimeout = 60 * time.Second

// Transport sends JSON-RPC messages to one backend and correlates responses.
type Transport interface {
	// SendRequest sends a request with a fresh id and waits for the matching response.
	SendRequest(ctx context.Context, method string, params any) (*jsonrpc2.Response, error)

	// SendNotification sends a message that expects no response.
	SendNotification(ctx context.Context, method string, params any) error

	// Close releases the transport. It is safe to call more than once.
	Close() error
}

// Watchable is implemented by transports whose backend can die on its own.
type Watchable interface {
	// Done is closed when the backend has gone away.
	Done() <-chan struct{}
}

// TransportType represents the type of transport.
//
//nolint:revive // Intentionally named TransportType despite package name
type TransportType string

const (
	// TransportTypeStdio speaks newline-delimited JSON over a child process's stdio.
	TransportTypeStdio TransportType = "stdio"

	// TransportTypeSSE is the legacy HTTP+SSE mode: one long GET stream plus POSTs.
	TransportTypeSSE TransportType = "sse"

	// TransportTypeStreamableHTTP is one POST per message.
	TransportTypeStreamableHTTP TransportType = "streamable-http"
)

// String returns the string representation of the transport type.
func (t TransportType) String() string {
	return string(t)
}

// ParseTransportType parses a string into a transport type.
func ParseTransportType(s string) (TransportType, error) {
	switch strings.ToLower(s) {
	case "stdio":
		return TransportTypeStdio, nil
	case "sse":
		return TransportTypeSSE, nil
	case "streamable-http", "streamable":
		return TransportTypeStreamableHTTP, nil
	default:
		return "", fmt.Errorf("unsupported transport type: %s", s)
	}
}

// IDGenerator hands out monotonically increasing request ids starting at 1.
// The zero value is ready to use.
type IDGenerator struct {
	last atomic.Int64
}

// Next returns the next id.
func (g *IDGenerator) Next() jsonrpc2.ID {
	return jsonrpc2.Int64ID(g.last.Add(1))
}
