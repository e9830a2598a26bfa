// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcpgate/pkg/config"
	"github.com/stacklok/mcpgate/pkg/connections"
	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
	"github.com/stacklok/mcpgate/pkg/events"
	"github.com/stacklok/mcpgate/pkg/state"
	"github.com/stacklok/mcpgate/pkg/testkit"
)

const echoServerEnv = "MCPGATE_LIFECYCLE_ECHO"

// TestMain lets the test binary double as a stdio MCP server with one echo tool.
func TestMain(m *testing.M) {
	if os.Getenv(echoServerEnv) == "1" {
		if err := serveEcho(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func serveEcho() error {
	s := server.NewMCPServer("echo", "1.0.0", server.WithToolCapabilities(false))
	s.AddTool(
		mcp.NewTool("echo",
			mcp.WithDescription("Echoes the message back"),
			mcp.WithString("message", mcp.Required(), mcp.Description("Text to echo")),
		),
		func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := req.Params.Arguments.(map[string]any)
			msg, _ := args["message"].(string)
			return mcp.NewToolResultText(msg), nil
		},
	)
	return server.ServeStdio(s)
}

func TestStdioBackendRoundTrip(t *testing.T) {
	t.Parallel()

	st := state.New(&config.Config{Backends: []config.BackendConfig{{
		ID:        "echo-id",
		Name:      "echo",
		Enabled:   true,
		Transport: config.TransportStdio,
		Command:   os.Args[0],
		Args:      []string{"-test.run=^$"},
		Env:       map[string]string{echoServerEnv: "1"},
	}}}, nil)
	registry := connections.NewRegistry()
	sink := &recordingSink{}
	orch := NewOrchestrator(st, registry, WithEvents(sink))
	t.Cleanup(orch.Close)

	require.NoError(t, orch.Connect(t.Context(), "echo-id"))

	view, err := orch.Get("echo-id")
	require.NoError(t, err)
	assert.Equal(t, config.StatusConnected, view.Status)
	assert.Equal(t, 1, view.ToolCount)

	tools, err := orch.Tools("echo-id")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, "Echoes the message back", tools[0].Description)

	client, ok := registry.Get("echo-id")
	require.True(t, ok)
	result, err := client.CallTool(t.Context(), "echo", map[string]any{"message": "hello"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "hello", result.Text())

	require.NoError(t, orch.Disconnect(t.Context(), "echo-id"))
	view, err = orch.Get("echo-id")
	require.NoError(t, err)
	assert.Equal(t, config.StatusDisconnected, view.Status)
	assert.Zero(t, view.ToolCount)
	assert.Contains(t, sink.types("echo-id"), events.EventToolsUpdated)
}

func TestStdioBackendWithMissingCommand(t *testing.T) {
	t.Parallel()

	st := state.New(&config.Config{Backends: []config.BackendConfig{{
		ID:        "ghost-id",
		Name:      "ghost",
		Transport: config.TransportStdio,
		Command:   "mcpgate-definitely-not-installed",
	}}}, nil)
	orch := NewOrchestrator(st, connections.NewRegistry())
	t.Cleanup(orch.Close)

	err := orch.Connect(t.Context(), "ghost-id")
	require.Error(t, err)

	view, _ := orch.Get("ghost-id")
	assert.Equal(t, config.StatusError, view.Status)
	assert.NotEmpty(t, view.StatusMessage)
}

func TestHTTPBackendRequiringAuthorization(t *testing.T) {
	t.Parallel()

	ts, err := testkit.NewStreamableTestServer(testkit.WithUnauthorized())
	require.NoError(t, err)
	t.Cleanup(ts.Close)

	st := state.New(&config.Config{Backends: []config.BackendConfig{{
		ID:        "remote-id",
		Name:      "remote",
		Transport: config.TransportHTTP,
		URL:       ts.URL + "/mcp",
		HTTPMode:  config.HTTPModeStreamable,
	}}}, nil)
	registry := connections.NewRegistry()
	sink := &recordingSink{}
	orch := NewOrchestrator(st, registry, WithEvents(sink))
	t.Cleanup(orch.Close)

	err = orch.Connect(t.Context(), "remote-id")
	require.True(t, mcperrors.IsAuthRequired(err), "got %v", err)

	view, _ := orch.Get("remote-id")
	assert.Equal(t, config.StatusError, view.Status)
	assert.Equal(t, AuthRequiredMessage("remote-id"), view.StatusMessage)
	assert.Zero(t, registry.Len())
	assert.Contains(t, sink.types("remote-id"), events.EventAuthRequired)
}
