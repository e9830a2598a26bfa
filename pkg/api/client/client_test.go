// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/mcpgate/pkg/api"
	v1 "github.com/stacklok/mcpgate/pkg/api/v1"
	"github.com/stacklok/mcpgate/pkg/config"
	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
	"github.com/stacklok/mcpgate/pkg/events"
	"github.com/stacklok/mcpgate/pkg/lifecycle/mocks"
	"github.com/stacklok/mcpgate/pkg/state"
	"github.com/stacklok/mcpgate/pkg/stats"
)

func newTestClient(t *testing.T) (*Client, *mocks.MockManager) {
	t.Helper()
	ctrl := gomock.NewController(t)
	manager := mocks.NewMockManager(ctrl)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", api.Router(api.Deps{
		Manager: manager,
		Stats:   stats.NewRecorder(),
		Logs:    events.NewBuffer(10),
		Status: func() v1.GatewayStatus {
			return v1.GatewayStatus{Running: true, Port: 55123}
		},
	})))
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return New(ts.URL), manager
}

func TestClientServerLifecycle(t *testing.T) {
	t.Parallel()
	c, manager := newTestClient(t)

	view := state.BackendView{BackendConfig: config.BackendConfig{
		ID: "echo-id", Name: "echo", Transport: config.TransportStdio, Command: "echo-mcp-server", Status: config.StatusConnected,
	}, ToolCount: 1}

	gomock.InOrder(
		manager.EXPECT().Add(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ any, b config.BackendConfig) (config.BackendConfig, error) {
				b.ID = "echo-id"
				b.Status = config.StatusDisconnected
				return b, nil
			}),
		manager.EXPECT().Connect(gomock.Any(), "echo-id").Return(nil),
		manager.EXPECT().Get("echo-id").Return(view, nil),
		manager.EXPECT().Tools("echo-id").Return([]state.ToolDescriptor{{Name: "echo", ServerID: "echo-id", ServerName: "echo"}}, nil),
		manager.EXPECT().Remove(gomock.Any(), "echo-id").Return(nil),
	)

	added, err := c.AddServer(t.Context(), v1.CreateServerRequest{Name: "echo", Transport: config.TransportStdio, Command: "echo-mcp-server"})
	require.NoError(t, err)
	assert.Equal(t, "echo-id", added.ID)

	connected, err := c.Connect(t.Context(), "echo-id")
	require.NoError(t, err)
	assert.Equal(t, config.StatusConnected, connected.Status)
	assert.Equal(t, 1, connected.ToolCount)

	tools, err := c.Tools(t.Context(), "echo-id")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)

	require.NoError(t, c.RemoveServer(t.Context(), "echo-id"))
}

func TestClientSurfacesDaemonMessages(t *testing.T) {
	t.Parallel()
	c, manager := newTestClient(t)

	manager.EXPECT().Connect(gomock.Any(), "echo-id").Return(mcperrors.NewAlreadyActiveError("Server echo-id is already connected", nil))
	manager.EXPECT().RevokeAuth(gomock.Any(), "missing").Return(mcperrors.NewNotFoundError("No server found with ID: missing", nil))

	_, err := c.Connect(t.Context(), "echo-id")
	require.Error(t, err)
	assert.Equal(t, "Server echo-id is already connected", err.Error())
	assert.True(t, IsStatus(err, http.StatusConflict))

	err = c.RevokeAuth(t.Context(), "missing")
	require.Error(t, err)
	assert.Equal(t, "No server found with ID: missing", err.Error())
	assert.True(t, IsStatus(err, http.StatusNotFound))
}

func TestClientDiscoveryAndStatus(t *testing.T) {
	t.Parallel()
	c, manager := newTestClient(t)

	manager.EXPECT().SetDiscoveryEnabled(true)
	manager.EXPECT().DiscoveryEnabled().Return(true)

	enabled, err := c.SetDiscovery(t.Context(), true)
	require.NoError(t, err)
	assert.True(t, enabled)

	enabled, err = c.Discovery(t.Context())
	require.NoError(t, err)
	assert.True(t, enabled)

	status, err := c.Status(t.Context())
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, 55123, status.Port)

	entries, err := c.Logs(t.Context())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestServerPathEscapesIDs(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/servers/a%2Fb/tools", serverPath("a/b", "/tools"))
}
