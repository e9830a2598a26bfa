// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/stacklok/mcpgate/pkg/api/client"
	v1 "github.com/stacklok/mcpgate/pkg/api/v1"
	"github.com/stacklok/mcpgate/pkg/auth/oauth"
	"github.com/stacklok/mcpgate/pkg/config"
	"github.com/stacklok/mcpgate/pkg/process"
	"github.com/stacklok/mcpgate/pkg/storage/sqlite"
	"github.com/stacklok/mcpgate/pkg/testkit"
)

func TestDaemonEndToEnd(t *testing.T) { //nolint:paralleltest // overrides the runtime file location
	dir := t.TempDir()
	runtimePath := filepath.Join(dir, "gateway.json")
	process.SetRuntimeFilePathOverride(runtimePath)
	t.Cleanup(func() { process.SetRuntimeFilePathOverride("") })

	configPath := filepath.Join(dir, "config.yaml")
	dbPath := filepath.Join(dir, "stats.db")
	require.NoError(t, os.WriteFile(configPath, fmt.Appendf(nil, "stats:\n  db_path: %s\n  flush_interval: 1h\n", dbPath), 0o600))
	integrationPath := filepath.Join(dir, "mcp.json")

	backend, err := testkit.NewStreamableTestServer(
		testkit.WithTool("echo", "Echoes the message", func(args map[string]any) (string, error) {
			msg, _ := args["message"].(string)
			return msg, nil
		}),
	)
	require.NoError(t, err)
	t.Cleanup(backend.Close)

	d, err := New(t.Context(), Options{
		ConfigPath:      configPath,
		IntegrationPath: integrationPath,
		TokenStore:      oauth.NewMemoryStore(),
		Metrics:         true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, d.Ready, 5*time.Second, 10*time.Millisecond)

	info, err := process.ReadRuntimeInfo()
	require.NoError(t, err)
	assert.Equal(t, d.Port(), info.Port)

	c := client.ForPort(d.Port())
	status, err := c.Status(t.Context())
	require.NoError(t, err)
	assert.True(t, status.Running)

	added, err := c.AddServer(t.Context(), v1.CreateServerRequest{
		Name:      "remote",
		Transport: config.TransportHTTP,
		URL:       backend.URL + "/mcp",
		HTTPMode:  config.HTTPModeStreamable,
	})
	require.NoError(t, err)

	view, err := c.Connect(t.Context(), added.ID)
	require.NoError(t, err)
	assert.Equal(t, config.StatusConnected, view.Status)
	assert.Equal(t, 1, view.ToolCount)

	body := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`
	resp, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d/%s?client=cursor", d.Port(), added.ID), "application/json", strings.NewReader(body))
	require.NoError(t, err)
	raw := readAll(t, resp)
	assert.Equal(t, "hi", gjson.GetBytes(raw, "result.content.0.text").String())

	st, err := c.Stats(t.Context(), added.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.TotalCalls)
	assert.Equal(t, uint64(1), st.Clients["cursor"])

	published, err := os.ReadFile(integrationPath)
	require.NoError(t, err)
	assert.Contains(t, string(published), fmt.Sprintf("http://127.0.0.1:%d/%s", d.Port(), added.ID))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	require.NoError(t, d.Close())

	_, err = process.ReadRuntimeInfo()
	assert.ErrorIs(t, err, process.ErrNotRunning)

	published, err = os.ReadFile(integrationPath)
	require.NoError(t, err)
	assert.NotContains(t, string(published), added.ID)

	store, err := sqlite.OpenStatsStore(t.Context(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	persisted, err := store.LoadAll(t.Context())
	require.NoError(t, err)
	require.Contains(t, persisted, added.ID)
	assert.Equal(t, uint64(1), persisted[added.ID].TotalCalls)

	saved, err := config.NewLocalStore(configPath).Load(t.Context())
	require.NoError(t, err)
	require.Len(t, saved.Backends, 1)
	assert.Equal(t, "remote", saved.Backends[0].Name)
}

func TestStatsDBPath(t *testing.T) {
	t.Parallel()

	p, err := statsDBPath(config.StatsConfig{Disabled: true, DBPath: "/tmp/x.db"})
	require.NoError(t, err)
	assert.Empty(t, p)

	p, err = statsDBPath(config.StatsConfig{DBPath: "/tmp/x.db"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", p)
}

func readAll(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return data
}
