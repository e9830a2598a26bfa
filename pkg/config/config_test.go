// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_LoadCreatesDefaults(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")
	store := NewLocalStore(configPath)

	exists, err := store.Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)

	cfg, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cfg.Backends)
	assert.False(t, cfg.Discovery.Enabled)

	exists, err = store.Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)
}

//nolint:paralleltest // replaces the package path generator
func TestLocalStore_LoadWithEmptyPathUsesDefault(t *testing.T) {
	tempConfig := filepath.Join(t.TempDir(), "config.yaml")
	originalPathGenerator := getConfigPath
	getConfigPath = func() (string, error) { return tempConfig, nil }
	defer func() { getConfigPath = originalPathGenerator }()

	_, err := NewLocalStore("").Load(context.Background())
	require.NoError(t, err)

	_, err = os.Stat(tempConfig)
	assert.NoError(t, err)
}

func TestLocalStore_LoadNormalizesOldFiles(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
backends:
  - id: gh
    name: GitHub
    transport: http
    url: https://api.example.com/mcp
  - id: echo
    name: Echo
    transport: stdio
    command: echo-mcp-server
    status: connected
discovery:
  enabled: true
`), 0o600))

	cfg, err := NewLocalStore(configPath).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, cfg.Backends, 2)
	assert.Equal(t, StatusDisconnected, cfg.Backends[0].Status)
	assert.Equal(t, HTTPModeAuto, cfg.Backends[0].HTTPMode)
	assert.Equal(t, StatusConnected, cfg.Backends[1].Status)
	assert.True(t, cfg.Discovery.Enabled)

	b, ok := cfg.Backend("echo")
	require.True(t, ok)
	assert.Equal(t, "echo-mcp-server", b.Command)
	_, ok = cfg.Backend("missing")
	assert.False(t, ok)
}

func TestLocalStore_UpdateIsSerialized(t *testing.T) {
	t.Parallel()

	store := NewLocalStore(filepath.Join(t.TempDir(), "config.yaml"))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Update(ctx, func(c *Config) {
				c.Backends = append(c.Backends, BackendConfig{
					ID:        "b",
					Name:      "b",
					Transport: TransportStdio,
					Command:   "x",
				})
			}))
		}()
	}
	wg.Wait()

	cfg, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, cfg.Backends, 5)
}

func TestBackendConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backend BackendConfig
		wantErr string
	}{
		{"valid stdio", BackendConfig{Name: "echo", Transport: TransportStdio, Command: "npx"}, ""},
		{"valid http", BackendConfig{Name: "gh", Transport: TransportHTTP, URL: "https://x.example.com/mcp"}, ""},
		{"valid sse mode", BackendConfig{Name: "gh", Transport: TransportHTTP, URL: "http://127.0.0.1/sse", HTTPMode: HTTPModeSSE}, ""},
		{"missing name", BackendConfig{Transport: TransportStdio, Command: "npx"}, "name is required"},
		{"missing command", BackendConfig{Name: "echo", Transport: TransportStdio}, "command is required"},
		{"bad url", BackendConfig{Name: "gh", Transport: TransportHTTP, URL: "not a url"}, "valid http(s) url"},
		{"bad mode", BackendConfig{Name: "gh", Transport: TransportHTTP, URL: "https://x.example.com", HTTPMode: "ws"}, "unknown http_mode"},
		{"bad transport", BackendConfig{Name: "gh", Transport: "grpc"}, "unknown transport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.backend.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStatsConfig_FlushEvery(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultFlushInterval, StatsConfig{}.FlushEvery())
	assert.Equal(t, DefaultFlushInterval, StatsConfig{FlushInterval: "soon"}.FlushEvery())
	assert.Equal(t, DefaultFlushInterval, StatsConfig{FlushInterval: "-1s"}.FlushEvery())
	assert.Equal(t, 5*time.Second, StatsConfig{FlushInterval: "5s"}.FlushEvery())
}

func TestConnectionStatus_IsActive(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusConnected.IsActive())
	assert.True(t, StatusConnecting.IsActive())
	assert.False(t, StatusDisconnected.IsActive())
	assert.False(t, StatusError.IsActive())
}
