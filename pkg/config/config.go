// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config contains the definition of the gateway configuration file
// and the logic required to load and update it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// TransportType selects how a backend is reached.
type TransportType string

const (
	// TransportStdio spawns the backend as a child process.
	TransportStdio TransportType = "stdio"
	// TransportHTTP reaches the backend over HTTP.
	TransportHTTP TransportType = "http"
)

// HTTP modes for remote backends.
const (
	HTTPModeAuto       = "auto"
	HTTPModeStreamable = "streamable"
	HTTPModeSSE        = "sse"
)

// ConnectionStatus is the lifecycle state of a backend.
type ConnectionStatus string

const (
	// StatusDisconnected means no client is registered.
	StatusDisconnected ConnectionStatus = "disconnected"
	// StatusConnecting means a connect is in flight.
	StatusConnecting ConnectionStatus = "connecting"
	// StatusConnected means a client is registered and tools are cached.
	StatusConnected ConnectionStatus = "connected"
	// StatusError means the last connect attempt failed.
	StatusError ConnectionStatus = "error"
)

// IsActive reports whether the status is connecting or connected.
func (s ConnectionStatus) IsActive() bool {
	return s == StatusConnecting || s == StatusConnected
}

// BackendConfig is a configured MCP backend server.
type BackendConfig struct {
	ID            string            `yaml:"id" json:"id"`
	Name          string            `yaml:"name" json:"name"`
	Enabled       bool              `yaml:"enabled" json:"enabled"`
	Transport     TransportType     `yaml:"transport" json:"transport"`
	Command       string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args          []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env           map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	URL           string            `yaml:"url,omitempty" json:"url,omitempty"`
	HTTPMode      string            `yaml:"http_mode,omitempty" json:"http_mode,omitempty"`
	Headers       map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Tags          []string          `yaml:"tags,omitempty" json:"tags,omitempty"`
	Status        ConnectionStatus  `yaml:"status,omitempty" json:"status"`
	LastConnected *time.Time        `yaml:"last_connected,omitempty" json:"last_connected,omitempty"`
}

// DiscoveryConfig controls the synthetic discovery endpoint.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// GatewayConfig controls the local listener.
type GatewayConfig struct {
	// Port overrides the per-user preferred port when non-zero.
	Port int `yaml:"port,omitempty"`
}

// StatsConfig controls call statistics persistence.
type StatsConfig struct {
	// FlushInterval is how often dirty statistics are written, as a Go duration string.
	FlushInterval string `yaml:"flush_interval,omitempty"`
	// DBPath overrides the default sqlite database location.
	DBPath string `yaml:"db_path,omitempty"`
	// Disabled turns persistence off; statistics are then kept in memory only.
	Disabled bool `yaml:"disabled,omitempty"`
}

// DefaultFlushInterval is used when StatsConfig.FlushInterval is empty or invalid.
const DefaultFlushInterval = 30 * time.Second

// FlushEvery returns the parsed flush interval.
func (s StatsConfig) FlushEvery() time.Duration {
	if s.FlushInterval == "" {
		return DefaultFlushInterval
	}
	d, err := time.ParseDuration(s.FlushInterval)
	if err != nil || d <= 0 {
		return DefaultFlushInterval
	}
	return d
}

// Config represents the configuration of the gateway.
type Config struct {
	Backends  []BackendConfig `yaml:"backends,omitempty"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Stats     StatsConfig     `yaml:"stats,omitempty"`
}

// defaultPathGenerator generates the default config path using xdg
var defaultPathGenerator = func() (string, error) {
	return xdg.ConfigFile(filepath.Join("mcpgate", "config.yaml"))
}

// getConfigPath is the current path generator, can be replaced in tests
var getConfigPath = defaultPathGenerator

// SetConfigPathOverride makes the default store use path. An empty path restores the xdg location.
func SetConfigPathOverride(path string) {
	if path == "" {
		getConfigPath = defaultPathGenerator
		return
	}
	getConfigPath = func() (string, error) { return path, nil }
}

func createNewConfigWithDefaults() Config {
	return Config{
		Backends:  []BackendConfig{},
		Discovery: DiscoveryConfig{Enabled: false},
	}
}

// normalize fills in defaults for fields older files may omit.
func (c *Config) normalize() {
	for i := range c.Backends {
		b := &c.Backends[i]
		if b.Status == "" {
			b.Status = StatusDisconnected
		}
		if b.Transport == TransportHTTP && b.HTTPMode == "" {
			b.HTTPMode = HTTPModeAuto
		}
	}
}

func (c *Config) saveToPath(configPath string) error {
	if configPath == "" {
		var err error
		configPath, err = getConfigPath()
		if err != nil {
			return fmt.Errorf("unable to fetch config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	configBytes, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error serializing config file: %w", err)
	}

	if err := os.WriteFile(configPath, configBytes, 0o600); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Backend returns the backend with the given id.
func (c *Config) Backend(id string) (*BackendConfig, bool) {
	for i := range c.Backends {
		if c.Backends[i].ID == id {
			return &c.Backends[i], true
		}
	}
	return nil, false
}
