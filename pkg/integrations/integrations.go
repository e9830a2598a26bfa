// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package integrations publishes the gateway's endpoints in the mcpServers
// document format understood by MCP clients, so they can be pointed at the
// gateway without hand-editing their configuration.
package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/gofrs/flock"
	"github.com/tailscale/hujson"

	"github.com/stacklok/mcpgate/pkg/config"
)

const (
	// DiscoveryEntryName is the document key of the discovery endpoint.
	DiscoveryEntryName = "mcpgate-discovery"

	lockTimeout = 1 * time.Second
)

// Endpoint is one gateway route to publish.
type Endpoint struct {
	Name string
	Path string
}

// Syncer publishes the current endpoints.
type Syncer interface {
	Sync(port int, endpoints []Endpoint) error
}

// Endpoints lists what a client should connect to: only the discovery
// endpoint when discovery is on, otherwise one entry per connected backend.
func Endpoints(discovery bool, connected []config.BackendConfig) []Endpoint {
	if discovery {
		return []Endpoint{{Name: DiscoveryEntryName, Path: "discovery"}}
	}
	seen := map[string]bool{}
	out := make([]Endpoint, 0, len(connected))
	for _, b := range connected {
		name := b.Name
		if name == "" || seen[name] {
			name = b.ID
		}
		seen[name] = true
		out = append(out, Endpoint{Name: name, Path: b.ID})
	}
	return out
}

type serverEntry struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// FileSyncer writes the endpoints into the mcpServers object of a JSON file.
// Other top-level keys of an existing file are kept.
type FileSyncer struct {
	path string
}

// NewFileSyncer returns a FileSyncer writing to path, or to the xdg state
// location when path is empty.
func NewFileSyncer(path string) (*FileSyncer, error) {
	if path == "" {
		var err error
		path, err = xdg.StateFile(filepath.Join("mcpgate", "mcp.json"))
		if err != nil {
			return nil, fmt.Errorf("unable to resolve integration file path: %w", err)
		}
	}
	return &FileSyncer{path: path}, nil
}

// Path returns the file location.
func (f *FileSyncer) Path() string {
	return f.path
}

// Sync rewrites the mcpServers object.
func (f *FileSyncer) Sync(port int, endpoints []Endpoint) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return fmt.Errorf("failed to create integration directory: %w", err)
	}

	fileLock := flock.New(f.path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := fileLock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock: timeout after %v", lockTimeout)
	}
	defer func() { _ = fileLock.Unlock() }()

	doc, err := f.read()
	if err != nil {
		return err
	}

	servers := make(map[string]serverEntry, len(endpoints))
	for _, ep := range endpoints {
		servers[ep.Name] = serverEntry{
			URL:  fmt.Sprintf("http://127.0.0.1:%d/%s", port, ep.Path),
			Type: "http",
		}
	}
	encoded, err := json.Marshal(servers)
	if err != nil {
		return fmt.Errorf("failed to encode servers: %w", err)
	}
	doc["mcpServers"] = encoded

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode integration file: %w", err)
	}
	formatted, err := hujson.Format(raw)
	if err != nil {
		return fmt.Errorf("failed to format integration file: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, formatted, 0o600); err != nil {
		return fmt.Errorf("failed to write integration file: %w", err)
	}
	return os.Rename(tmp, f.path)
}

// read parses the existing file, which may contain comments or trailing commas.
func (f *FileSyncer) read() (map[string]json.RawMessage, error) {
	doc := map[string]json.RawMessage{}
	// #nosec G304: path is fixed at construction.
	content, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, fmt.Errorf("failed to read integration file: %w", err)
	}
	if len(content) == 0 {
		return doc, nil
	}
	standard, err := hujson.Standardize(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse integration file: %w", err)
	}
	if err := json.Unmarshal(standard, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse integration file: %w", err)
	}
	return doc, nil
}
