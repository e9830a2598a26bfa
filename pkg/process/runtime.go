// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package process tracks the running gateway daemon and terminates processes.
package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// RuntimeInfo describes a running gateway daemon.
type RuntimeInfo struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
}

// ErrNotRunning is returned when no live gateway daemon is recorded.
var ErrNotRunning = errors.New("gateway is not running")

func defaultRuntimeFilePath() (string, error) {
	p, err := xdg.StateFile(filepath.Join("mcpgate", "gateway.json"))
	if err != nil {
		return "", fmt.Errorf("failed to get runtime file path: %w", err)
	}
	return p, nil
}

// getRuntimeFilePath is replaceable in tests.
var getRuntimeFilePath = defaultRuntimeFilePath

// SetRuntimeFilePathOverride moves the runtime file to path. An empty path
// restores the xdg location.
func SetRuntimeFilePathOverride(path string) {
	if path == "" {
		getRuntimeFilePath = defaultRuntimeFilePath
		return
	}
	getRuntimeFilePath = func() (string, error) { return path, nil }
}

// WriteRuntimeInfo records the running daemon's pid and port.
func WriteRuntimeInfo(info RuntimeInfo) error {
	path, err := getRuntimeFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create runtime directory: %w", err)
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode runtime info: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write runtime file: %w", err)
	}
	return os.Rename(tmp, path)
}

// ReadRuntimeInfo returns the recorded daemon, or ErrNotRunning when the file
// is missing or its process is gone.
func ReadRuntimeInfo() (*RuntimeInfo, error) {
	path, err := getRuntimeFilePath()
	if err != nil {
		return nil, err
	}
	// #nosec G304: path comes from xdg, not user input.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotRunning
		}
		return nil, fmt.Errorf("failed to read runtime file: %w", err)
	}
	var info RuntimeInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse runtime file: %w", err)
	}
	alive, err := FindProcess(info.PID)
	if err != nil || !alive {
		return nil, ErrNotRunning
	}
	return &info, nil
}

// RemoveRuntimeInfo deletes the runtime file. A missing file is not an error.
func RemoveRuntimeInfo() error {
	path, err := getRuntimeFilePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove runtime file: %w", err)
	}
	return nil
}
