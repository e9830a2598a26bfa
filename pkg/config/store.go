// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/mcpgate/pkg/logger"
)

// lockTimeout is the maximum time to wait for a file lock
const lockTimeout = 1 * time.Second

// Store defines the interface for configuration storage operations
type Store interface {
	// Load loads the configuration from storage
	Load(ctx context.Context) (*Config, error)
	// Save saves the configuration to storage
	Save(ctx context.Context, config *Config) error
	// Exists checks if configuration exists in storage
	Exists(ctx context.Context) (bool, error)
	// Update performs a locked update operation on the configuration
	Update(ctx context.Context, updateFn func(*Config)) error
}

// LocalStore implements Store using the local file system
type LocalStore struct {
	configPath string
}

// NewLocalStore creates a new local file-based configuration store.
// An empty path uses the xdg config location.
func NewLocalStore(configPath string) *LocalStore {
	return &LocalStore{configPath: configPath}
}

func (s *LocalStore) path() (string, error) {
	if s.configPath != "" {
		return path.Clean(s.configPath), nil
	}
	p, err := getConfigPath()
	if err != nil {
		return "", fmt.Errorf("unable to fetch config path: %w", err)
	}
	return path.Clean(p), nil
}

// Load loads configuration from the local file, creating it with defaults if missing.
func (s *LocalStore) Load(_ context.Context) (*Config, error) {
	configPath, err := s.path()
	if err != nil {
		return nil, err
	}

	// #nosec G304: path comes from xdg or an explicit flag.
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("unable to read config file %s: %w", configPath, err)
		}
		config := createNewConfigWithDefaults()
		logger.Debugf("initializing configuration file at %s", configPath)
		if err := config.saveToPath(configPath); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return &config, nil
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file yaml: %w", err)
	}
	config.normalize()
	return &config, nil
}

// Save saves configuration to the local file
func (s *LocalStore) Save(_ context.Context, config *Config) error {
	configPath, err := s.path()
	if err != nil {
		return err
	}
	return config.saveToPath(configPath)
}

// Exists checks if the local config file exists
func (s *LocalStore) Exists(_ context.Context) (bool, error) {
	configPath, err := s.path()
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(configPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}
	return true, nil
}

// Update performs a locked read-modify-write of the configuration
func (s *LocalStore) Update(ctx context.Context, updateFn func(*Config)) error {
	configPath, err := s.path()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Use a separate lock file for cross-platform compatibility
	fileLock := flock.New(configPath + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock: timeout after %v", lockTimeout)
	}
	defer func() { _ = fileLock.Unlock() }()

	config, err := s.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	updateFn(config)

	if err := s.Save(ctx, config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
