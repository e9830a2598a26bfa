// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"

	"github.com/stacklok/mcpgate/pkg/stats"
)

// NoopStatsStore is used when persistence is disabled. LoadAll returns
// nothing and writes succeed silently.
type NoopStatsStore struct{}

var _ StatsStore = (*NoopStatsStore)(nil)

// LoadAll always returns an empty map.
func (*NoopStatsStore) LoadAll(_ context.Context) (map[string]*stats.ServerStats, error) {
	return map[string]*stats.ServerStats{}, nil
}

// Save is a no-op that always succeeds.
func (*NoopStatsStore) Save(_ context.Context, _ map[string]*stats.ServerStats) error {
	return nil
}

// Delete is a no-op that always succeeds.
func (*NoopStatsStore) Delete(_ context.Context, _ string) error {
	return nil
}

// Close is a no-op that always succeeds.
func (*NoopStatsStore) Close() error { return nil }
