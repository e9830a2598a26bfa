// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"testing"

	"github.com/stacklok/mcpgate/pkg/stats"
)

func TestNoopStatsStore_LoadAll(t *testing.T) {
	t.Parallel()
	store := &NoopStatsStore{}
	result, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("expected empty map, got %d entries", len(result))
	}
}

func TestNoopStatsStore_Save(t *testing.T) {
	t.Parallel()
	store := &NoopStatsStore{}
	err := store.Save(context.Background(), map[string]*stats.ServerStats{"echo": stats.NewServerStats()})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestNoopStatsStore_Delete(t *testing.T) {
	t.Parallel()
	store := &NoopStatsStore{}
	if err := store.Delete(context.Background(), "echo"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestNoopStatsStore_Close(t *testing.T) {
	t.Parallel()
	store := &NoopStatsStore{}
	if err := store.Close(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
