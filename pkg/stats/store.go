// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package stats

import "context"

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

// Store persists ServerStats keyed by backend id.
type Store interface {
	// LoadAll returns every stored entry.
	LoadAll(ctx context.Context) (map[string]*ServerStats, error)
	// Save upserts the given entries.
	Save(ctx context.Context, entries map[string]*ServerStats) error
	// Delete removes the entry of serverID. Deleting a missing entry succeeds.
	Delete(ctx context.Context, serverID string) error
}
