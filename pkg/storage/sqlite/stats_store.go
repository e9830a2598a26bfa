// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/stacklok/mcpgate/pkg/stats"
	"github.com/stacklok/mcpgate/pkg/storage"
)

// StatsStore implements storage.StatsStore using SQLite.
type StatsStore struct {
	wrapper *DB
	db      *sql.DB
}

// NewStatsStore creates a new SQLite-backed StatsStore.
func NewStatsStore(db *DB) *StatsStore {
	return &StatsStore{wrapper: db, db: db.DB()}
}

var _ storage.StatsStore = (*StatsStore)(nil)

// OpenStatsStore opens the database at path. An empty path yields a no-op store.
func OpenStatsStore(ctx context.Context, path string) (storage.StatsStore, error) {
	if path == "" {
		return &storage.NoopStatsStore{}, nil
	}
	db, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewStatsStore(db), nil
}

// Close closes the underlying database connection.
func (s *StatsStore) Close() error {
	return s.wrapper.Close()
}

// LoadAll returns every stored entry.
func (s *StatsStore) LoadAll(ctx context.Context) (map[string]*stats.ServerStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT server_id, total_calls, errors, total_duration_ms,
		       json(tools), json(clients), json(recent_calls)
		FROM server_stats`)
	if err != nil {
		return nil, fmt.Errorf("querying server stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*stats.ServerStats)
	for rows.Next() {
		var (
			id                     string
			entry                  = stats.NewServerStats()
			tools, clients, recent []byte
		)
		if err := rows.Scan(&id, &entry.TotalCalls, &entry.Errors, &entry.TotalDurationMs,
			&tools, &clients, &recent); err != nil {
			return nil, fmt.Errorf("scanning server stats: %w", err)
		}
		if err := decodeJSONB(tools, &entry.Tools); err != nil {
			return nil, fmt.Errorf("decoding tools of %s: %w", id, err)
		}
		if err := decodeJSONB(clients, &entry.Clients); err != nil {
			return nil, fmt.Errorf("decoding clients of %s: %w", id, err)
		}
		if err := decodeJSONB(recent, &entry.RecentCalls); err != nil {
			return nil, fmt.Errorf("decoding recent calls of %s: %w", id, err)
		}
		out[id] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating server stats rows: %w", err)
	}
	return out, nil
}

// Save upserts entries in one transaction.
func (s *StatsStore) Save(ctx context.Context, entries map[string]*stats.ServerStats) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	for id, entry := range entries {
		tools, err := encodeJSONB(entry.Tools)
		if err != nil {
			return fmt.Errorf("encoding tools: %w", err)
		}
		clients, err := encodeJSONB(entry.Clients)
		if err != nil {
			return fmt.Errorf("encoding clients: %w", err)
		}
		recent, err := encodeJSONB(entry.RecentCalls)
		if err != nil {
			return fmt.Errorf("encoding recent calls: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO server_stats (
				server_id, total_calls, errors, total_duration_ms, tools, clients, recent_calls
			) VALUES (?, ?, ?, ?, jsonb(?), jsonb(?), jsonb(?))
			ON CONFLICT (server_id) DO UPDATE SET
				total_calls = excluded.total_calls,
				errors = excluded.errors,
				total_duration_ms = excluded.total_duration_ms,
				tools = excluded.tools,
				clients = excluded.clients,
				recent_calls = excluded.recent_calls,
				updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`,
			id, entry.TotalCalls, entry.Errors, entry.TotalDurationMs, tools, clients, recent,
		); err != nil {
			return fmt.Errorf("upserting stats of %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Delete removes the entry of serverID.
func (s *StatsStore) Delete(ctx context.Context, serverID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM server_stats WHERE server_id = ?`, serverID); err != nil {
		return fmt.Errorf("deleting stats of %s: %w", serverID, err)
	}
	return nil
}

// encodeJSONB marshals v for the SQLite jsonb() function.
func encodeJSONB(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return string(data), nil
}

// decodeJSONB unmarshals a json() projection into v. NULL leaves v untouched.
func decodeJSONB(data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshaling JSON: %w", err)
	}
	return nil
}

// rollback rolls back tx, ignoring errors (tx may already be committed).
func rollback(tx *sql.Tx) { _ = tx.Rollback() }
