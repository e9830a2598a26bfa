// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"

	"github.com/stacklok/mcpgate/pkg/logger"
)

//go:embed migrations/*.sql
var statsMigrations embed.FS

// migrate brings the stats schema up to date.
func migrate(ctx context.Context, db *sql.DB) error {
	migrationFS, err := fs.Sub(statsMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(database.DialectSQLite3, db, migrationFS)
	if err != nil {
		return fmt.Errorf("failed to create goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply stats migrations: %w", err)
	}
	for _, r := range results {
		logger.Debugw("applied stats migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}
