// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the persistence backends of mcpgate.
package storage

import (
	"github.com/stacklok/mcpgate/pkg/stats"
)

// StatsStore persists call statistics and owns the underlying resources.
type StatsStore interface {
	stats.Store
	// Close releases any resources held by the store.
	Close() error
}
