// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"time"

	"github.com/stacklok/mcpgate/pkg/events"
	"github.com/stacklok/mcpgate/pkg/state"
	"github.com/stacklok/mcpgate/pkg/stats"
)

// ServerListResponse is the body of GET /servers.
type ServerListResponse struct {
	Servers []state.BackendView `json:"servers"`
}

// ToolListResponse is the body of GET /servers/{id}/tools.
type ToolListResponse struct {
	Tools []state.ToolDescriptor `json:"tools"`
}

// StatsResponse is the body of GET /servers/{id}/stats.
type StatsResponse struct {
	ServerID string `json:"server_id"`
	*stats.ServerStats
	AverageDurationMs int64 `json:"averageDurationMs"`
}

// DiscoveryRequest is the body of PUT /discovery.
type DiscoveryRequest struct {
	Enabled *bool `json:"enabled"`
}

// DiscoveryResponse reports the discovery flag.
type DiscoveryResponse struct {
	Enabled bool `json:"enabled"`
}

// LogsResponse is the body of GET /logs.
type LogsResponse struct {
	Entries []events.LogEntry `json:"entries"`
}

// GatewayStatus describes the running gateway.
type GatewayStatus struct {
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
	Servers   int       `json:"servers"`
	Connected int       `json:"connected"`
	Discovery bool      `json:"discovery"`
}
