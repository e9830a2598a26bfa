// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/mcpgate/pkg/events"
)

// LogDrainer hands out the buffered backend log entries.
type LogDrainer interface {
	Drain() []events.LogEntry
}

// LogsRoutes defines the routes for buffered backend logs.
type LogsRoutes struct {
	logs LogDrainer
}

// LogsRouter creates a new router for buffered backend logs.
func LogsRouter(logs LogDrainer) http.Handler {
	routes := LogsRoutes{logs: logs}

	r := chi.NewRouter()
	r.Get("/", routes.drainLogs)
	return r
}

// drainLogs
//
//	@Summary		Drain buffered backend logs
//	@Description	Return and forget the backend log lines and errors collected since the last call
//	@Tags			logs
//	@Produce		json
//	@Success		200	{object}	LogsResponse
//	@Router			/api/v1/logs [get]
func (l *LogsRoutes) drainLogs(w http.ResponseWriter, _ *http.Request) {
	entries := l.logs.Drain()
	if entries == nil {
		entries = []events.LogEntry{}
	}
	writeJSON(w, http.StatusOK, LogsResponse{Entries: entries})
}
