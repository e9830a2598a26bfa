// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events carries gateway notifications (status changes, tool list
// updates, backend log lines) to whoever is watching.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/stacklok/mcpgate/pkg/config"
	"github.com/stacklok/mcpgate/pkg/logger"
)

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks -source=events.go Sink

// Type identifies an event.
type Type string

const (
	// EventStatusChanged is emitted when a backend's connection status changes.
	EventStatusChanged Type = "status-changed"
	// EventToolsUpdated is emitted when a backend's tool list changes.
	EventToolsUpdated Type = "tools-updated"
	// EventServerLog carries one classified line of backend output.
	EventServerLog Type = "server-log"
	// EventServerError is emitted when a backend fails to connect.
	EventServerError Type = "server-error"
	// EventAuthRequired is emitted when a backend needs the user to sign in.
	EventAuthRequired Type = "auth-required"
	// EventToolCallRecorded is emitted after a routed tool call completes.
	EventToolCallRecorded Type = "tool-call-recorded"
)

// Event is one notification.
type Event struct {
	Type     Type                    `json:"type"`
	ServerID string                  `json:"server_id"`
	Status   config.ConnectionStatus `json:"status,omitempty"`
	Message  string                  `json:"message,omitempty"`
	Tools    int                     `json:"tools,omitempty"`
	Level    string                  `json:"level,omitempty"`
	Time     time.Time               `json:"time"`
}

// Sink receives events. Emit must not block.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f.
func (f SinkFunc) Emit(e Event) { f(e) }

// Multi fans events out to several sinks.
type Multi []Sink

// Emit forwards e to every sink.
func (m Multi) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// LogSink writes events to the process logger. Backend log lines are not
// repeated since the transport already logged them.
type LogSink struct{}

// Emit logs e.
func (LogSink) Emit(e Event) {
	switch e.Type {
	case EventServerLog:
		return
	case EventServerError:
		logger.Warnw("backend error", "server", e.ServerID, "message", e.Message)
	case EventAuthRequired:
		logger.Warnw("backend requires authorization", "server", e.ServerID, "message", e.Message)
	case EventStatusChanged:
		logger.Infow("backend status changed", "server", e.ServerID, "status", e.Status, "message", e.Message)
	default:
		logger.Debugw("event", "type", e.Type, "server", e.ServerID, "tools", e.Tools)
	}
}

// LogEntry is one buffered backend log line.
type LogEntry struct {
	Time     time.Time `json:"time"`
	ServerID string    `json:"server_id"`
	Level    string    `json:"level"`
	Message  string    `json:"message"`
}

// DefaultBufferSize is the number of log entries a Buffer keeps.
const DefaultBufferSize = 500

// Buffer keeps the most recent backend log lines and errors for later draining.
type Buffer struct {
	mu      sync.Mutex
	size    int
	entries []LogEntry
}

// NewBuffer returns a Buffer holding at most size entries.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{size: size}
}

// Emit buffers log and error events and ignores the rest.
func (b *Buffer) Emit(e Event) {
	var level string
	switch e.Type {
	case EventServerLog:
		level = e.Level
	case EventServerError, EventAuthRequired:
		level = "error"
	default:
		return
	}
	entry := LogEntry{Time: e.Time, ServerID: e.ServerID, Level: level, Message: e.Message}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == b.size {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:b.size-1]
	}
	b.entries = append(b.entries, entry)
}

// Drain returns the buffered entries, oldest first, and empties the buffer.
func (b *Buffer) Drain() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.entries
	b.entries = nil
	if out == nil {
		out = []LogEntry{}
	}
	return out
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// LevelName maps a slog level to the name used in log events.
func LevelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
