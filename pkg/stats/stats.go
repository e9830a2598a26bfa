// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package stats records per-backend tool call statistics and flushes them
// to a Store at bounded intervals.
package stats

import (
	"maps"
	"time"
)

// MaxRecentCalls is the capacity of the recent calls ring of one backend.
const MaxRecentCalls = 200

// ToolStats aggregates the calls of one tool.
type ToolStats struct {
	TotalCalls      uint64 `json:"totalCalls"`
	Errors          uint64 `json:"errors"`
	TotalDurationMs uint64 `json:"totalDurationMs"`
}

// CallEntry is one entry of the recent calls ring.
type CallEntry struct {
	Tool       string `json:"tool"`
	Client     string `json:"client"`
	DurationMs uint64 `json:"durationMs"`
	IsError    bool   `json:"isError"`
	// Timestamp is a unix time in seconds.
	Timestamp int64 `json:"timestamp"`
}

// ServerStats aggregates the calls routed to one backend.
type ServerStats struct {
	TotalCalls      uint64                `json:"totalCalls"`
	Errors          uint64                `json:"errors"`
	TotalDurationMs uint64                `json:"totalDurationMs"`
	Tools           map[string]*ToolStats `json:"tools"`
	Clients         map[string]uint64     `json:"clients"`
	RecentCalls     []CallEntry           `json:"recentCalls"`
}

// NewServerStats returns empty stats with initialized maps.
func NewServerStats() *ServerStats {
	return &ServerStats{
		Tools:   make(map[string]*ToolStats),
		Clients: make(map[string]uint64),
	}
}

func (s *ServerStats) ensureMaps() {
	if s.Tools == nil {
		s.Tools = make(map[string]*ToolStats)
	}
	if s.Clients == nil {
		s.Clients = make(map[string]uint64)
	}
}

// AverageDuration is the mean call duration, or zero before the first call.
func (s *ServerStats) AverageDuration() time.Duration {
	if s.TotalCalls == 0 {
		return 0
	}
	return time.Duration(s.TotalDurationMs/s.TotalCalls) * time.Millisecond
}

// pushCall appends entry and evicts the oldest entries past MaxRecentCalls.
func (s *ServerStats) pushCall(entry CallEntry) {
	s.RecentCalls = append(s.RecentCalls, entry)
	if excess := len(s.RecentCalls) - MaxRecentCalls; excess > 0 {
		s.RecentCalls = append(s.RecentCalls[:0:0], s.RecentCalls[excess:]...)
	}
}

// Clone returns a deep copy.
func (s *ServerStats) Clone() *ServerStats {
	out := &ServerStats{
		TotalCalls:      s.TotalCalls,
		Errors:          s.Errors,
		TotalDurationMs: s.TotalDurationMs,
		Tools:           make(map[string]*ToolStats, len(s.Tools)),
		Clients:         maps.Clone(s.Clients),
		RecentCalls:     append([]CallEntry(nil), s.RecentCalls...),
	}
	if out.Clients == nil {
		out.Clients = make(map[string]uint64)
	}
	for name, ts := range s.Tools {
		cp := *ts
		out.Tools[name] = &cp
	}
	return out
}
