// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/stacklok/mcpgate/pkg/api/v1"
	"github.com/stacklok/mcpgate/pkg/stats"
)

func TestPrintStats(t *testing.T) {
	t.Parallel()

	t.Run("no calls", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, printStats(&buf, &v1.StatsResponse{ServerID: "echo-id", ServerStats: stats.NewServerStats()}))
		assert.Equal(t, "No tool calls recorded for echo-id\n", buf.String())
	})

	t.Run("calls", func(t *testing.T) {
		t.Parallel()
		s := stats.NewServerStats()
		s.TotalCalls = 3
		s.Errors = 1
		s.TotalDurationMs = 90
		s.Tools["echo"] = &stats.ToolStats{TotalCalls: 2, TotalDurationMs: 40}
		s.Tools["add"] = &stats.ToolStats{TotalCalls: 1, Errors: 1, TotalDurationMs: 50}
		s.Clients["cursor"] = 3
		s.RecentCalls = []stats.CallEntry{{Tool: "add", Client: "cursor", DurationMs: 50, IsError: true, Timestamp: 1700000000}}

		var buf bytes.Buffer
		require.NoError(t, printStats(&buf, &v1.StatsResponse{ServerID: "echo-id", ServerStats: s, AverageDurationMs: 30}))

		out := buf.String()
		assert.Contains(t, out, "Calls: 3   Errors: 1   Average: 30ms")
		assert.Contains(t, out, "20ms")
		assert.Contains(t, out, "cursor")
		assert.Contains(t, out, "error")
		assert.Less(t, bytes.Index(buf.Bytes(), []byte("add ")), bytes.Index(buf.Bytes(), []byte("echo ")))
	})
}
