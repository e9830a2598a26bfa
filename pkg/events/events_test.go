// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package events_test

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/mcpgate/pkg/events"
	"github.com/stacklok/mcpgate/pkg/events/mocks"
)

func TestBufferKeepsNewestEntries(t *testing.T) {
	t.Parallel()

	b := events.NewBuffer(3)
	for i := 0; i < 5; i++ {
		b.Emit(events.Event{Type: events.EventServerLog, ServerID: "s", Level: "info", Message: fmt.Sprint(i)})
	}
	b.Emit(events.Event{Type: events.EventStatusChanged, ServerID: "s"})

	entries := b.Drain()
	msgs := []string{}
	for _, e := range entries {
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{"2", "3", "4"}, msgs)
	assert.Empty(t, b.Drain())
}

func TestBufferRecordsErrorsAsErrorLevel(t *testing.T) {
	t.Parallel()

	b := events.NewBuffer(0)
	b.Emit(events.Event{Type: events.EventAuthRequired, ServerID: "s", Message: "sign in"})
	entries := b.Drain()
	assert.Len(t, entries, 1)
	assert.Equal(t, "error", entries[0].Level)
	assert.False(t, entries[0].Time.IsZero())
}

func TestMultiStampsAndFansOut(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	first := mocks.NewMockSink(ctrl)
	second := mocks.NewMockSink(ctrl)
	stamped := gomock.Cond(func(x any) bool {
		e, ok := x.(events.Event)
		return ok && !e.Time.IsZero() && e.ServerID == "s"
	})
	first.EXPECT().Emit(stamped)
	second.EXPECT().Emit(stamped)

	events.Multi{first, nil, second}.Emit(events.Event{Type: events.EventToolsUpdated, ServerID: "s"})
}

func TestLevelName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "error", events.LevelName(slog.LevelError))
	assert.Equal(t, "warn", events.LevelName(slog.LevelWarn))
	assert.Equal(t, "info", events.LevelName(slog.LevelInfo))
	assert.Equal(t, "debug", events.LevelName(slog.LevelDebug))
}
