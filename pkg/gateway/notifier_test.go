// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolsChangedOnlyOnGenuineChange(t *testing.T) {
	t.Parallel()
	n := NewNotifier()

	changes, cancel := n.Subscribe("echo-id", false)
	defer cancel()

	assert.False(t, n.ToolsChanged("echo-id", nil), "an empty first list is not a change")
	assert.True(t, n.ToolsChanged("echo-id", []string{"echo", "add"}))
	assert.False(t, n.ToolsChanged("echo-id", []string{"add", "echo"}), "order does not matter")
	assert.False(t, n.ToolsChanged("echo-id", []string{"echo", "add"}))
	assert.True(t, n.ToolsChanged("echo-id", []string{"echo"}))

	require.Len(t, changes, 2)
	assert.Equal(t, "echo-id", <-changes)
}

func TestSubscribersOnlyHearTheirBackend(t *testing.T) {
	t.Parallel()
	n := NewNotifier()

	echo, cancelEcho := n.Subscribe("echo-id", false)
	defer cancelEcho()
	all, cancelAll := n.Subscribe("", true)
	defer cancelAll()

	n.ToolsChanged("other-id", []string{"x"})
	n.ToolsChanged("echo-id", []string{"echo"})

	assert.Len(t, echo, 1)
	assert.Len(t, all, 2)
}

func TestForgetMakesNextListAChange(t *testing.T) {
	t.Parallel()
	n := NewNotifier()

	assert.True(t, n.ToolsChanged("echo-id", []string{"echo"}))
	n.Forget("echo-id")
	assert.True(t, n.ToolsChanged("echo-id", []string{"echo"}))
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()
	n := NewNotifier()

	changes, cancel := n.Subscribe("echo-id", false)
	defer cancel()

	for i := range subscriberBuffer + 10 {
		n.ToolsChanged("echo-id", []string{string(rune('a' + i))})
	}
	assert.Len(t, changes, subscriberBuffer)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	t.Parallel()
	n := NewNotifier()

	changes, cancel := n.Subscribe("echo-id", false)
	assert.Equal(t, 1, n.Subscribers())

	n.Close()
	_, open := <-changes
	assert.False(t, open)
	assert.Zero(t, n.Subscribers())
	cancel()

	late, _ := n.Subscribe("echo-id", false)
	_, open = <-late
	assert.False(t, open)
}
