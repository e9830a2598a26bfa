// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"hash/fnv"
	"slices"
	"strings"
	"sync"

	"github.com/stacklok/mcpgate/pkg/logger"
)

// subscriberBuffer is how many undelivered changes a stream may lag behind.
const subscriberBuffer = 16

type subscriber struct {
	serverID string
	all      bool
	ch       chan string
}

// Notifier tracks the tool list of each backend and tells open notification
// streams when it genuinely changes.
type Notifier struct {
	mu     sync.Mutex
	hashes map[string]uint64
	subs   map[*subscriber]struct{}
	closed bool
}

// NewNotifier returns a Notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{
		hashes: make(map[string]uint64),
		subs:   make(map[*subscriber]struct{}),
	}
}

// hashToolNames is order independent.
func hashToolNames(names []string) uint64 {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(sorted, "\n")))
	return h.Sum64()
}

// ToolsChanged records the current tool names of serverID and broadcasts when
// they differ from the last broadcast. The first non-empty list counts as a
// change. It reports whether a broadcast happened.
func (n *Notifier) ToolsChanged(serverID string, toolNames []string) bool {
	sum := hashToolNames(toolNames)

	n.mu.Lock()
	defer n.mu.Unlock()

	prev, seen := n.hashes[serverID]
	n.hashes[serverID] = sum
	if seen && prev == sum {
		return false
	}
	if !seen && len(toolNames) == 0 {
		return false
	}

	for sub := range n.subs {
		if !sub.all && sub.serverID != serverID {
			continue
		}
		select {
		case sub.ch <- serverID:
		default:
			logger.Debugw("notification stream is full, dropping change", "server", serverID)
		}
	}
	return true
}

// Forget drops the remembered tool list of a removed backend.
func (n *Notifier) Forget(serverID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.hashes, serverID)
}

// Subscribe returns a channel of changed backend ids. With all set it hears
// about every backend, otherwise only serverID. The channel is closed by the
// returned cancel function or by Close.
func (n *Notifier) Subscribe(serverID string, all bool) (<-chan string, func()) {
	sub := &subscriber{serverID: serverID, all: all, ch: make(chan string, subscriberBuffer)}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	n.subs[sub] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if _, ok := n.subs[sub]; ok {
				delete(n.subs, sub)
				close(sub.ch)
			}
		})
	}
}

// Subscribers is the number of open subscriptions.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Close ends every subscription. Later subscriptions are closed immediately.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	for sub := range n.subs {
		close(sub.ch)
		delete(n.subs, sub)
	}
}
