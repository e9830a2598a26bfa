// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/mcpgate/pkg/logger"
)

// listChangedNotification is sent as is; a params member is not allowed here.
const listChangedNotification = `{"jsonrpc":"2.0","method":"notifications/tools/list_changed"}`

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// handleStream serves the tool change stream of a backend, or of every
// backend on the discovery path.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	discovery := strings.TrimSuffix(r.URL.Path, "/") == DiscoveryPath
	serverID := chi.URLParam(r, "serverID")
	if !discovery {
		if _, found := s.state.Backend(serverID); !found {
			http.Error(w, fmt.Sprintf("No server found with ID: %s", serverID), http.StatusNotFound)
			return
		}
	}

	changes, cancel := s.notifier.Subscribe(serverID, discovery)
	defer cancel()

	setSSEHeaders(w)
	if session := r.Header.Get(SessionHeader); session != "" {
		w.Header().Set(SessionHeader, session)
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case changed, open := <-changes:
			if !open {
				return
			}
			logger.Debugw("sending tools list_changed", "server", changed)
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", listChangedNotification); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
