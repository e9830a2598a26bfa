// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package testkit

import (
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tidwall/gjson"
)

const sessionHeader = "Mcp-Session-Id"

// NewStreamableTestServer creates a streamable-HTTP MCP server on /mcp.
func NewStreamableTestServer(options ...Option) (*Server, error) {
	cfg, err := newConfig(options)
	if err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg}

	router := chi.NewRouter()
	router.Use(append([]func(http.Handler) http.Handler{middleware.RequestID, middleware.Recoverer}, cfg.middlewares...)...)
	router.Post("/mcp", s.streamableHandler)
	router.Delete("/mcp", func(w http.ResponseWriter, r *http.Request) {
		s.record("DELETE", r)
		w.WriteHeader(http.StatusOK)
	})

	s.Server = httptest.NewServer(router)
	return s, nil
}

func (s *Server) streamableHandler(w http.ResponseWriter, r *http.Request) {
	if s.rejectUnauthorized(w) {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusInternalServerError)
		return
	}
	method := gjson.GetBytes(body, "method").String()
	if method == "" {
		http.Error(w, "Missing or invalid method", http.StatusBadRequest)
		return
	}
	s.record(method, r)

	if s.cfg.sessionID != "" && method != "initialize" && r.Header.Get(sessionHeader) != s.cfg.sessionID {
		http.Error(w, "unknown session", http.StatusBadRequest)
		return
	}

	reply, ok := s.reply(body)
	if !ok {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if method == "initialize" && s.cfg.sessionID != "" {
		w.Header().Set(sessionHeader, s.cfg.sessionID)
	}

	if !s.cfg.sseResponses {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(reply)
		return
	}

	sep := s.cfg.sep.String()
	w.Header().Set("Content-Type", "text/event-stream")
	_, _ = io.WriteString(w, ": stream start"+sep+sep)
	_, _ = io.WriteString(w, "event: message"+sep+
		`data: {"jsonrpc":"2.0","method":"notifications/message","params":{"level":"info"}}`+sep+sep)
	_, _ = io.WriteString(w, "event: message"+sep+"data: "+string(reply)+sep+sep)
}
