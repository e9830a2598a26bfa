// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package testkit

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tidwall/gjson"
)

// SSEServer is a legacy MCP server: GET /sse streams responses, POSTs go to
// the endpoint announced in the first event.
type SSEServer struct {
	*Server

	streamMu  sync.Mutex
	stream    chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewSSETestServer creates a legacy SSE server wrapped in an httptest.Server.
func NewSSETestServer(options ...Option) (*SSEServer, error) {
	cfg, err := newConfig(options)
	if err != nil {
		return nil, err
	}

	s := &SSEServer{
		Server:  &Server{cfg: cfg},
		closeCh: make(chan struct{}),
	}

	postPath := "/messages"
	if u, err := url.Parse(cfg.endpointPath); err == nil && u.Path != "" {
		postPath = "/" + strings.TrimPrefix(u.Path, "/")
	}

	router := chi.NewRouter()
	router.Use(append([]func(http.Handler) http.Handler{middleware.RequestID, middleware.Recoverer}, cfg.middlewares...)...)
	router.Get("/sse", s.sseHandler)
	router.Post(postPath, s.messageHandler)

	s.Server.Server = httptest.NewServer(router)
	return s, nil
}

// CloseStreams ends every open event stream.
func (s *SSEServer) CloseStreams() {
	s.closeOnce.Do(func() { close(s.closeCh) })
}

func (s *SSEServer) writeEvent(w http.ResponseWriter, flusher http.Flusher, name, data string) error {
	sep := s.cfg.sep.String()
	var b strings.Builder
	if name != "" {
		b.WriteString("event: " + name + sep)
	}
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: " + line + sep)
	}
	b.WriteString(sep)

	payload := []byte(b.String())
	size := s.cfg.chunkSize
	if size <= 0 {
		size = len(payload)
	}
	for len(payload) > 0 {
		n := min(size, len(payload))
		if _, err := w.Write(payload[:n]); err != nil {
			return err
		}
		flusher.Flush()
		payload = payload[n:]
		if s.cfg.chunkSize > 0 {
			// give the client a chance to read a partial frame
			time.Sleep(time.Millisecond)
		}
	}
	return nil
}

func (s *SSEServer) sseHandler(w http.ResponseWriter, r *http.Request) {
	if s.rejectUnauthorized(w) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	stream := make(chan []byte, 16)
	s.streamMu.Lock()
	s.stream = stream
	s.streamMu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	endpoint := s.cfg.endpointPath
	if s.cfg.absoluteEndpnt {
		endpoint = s.URL + "/" + strings.TrimPrefix(endpoint, "/")
	}
	if err := s.writeEvent(w, flusher, "endpoint", endpoint); err != nil {
		return
	}

	for {
		select {
		case payload := <-stream:
			if err := s.writeEvent(w, flusher, "message", string(payload)); err != nil {
				return
			}
		case <-s.closeCh:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *SSEServer) push(payload []byte) {
	s.streamMu.Lock()
	stream := s.stream
	s.streamMu.Unlock()
	if stream == nil {
		return
	}
	select {
	case stream <- payload:
	case <-time.After(time.Second):
	}
}

func (s *SSEServer) messageHandler(w http.ResponseWriter, r *http.Request) {
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

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("Accepted"))

	reply, ok := s.reply(body)
	if !ok {
		return
	}
	if s.cfg.duplicate {
		s.push([]byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{}}`, 987654)))
		s.push(reply)
	}
	s.push(reply)
}
