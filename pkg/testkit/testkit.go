// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package testkit provides in-process MCP backends for tests.
//
// It can spin up an HTTP test server exposing either a streamable-HTTP or a
// legacy SSE MCP server. Both answer initialize, tools/list, tools/call and
// ping, record what they received, and can be told to misbehave (reject with
// 401, split event frames across writes, drop or duplicate responses).
package testkit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"

	"github.com/tidwall/gjson"
)

const (
	toolsListMethod = "tools/list"
	toolsCallMethod = "tools/call"
)

// ToolHandler computes the text result of a tool call.
type ToolHandler func(args map[string]any) (string, error)

type tooldef struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     ToolHandler
}

// SSESep is the line terminator used when writing event streams.
type SSESep int

const (
	// LFSep terminates lines with "\n".
	LFSep SSESep = iota
	// CRSep terminates lines with "\r".
	CRSep
	// CRLFSep terminates lines with "\r\n".
	CRLFSep
)

func (s SSESep) String() string {
	switch s {
	case CRSep:
		return "\r"
	case CRLFSep:
		return "\r\n"
	default:
		return "\n"
	}
}

type config struct {
	name           string
	tools          map[string]tooldef
	middlewares    []func(http.Handler) http.Handler
	unauthorized   bool
	chunkSize      int
	sep            SSESep
	sseResponses   bool
	sessionID      string
	dropMethods    map[string]bool
	duplicate      bool
	endpointPath   string
	absoluteEndpnt bool
}

// Option configures a test MCP server.
type Option func(*config) error

// WithName sets the serverInfo name reported on initialize.
func WithName(name string) Option {
	return func(c *config) error {
		c.name = name
		return nil
	}
}

// WithMiddlewares wraps the server's router with middlewares, in order.
func WithMiddlewares(middlewares ...func(http.Handler) http.Handler) Option {
	return func(c *config) error {
		if len(c.middlewares) > 0 {
			return fmt.Errorf("middlewares already set")
		}
		c.middlewares = middlewares
		return nil
	}
}

// WithTool registers a tool with a single optional string parameter schema.
func WithTool(name, description string, handler ToolHandler) Option {
	return WithToolSchema(name, description, nil, handler)
}

// WithToolSchema registers a tool with an explicit input schema.
func WithToolSchema(name, description string, schema json.RawMessage, handler ToolHandler) Option {
	return func(c *config) error {
		if _, ok := c.tools[name]; ok {
			return fmt.Errorf("tool %s already exists", name)
		}
		if schema == nil {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		c.tools[name] = tooldef{Name: name, Description: description, InputSchema: schema, Handler: handler}
		return nil
	}
}

// WithUnauthorized makes every request fail with 401.
func WithUnauthorized() Option {
	return func(c *config) error {
		c.unauthorized = true
		return nil
	}
}

// WithChunkSize makes event streams flush every n bytes, splitting frames.
func WithChunkSize(n int) Option {
	return func(c *config) error {
		c.chunkSize = n
		return nil
	}
}

// WithSeparator selects the line terminator of event streams.
func WithSeparator(sep SSESep) Option {
	return func(c *config) error {
		c.sep = sep
		return nil
	}
}

// WithSSEResponses makes the streamable server answer POSTs with an event stream.
func WithSSEResponses() Option {
	return func(c *config) error {
		c.sseResponses = true
		return nil
	}
}

// WithSessionID makes the streamable server issue a session id on initialize.
func WithSessionID(id string) Option {
	return func(c *config) error {
		c.sessionID = id
		return nil
	}
}

// WithDroppedResponses makes the legacy server never answer the given methods.
func WithDroppedResponses(methods ...string) Option {
	return func(c *config) error {
		for _, m := range methods {
			c.dropMethods[m] = true
		}
		return nil
	}
}

// WithDuplicateResponses makes the legacy server send each response twice,
// preceded by a response for an id nobody asked for.
func WithDuplicateResponses() Option {
	return func(c *config) error {
		c.duplicate = true
		return nil
	}
}

// WithEndpoint sets the data of the legacy endpoint event verbatim. By default
// it is "/messages". If absolute is true the server's own origin is prefixed.
func WithEndpoint(path string, absolute bool) Option {
	return func(c *config) error {
		c.endpointPath = path
		c.absoluteEndpnt = absolute
		return nil
	}
}

func newConfig(options []Option) (*config, error) {
	c := &config{
		name:         "testkit",
		tools:        map[string]tooldef{},
		dropMethods:  map[string]bool{},
		endpointPath: "/messages",
	}
	for _, option := range options {
		if err := option(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return c, nil
}

// Server is a running test MCP server.
type Server struct {
	*httptest.Server

	cfg *config

	mu       sync.Mutex
	methods  []string
	headers  []http.Header
	sessions []string
}

func (s *Server) record(method string, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods = append(s.methods, method)
	s.headers = append(s.headers, r.Header.Clone())
}

// Methods returns the JSON-RPC methods received, in order.
func (s *Server) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...)
}

// LastHeaders returns the headers of the most recent JSON-RPC request.
func (s *Server) LastHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.headers) == 0 {
		return nil
	}
	return s.headers[len(s.headers)-1]
}

// reply computes the response envelope for a request. ok is false for
// notifications and for methods configured to be dropped.
func (s *Server) reply(body []byte) ([]byte, bool) {
	id := gjson.GetBytes(body, "id")
	if !id.Exists() || id.Type == gjson.Null {
		return nil, false
	}
	method := gjson.GetBytes(body, "method").String()
	if s.cfg.dropMethods[method] {
		return nil, false
	}

	var (
		result any
		rpcErr map[string]any
	)
	switch method {
	case "initialize":
		version := gjson.GetBytes(body, "params.protocolVersion").String()
		if version == "" {
			version = "2025-03-26"
		}
		result = map[string]any{
			"protocolVersion": version,
			"capabilities":    map[string]any{"tools": map[string]any{"listChanged": true}},
			"serverInfo":      map[string]any{"name": s.cfg.name, "version": "0.0.1"},
		}
	case toolsListMethod:
		result = map[string]any{"tools": s.toolsList()}
	case toolsCallMethod:
		result, rpcErr = s.callTool(body)
	case "ping":
		result = map[string]any{}
	default:
		rpcErr = map[string]any{"code": -32601, "message": "Method not found: " + method}
	}

	envelope := map[string]any{"jsonrpc": "2.0", "id": json.RawMessage(id.Raw)}
	if rpcErr != nil {
		envelope["error"] = rpcErr
	} else {
		envelope["result"] = result
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (s *Server) toolsList() []map[string]any {
	names := make([]string, 0, len(s.cfg.tools))
	for name := range s.cfg.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]map[string]any, 0, len(names))
	for _, name := range names {
		tool := s.cfg.tools[name]
		list = append(list, map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": tool.InputSchema,
		})
	}
	return list
}

func (s *Server) callTool(body []byte) (any, map[string]any) {
	name := gjson.GetBytes(body, "params.name").String()
	tool, ok := s.cfg.tools[name]
	if !ok {
		return nil, map[string]any{"code": -32602, "message": "Unknown tool: " + name}
	}

	args := map[string]any{}
	if raw := gjson.GetBytes(body, "params.arguments"); raw.IsObject() {
		_ = json.Unmarshal([]byte(raw.Raw), &args)
	}

	text, err := tool.Handler(args)
	if err != nil {
		return map[string]any{
			"content": []map[string]any{{"type": "text", "text": err.Error()}},
			"isError": true,
		}, nil
	}
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	}, nil
}

func (s *Server) rejectUnauthorized(w http.ResponseWriter) bool {
	if !s.cfg.unauthorized {
		return false
	}
	w.Header().Set("WWW-Authenticate", `Bearer resource_metadata="/.well-known/oauth-protected-resource"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
	return true
}
