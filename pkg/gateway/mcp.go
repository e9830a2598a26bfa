// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"
	"golang.org/x/exp/jsonrpc2"

	"github.com/stacklok/mcpgate/pkg/jsonrpc"
	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/toolcall"
	"github.com/stacklok/mcpgate/pkg/versions"
)

// SupportedProtocolVersions are the versions initialize agrees to, newest first.
var SupportedProtocolVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

// DiscoveryServerName is the server name reported by the discovery endpoint.
const DiscoveryServerName = "Tool Discovery"

// NegotiateProtocolVersion echoes requested when supported and otherwise
// answers with the latest supported version.
func NegotiateProtocolVersion(requested string) string {
	if slices.Contains(SupportedProtocolVersions, requested) {
		return requested
	}
	return SupportedProtocolVersions[0]
}

type toolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

type capabilities struct {
	Tools toolsCapability `json:"tools"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    capabilities       `json:"capabilities"`
	ServerInfo      mcp.Implementation `json:"serverInfo"`
}

// wireTool is a tool as listed to callers.
type wireTool struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

var emptyObjectSchema = json.RawMessage(`{"type":"object"}`)

// envelope is the parsed part of an incoming request.
type envelope struct {
	id     jsonrpc2.ID
	method string
	params gjson.Result
}

// endpoint answers the methods of one gateway path.
type endpoint struct {
	name        string
	listChanged bool
	listTools   func() any
	callTool    func(r *http.Request, name string, args map[string]any) (*toolcall.Result, *jsonrpc.RPCError)
}

// readEnvelope parses the body. It writes a 400 and returns false when the
// body is not a single JSON-RPC 2.0 request, and a 202 for notifications.
func readEnvelope(w http.ResponseWriter, r *http.Request) (envelope, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeRPCError(w, r, http.StatusBadRequest, jsonrpc2.ID{}, jsonrpc.CodeParseError, "failed to read request body")
		return envelope{}, false
	}
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		writeRPCError(w, r, http.StatusBadRequest, jsonrpc2.ID{}, jsonrpc.CodeInvalidRequest, "batch requests are not supported")
		return envelope{}, false
	}
	if !isValidJSONRPC2(body) {
		writeRPCError(w, r, http.StatusBadRequest, jsonrpc2.ID{}, jsonrpc.CodeParseError, "invalid JSON-RPC 2.0 message")
		return envelope{}, false
	}

	parsed := gjson.ParseBytes(body)
	id, ok := jsonrpc.IDFromJSON(parsed.Get("id"))
	if !ok {
		if session := r.Header.Get(SessionHeader); session != "" {
			w.Header().Set(SessionHeader, session)
		}
		w.WriteHeader(http.StatusAccepted)
		return envelope{}, false
	}
	return envelope{
		id:     id,
		method: parsed.Get("method").String(),
		params: parsed.Get("params"),
	}, true
}

func isValidJSONRPC2(body []byte) bool {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return false
	}
	parsed := gjson.ParseBytes(body)
	return parsed.IsObject() && parsed.Get("jsonrpc").String() == "2.0"
}

func (s *Server) handleBackendPost(w http.ResponseWriter, r *http.Request) {
	env, ok := readEnvelope(w, r)
	if !ok {
		return
	}
	serverID := chi.URLParam(r, "serverID")
	backend, found := s.state.Backend(serverID)
	if !found {
		s.writeError(w, r, env.id, jsonrpc.NewRPCError(jsonrpc.CodeInvalidParams, "No server found with ID: %s", serverID))
		return
	}

	s.dispatch(w, r, env, endpoint{
		name:        backend.Name,
		listChanged: true,
		listTools: func() any {
			descriptors := s.state.Tools(serverID)
			tools := make([]wireTool, 0, len(descriptors))
			for _, d := range descriptors {
				schema := d.InputSchema
				if len(schema) == 0 {
					schema = emptyObjectSchema
				}
				tools = append(tools, wireTool{Name: d.Name, Title: d.Title, Description: d.Description, InputSchema: schema})
			}
			return tools
		},
		callTool: func(r *http.Request, name string, args map[string]any) (*toolcall.Result, *jsonrpc.RPCError) {
			return s.forwarder.Forward(r.Context(), toolcall.Request{
				ServerID:  serverID,
				Tool:      name,
				Arguments: args,
				Client:    r.URL.Query().Get("client"),
			})
		},
	})
}

func (s *Server) handleDiscoveryPost(w http.ResponseWriter, r *http.Request) {
	env, ok := readEnvelope(w, r)
	if !ok {
		return
	}
	if s.discovery == nil || !s.discovery.Enabled() {
		s.writeError(w, r, env.id, jsonrpc.NewRPCError(jsonrpc.CodeNotEnabled, "Tool discovery mode is not enabled"))
		return
	}

	s.dispatch(w, r, env, endpoint{
		name:      DiscoveryServerName,
		listTools: func() any { return s.discovery.ListTools() },
		callTool: func(r *http.Request, name string, args map[string]any) (*toolcall.Result, *jsonrpc.RPCError) {
			return s.discovery.CallTool(r.Context(), name, args, r.URL.Query().Get("client"))
		},
	})
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, env envelope, ep endpoint) {
	switch mcp.MCPMethod(env.method) {
	case mcp.MethodInitialize:
		session := uuid.NewString()
		w.Header().Set(SessionHeader, session)
		logger.Debugw("gateway session initialized", "endpoint", ep.name, "session", session)
		s.writeResult(w, r, env.id, initializeResult{
			ProtocolVersion: NegotiateProtocolVersion(env.params.Get("protocolVersion").String()),
			Capabilities:    capabilities{Tools: toolsCapability{ListChanged: ep.listChanged}},
			ServerInfo: mcp.Implementation{
				Name:    "mcpgate: " + ep.name,
				Version: versions.GetVersionInfo().Version,
			},
		})
	case mcp.MethodToolsList:
		s.writeResult(w, r, env.id, map[string]any{"tools": ep.listTools()})
	case mcp.MethodToolsCall:
		name, args, rpcErr := parseCallParams(env.params)
		if rpcErr != nil {
			s.writeError(w, r, env.id, rpcErr)
			return
		}
		result, rpcErr := ep.callTool(r, name, args)
		if rpcErr != nil {
			s.writeError(w, r, env.id, rpcErr)
			return
		}
		s.writeResult(w, r, env.id, result)
	case mcp.MethodPing:
		s.writeResult(w, r, env.id, struct{}{})
	default:
		s.writeError(w, r, env.id, jsonrpc.NewRPCError(jsonrpc.CodeMethodNotFound, "Method not found: %s", env.method))
	}
}

func parseCallParams(params gjson.Result) (string, map[string]any, *jsonrpc.RPCError) {
	if !params.Exists() || !params.IsObject() {
		return "", nil, jsonrpc.NewRPCError(jsonrpc.CodeInvalidParams, "Missing params for tools/call")
	}
	name := params.Get("name")
	if name.Type != gjson.String || name.String() == "" {
		return "", nil, jsonrpc.NewRPCError(jsonrpc.CodeInvalidParams, "Missing tool name in params")
	}
	args := map[string]any{}
	raw := params.Get("arguments")
	switch {
	case !raw.Exists() || raw.Type == gjson.Null:
	case raw.IsObject():
		if err := json.Unmarshal([]byte(raw.Raw), &args); err != nil {
			return "", nil, jsonrpc.NewRPCError(jsonrpc.CodeInvalidParams, "Invalid arguments: %v", err)
		}
	default:
		return "", nil, jsonrpc.NewRPCError(jsonrpc.CodeInvalidParams, "Tool arguments must be an object")
	}
	return name.String(), args, nil
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, id jsonrpc2.ID, result any) {
	resp, err := jsonrpc.NewResultResponse(id, result)
	if err != nil {
		logger.Errorw("failed to encode gateway result", "error", err)
		s.writeError(w, r, id, jsonrpc.NewRPCError(jsonrpc.CodeInternalError, "failed to encode result"))
		return
	}
	writeMessage(w, r, http.StatusOK, resp)
}

func (*Server) writeError(w http.ResponseWriter, r *http.Request, id jsonrpc2.ID, rpcErr *jsonrpc.RPCError) {
	writeMessage(w, r, http.StatusOK, rpcErr.Response(id))
}

func writeRPCError(w http.ResponseWriter, r *http.Request, status int, id jsonrpc2.ID, code int64, message string) {
	writeMessage(w, r, status, jsonrpc.NewErrorResponse(id, code, message))
}

// wantsEventStream reports whether the caller only accepts an event stream.
func wantsEventStream(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/event-stream") && !strings.Contains(accept, "application/json")
}

func writeMessage(w http.ResponseWriter, r *http.Request, status int, msg jsonrpc2.Message) {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		logger.Errorw("failed to encode gateway response", "error", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	if session := r.Header.Get(SessionHeader); session != "" && w.Header().Get(SessionHeader) == "" {
		w.Header().Set(SessionHeader, session)
	}

	if wantsEventStream(r) {
		setSSEHeaders(w)
		w.WriteHeader(status)
		if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
			logger.Debugw("failed to write event stream response", "error", err)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logger.Debugw("failed to write response", "error", err)
	}
}
