// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package discovery implements the aggregate endpoint that lets a caller
// search, list and invoke the tools of every connected backend through three
// meta-tools.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"

	"github.com/stacklok/mcpgate/pkg/jsonrpc"
	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/state"
	"github.com/stacklok/mcpgate/pkg/toolcall"
)

// Meta-tool names.
const (
	DiscoverToolsName = "discover_tools"
	CallToolName      = "call_tool"
	ListServersName   = "list_servers"
)

// MaxMatches caps the number of tools returned by discover_tools.
const MaxMatches = 20

// Match is one discover_tools hit.
type Match struct {
	ServerID    string          `json:"server_id"`
	ServerName  string          `json:"server_name"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Title       string          `json:"title,omitempty"`
	Parameters  string          `json:"parameters"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ServerSummary is one list_servers entry.
type ServerSummary struct {
	ServerID   string   `json:"server_id"`
	ServerName string   `json:"server_name"`
	ToolCount  int      `json:"tool_count"`
	Tools      []string `json:"tools"`
}

// Handler serves the meta-tools.
type Handler struct {
	state     *state.State
	forwarder *toolcall.Forwarder
	tools     []mcp.Tool
}

// NewHandler returns a Handler that searches st and forwards through forwarder.
func NewHandler(st *state.State, forwarder *toolcall.Forwarder) *Handler {
	return &Handler{state: st, forwarder: forwarder, tools: metaTools()}
}

func metaTools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(DiscoverToolsName,
			mcp.WithDescription("Search for available tools across all connected MCP servers. "+
				"Returns matching tools with their full input schemas so you can call them immediately via call_tool. "+
				"Use this before calling a tool you haven't used yet."),
			mcp.WithString("query", mcp.Required(),
				mcp.Description("Search query matching tool names and descriptions. All terms must match (case-insensitive). "+
					"Example: 'slack message' finds tools with both 'slack' and 'message' in their name or description.")),
		),
		mcp.NewTool(CallToolName,
			mcp.WithDescription("Call a tool on a specific MCP server. "+
				"Use discover_tools first to find the server_id and tool_name, then call this with the appropriate arguments."),
			mcp.WithString("server_id", mcp.Required(),
				mcp.Description("The server ID that hosts the tool (from discover_tools or list_servers results).")),
			mcp.WithString("tool_name", mcp.Required(),
				mcp.Description("The name of the tool to call.")),
			mcp.WithObject("arguments",
				mcp.Description("Arguments to pass to the tool, matching its inputSchema.")),
		),
		mcp.NewTool(ListServersName,
			mcp.WithDescription("List all connected MCP servers and their available tool names. "+
				"Use this to get an overview of what's available, then use discover_tools for details on specific tools."),
		),
	}
}

// Enabled reports the operator-controlled discovery flag.
func (h *Handler) Enabled() bool {
	return h.state.DiscoveryEnabled()
}

// ListTools returns the three meta-tools.
func (h *Handler) ListTools() []mcp.Tool {
	return slices.Clone(h.tools)
}

// CallTool runs a meta-tool.
func (h *Handler) CallTool(ctx context.Context, name string, args map[string]any, client string) (*toolcall.Result, *jsonrpc.RPCError) {
	logger.Debugw("discovery tool call", "tool", name)
	switch name {
	case DiscoverToolsName:
		query, _ := args["query"].(string)
		if query == "" {
			return nil, missingArgument("query")
		}
		return h.discoverTools(query), nil
	case ListServersName:
		return h.listServers(), nil
	case CallToolName:
		return h.callTool(ctx, args, client)
	default:
		return nil, jsonrpc.NewRPCError(jsonrpc.CodeInvalidParams,
			"Unknown discovery tool: %s. Available: %s, %s, %s", name, DiscoverToolsName, CallToolName, ListServersName)
	}
}

func missingArgument(name string) *jsonrpc.RPCError {
	return jsonrpc.NewRPCError(jsonrpc.CodeInvalidParams, "Missing required argument: %s", name)
}

// Search returns the tools of connected backends whose lowercased
// "name description" contains every whitespace-separated term of query.
// Backends are visited in configuration order and at most MaxMatches tools
// are returned.
func (h *Handler) Search(query string) []Match {
	terms := strings.Fields(strings.ToLower(query))
	matches := []Match{}
	if len(terms) == 0 {
		return matches
	}

	for _, backend := range h.state.ConnectedBackends() {
		for _, tool := range h.state.Tools(backend.ID) {
			haystack := strings.ToLower(tool.Name) + " " + strings.ToLower(tool.Description)
			if !containsAll(haystack, terms) {
				continue
			}
			matches = append(matches, Match{
				ServerID:    backend.ID,
				ServerName:  backend.Name,
				Name:        tool.Name,
				Description: tool.Description,
				Title:       tool.Title,
				Parameters:  SummarizeParameters(tool.InputSchema),
				InputSchema: tool.InputSchema,
			})
			if len(matches) >= MaxMatches {
				return matches
			}
		}
	}
	return matches
}

func containsAll(haystack string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

func (h *Handler) discoverTools(query string) *toolcall.Result {
	matches := h.Search(query)
	if len(matches) == 0 {
		return toolcall.TextResult(fmt.Sprintf(
			"No tools found matching '%s'. Try broader terms or use list_servers to see available servers.", query), false)
	}
	return prettyResult(matches)
}

// Servers summarizes the connected backends in configuration order.
func (h *Handler) Servers() []ServerSummary {
	backends := h.state.ConnectedBackends()
	servers := make([]ServerSummary, 0, len(backends))
	for _, backend := range backends {
		tools := h.state.Tools(backend.ID)
		names := make([]string, 0, len(tools))
		for _, tool := range tools {
			names = append(names, tool.Name)
		}
		servers = append(servers, ServerSummary{
			ServerID:   backend.ID,
			ServerName: backend.Name,
			ToolCount:  len(names),
			Tools:      names,
		})
	}
	return servers
}

func (h *Handler) listServers() *toolcall.Result {
	servers := h.Servers()
	if len(servers) == 0 {
		return toolcall.TextResult("No servers are currently connected.", false)
	}
	return prettyResult(servers)
}

func (h *Handler) callTool(ctx context.Context, args map[string]any, client string) (*toolcall.Result, *jsonrpc.RPCError) {
	serverID, _ := args["server_id"].(string)
	if serverID == "" {
		return nil, missingArgument("server_id")
	}
	toolName, _ := args["tool_name"].(string)
	if toolName == "" {
		return nil, missingArgument("tool_name")
	}
	toolArgs, ok := args["arguments"].(map[string]any)
	if !ok {
		if args["arguments"] != nil {
			return nil, jsonrpc.NewRPCError(jsonrpc.CodeInvalidParams, "Argument 'arguments' must be an object")
		}
		toolArgs = map[string]any{}
	}

	return h.forwarder.Forward(ctx, toolcall.Request{
		ServerID:        serverID,
		Tool:            toolName,
		Arguments:       toolArgs,
		Client:          client,
		HintOnToolError: true,
	})
}

func prettyResult(v any) *toolcall.Result {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolcall.TextResult(fmt.Sprintf("failed to encode result: %v", err), true)
	}
	return toolcall.TextResult(string(data), false)
}

// SummarizeParameters renders the properties of an input schema as
// "name (type, required), other (type)" in property name order. A property
// without a string type is reported as "any".
func SummarizeParameters(schema json.RawMessage) string {
	if len(schema) == 0 {
		return ""
	}
	parsed := gjson.ParseBytes(schema)
	props := parsed.Get("properties")
	if !props.IsObject() {
		return ""
	}

	required := map[string]bool{}
	for _, r := range parsed.Get("required").Array() {
		required[r.String()] = true
	}

	propTypes := map[string]string{}
	props.ForEach(func(key, value gjson.Result) bool {
		typ := value.Get("type")
		if typ.Type == gjson.String {
			propTypes[key.String()] = typ.String()
		} else {
			propTypes[key.String()] = "any"
		}
		return true
	})

	names := make([]string, 0, len(propTypes))
	for name := range propTypes {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if required[name] {
			parts = append(parts, fmt.Sprintf("%s (%s, required)", name, propTypes[name]))
		} else {
			parts = append(parts, fmt.Sprintf("%s (%s)", name, propTypes[name]))
		}
	}
	return strings.Join(parts, ", ")
}
