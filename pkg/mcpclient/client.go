// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package mcpclient implements the client side of the MCP handshake, tool
// discovery and tool invocation on top of a transport.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"

	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
	"github.com/stacklok/mcpgate/pkg/jsonrpc"
	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/transport/remote"
	"github.com/stacklok/mcpgate/pkg/transport/stdio"
	"github.com/stacklok/mcpgate/pkg/transport/types"
	"github.com/stacklok/mcpgate/pkg/versions"
)

const maxToolPages = 50

// Tool is a tool advertised by a backend. InputSchema is kept as received.
type Tool struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// CallResult is the outcome of tools/call. Content items are passed through
// without re-encoding.
type CallResult struct {
	Content           []json.RawMessage `json:"content"`
	StructuredContent json.RawMessage   `json:"structuredContent,omitempty"`
	IsError           bool              `json:"isError,omitempty"`
}

// Text concatenates the text content items of the result.
func (r *CallResult) Text() string {
	var out string
	for _, raw := range r.Content {
		var item struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if json.Unmarshal(raw, &item) == nil && item.Type == "text" {
			if out != "" {
				out += "\n"
			}
			out += item.Text
		}
	}
	return out
}

// Client is an initialized session with one backend.
type Client struct {
	serverID  string
	transport types.Transport

	serverInfo      mcp.Implementation
	capabilities    mcp.ServerCapabilities
	protocolVersion string

	mu    sync.RWMutex
	tools []Tool

	done         <-chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// ProcessConfig describes a backend spawned as a child process.
type ProcessConfig struct {
	ServerID string
	Command  string
	Args     []string
	Env      map[string]string
	OnStderr stdio.StderrHandler
}

// HTTPConfig describes a backend reached over HTTP.
type HTTPConfig struct {
	ServerID    string
	URL         string
	Headers     map[string]string
	AccessToken string
	Mode        string
	HTTPClient  *http.Client
}

// ConnectProcess spawns the backend and initializes a session with it.
func ConnectProcess(ctx context.Context, cfg ProcessConfig) (*Client, error) {
	t, err := stdio.Spawn(ctx, stdio.Config{
		ServerID: cfg.ServerID,
		Command:  cfg.Command,
		Args:     cfg.Args,
		Env:      cfg.Env,
		OnStderr: cfg.OnStderr,
	})
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg.ServerID, t)
}

// ConnectHTTP opens an HTTP transport and initializes a session with it.
func ConnectHTTP(ctx context.Context, cfg HTTPConfig) (*Client, error) {
	headers := make(map[string]string, len(cfg.Headers)+1)
	headers["User-Agent"] = versions.UserAgent()
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	t, err := remote.Connect(ctx, remote.Options{
		ServerID:    cfg.ServerID,
		URL:         cfg.URL,
		Headers:     headers,
		AccessToken: cfg.AccessToken,
		Mode:        cfg.Mode,
		HTTPClient:  cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg.ServerID, t)
}

// New runs the handshake and the initial tool listing over t. On failure the
// transport is closed and no client is returned.
func New(ctx context.Context, serverID string, t types.Transport) (*Client, error) {
	c := &Client{serverID: serverID, transport: t, done: neverDone}
	if w, ok := t.(types.Watchable); ok {
		c.done = w.Done()
	}

	if err := c.initialize(ctx); err != nil {
		_ = t.Close()
		return nil, err
	}
	tools, err := c.listTools(ctx)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	c.tools = tools

	logger.Debugw("backend session initialized",
		"server", serverID,
		"backend", c.serverInfo.Name,
		"protocol_version", c.protocolVersion,
		"tools", len(tools))
	return c, nil
}

var neverDone = make(chan struct{})

func (c *Client) initialize(ctx context.Context) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.Capabilities = mcp.ClientCapabilities{}
	req.Params.ClientInfo = mcp.Implementation{
		Name:    versions.ClientName,
		Version: versions.GetVersionInfo().Version,
	}

	resp, err := c.transport.SendRequest(ctx, string(mcp.MethodInitialize), req.Params)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	var result mcp.InitializeResult
	if err := jsonrpc.ResultInto(resp, &result); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	c.serverInfo = result.ServerInfo
	c.capabilities = result.Capabilities
	c.protocolVersion = result.ProtocolVersion

	if err := c.transport.SendNotification(ctx, "notifications/initialized", nil); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

type listToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

func (c *Client) listTools(ctx context.Context) ([]Tool, error) {
	tools := []Tool{}
	cursor := ""
	for page := 0; page < maxToolPages; page++ {
		var params any
		if cursor != "" {
			params = map[string]any{"cursor": cursor}
		}
		resp, err := c.transport.SendRequest(ctx, string(mcp.MethodToolsList), params)
		if err != nil {
			return nil, fmt.Errorf("tools/list: %w", err)
		}
		var result listToolsResult
		if err := jsonrpc.ResultInto(resp, &result); err != nil {
			return nil, fmt.Errorf("tools/list: %w", err)
		}
		tools = append(tools, result.Tools...)
		if result.NextCursor == "" || result.NextCursor == cursor {
			return tools, nil
		}
		cursor = result.NextCursor
	}
	logger.Warnw("tool listing truncated", "server", c.serverID, "pages", maxToolPages)
	return tools, nil
}

// CallTool invokes a tool. A tool-level failure is a result with IsError set;
// a returned error means the call itself did not complete.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	resp, err := c.transport.SendRequest(ctx, string(mcp.MethodToolsCall), map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, mcperrors.NewProtocolError("tools/call response has no result", nil)
	}

	raw := json.RawMessage(resp.Result)
	var wire struct {
		Content           []json.RawMessage `json:"content"`
		StructuredContent json.RawMessage   `json:"structuredContent,omitempty"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, mcperrors.NewProtocolError("failed to decode tool result", err)
	}
	result := &CallResult{Content: wire.Content, StructuredContent: wire.StructuredContent}
	if result.Content == nil {
		result.Content = []json.RawMessage{}
	}

	// content mcp-go cannot parse is still passed through as received
	parsed, err := mcp.ParseCallToolResult(&raw)
	if err != nil {
		logger.Debugw("tool result is not a standard result, passing it through",
			"server", c.serverID, "tool", name, "error", err)
		result.IsError = gjson.GetBytes(raw, "isError").Bool()
		return result, nil
	}
	result.IsError = parsed.IsError
	return result, nil
}

// RefreshTools lists the backend's tools again and caches the result.
func (c *Client) RefreshTools(ctx context.Context) ([]Tool, error) {
	tools, err := c.listTools(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
	return tools, nil
}

// Tools returns the cached tools.
func (c *Client) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Tool(nil), c.tools...)
}

// ServerInfo returns the implementation info the backend reported.
func (c *Client) ServerInfo() mcp.Implementation {
	return c.serverInfo
}

// Capabilities returns the capabilities the backend reported.
func (c *Client) Capabilities() mcp.ServerCapabilities {
	return c.capabilities
}

// ProtocolVersion returns the negotiated protocol version.
func (c *Client) ProtocolVersion() string {
	return c.protocolVersion
}

// ServerID returns the backend id.
func (c *Client) ServerID() string {
	return c.serverID
}

// Done is closed when the backend goes away on its own. HTTP backends in
// streamable mode never close it.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Shutdown closes the transport. Later calls return the first result.
func (c *Client) Shutdown() error {
	c.shutdownOnce.Do(func() {
		c.shutdownErr = c.transport.Close()
	})
	return c.shutdownErr
}
