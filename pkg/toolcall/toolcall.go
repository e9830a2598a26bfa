// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package toolcall forwards tools/call requests from the gateway to connected
// backends, records them in the call statistics and shapes failures into
// results a model can act on.
package toolcall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/stacklok/mcpgate/pkg/connections"
	"github.com/stacklok/mcpgate/pkg/jsonrpc"
	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/state"
	"github.com/stacklok/mcpgate/pkg/stats"
)

// Result is a tools/call result as sent to the caller.
type Result struct {
	Content           []json.RawMessage `json:"content"`
	StructuredContent json.RawMessage   `json:"structuredContent,omitempty"`
	IsError           bool              `json:"isError,omitempty"`
}

// TextResult returns a result with a single text item.
func TextResult(text string, isError bool) *Result {
	item, _ := json.Marshal(map[string]string{"type": "text", "text": text})
	return &Result{Content: []json.RawMessage{item}, IsError: isError}
}

// firstText returns the text of the first content item, if it is a text item.
func (r *Result) firstText() string {
	if len(r.Content) == 0 {
		return ""
	}
	var item struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(r.Content[0], &item); err != nil || item.Type != "text" {
		return ""
	}
	return item.Text
}

// Request is one tool call to forward.
type Request struct {
	ServerID  string
	Tool      string
	Arguments map[string]any
	// Client identifies the calling application for statistics. May be empty.
	Client string
	// HintOnToolError replaces a tool error result with its first text item
	// followed by the schema hint.
	HintOnToolError bool
}

// Forwarder routes calls through the connection registry.
type Forwarder struct {
	state    *state.State
	registry *connections.Registry
	recorder *stats.Recorder
}

// NewForwarder returns a Forwarder. recorder may be nil.
func NewForwarder(st *state.State, registry *connections.Registry, recorder *stats.Recorder) *Forwarder {
	return &Forwarder{state: st, registry: registry, recorder: recorder}
}

// Forward calls the tool and records the outcome. It returns an RPCError only
// for caller mistakes; backend failures become error results.
func (f *Forwarder) Forward(ctx context.Context, req Request) (*Result, *jsonrpc.RPCError) {
	backend, ok := f.state.Backend(req.ServerID)
	if !ok {
		return nil, jsonrpc.NewRPCError(jsonrpc.CodeInvalidParams, "No server found with ID: %s", req.ServerID)
	}
	client, ok := f.registry.Get(req.ServerID)
	if !ok {
		return nil, jsonrpc.NewRPCError(jsonrpc.CodeInvalidParams, "Server '%s' is not connected", backend.Name)
	}

	logger.Infow("forwarding tool call", "server", backend.Name, "tool", req.Tool)
	start := time.Now()
	callResult, err := client.CallTool(ctx, req.Tool, req.Arguments)
	elapsed := time.Since(start)

	var result *Result
	switch {
	case err != nil:
		logger.Warnw("tool call failed", "server", backend.Name, "tool", req.Tool, "error", err)
		result = TextResult("Tool call failed: "+err.Error()+f.schemaHint(req), true)
	default:
		result = &Result{
			Content:           callResult.Content,
			StructuredContent: callResult.StructuredContent,
			IsError:           callResult.IsError,
		}
		if result.Content == nil {
			result.Content = []json.RawMessage{}
		}
		if result.IsError && req.HintOnToolError {
			text := result.firstText()
			if text == "" {
				text = "Tool returned an error"
			}
			result = TextResult(text+f.schemaHint(req), true)
		}
	}

	if f.recorder != nil {
		f.recorder.Record(req.ServerID, req.Tool, req.Client, elapsed, result.IsError)
	}
	return result, nil
}

func (f *Forwarder) schemaHint(req Request) string {
	for _, tool := range f.state.Tools(req.ServerID) {
		if tool.Name == req.Tool {
			return SchemaHint(tool.Name, tool.InputSchema, req.Arguments)
		}
	}
	return ""
}

// SchemaHint describes the expected input of a tool and, when args do not
// validate against schema, what is wrong with them. It is empty when there
// is no schema.
func SchemaHint(tool string, schema json.RawMessage, args map[string]any) string {
	if len(bytes.TrimSpace(schema)) == 0 || string(bytes.TrimSpace(schema)) == "null" {
		return ""
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, schema, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(schema)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n\nExpected inputSchema for '%s':\n%s", tool, pretty.String())

	if args == nil {
		args = map[string]any{}
	}
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewGoLoader(args))
	if err != nil {
		logger.Debugw("could not validate arguments against schema", "tool", tool, "error", err)
		return b.String()
	}
	if !res.Valid() {
		b.WriteString("\n\nArgument problems:")
		for _, e := range res.Errors() {
			b.WriteString("\n- ")
			b.WriteString(e.String())
		}
	}
	return b.String()
}
