// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/mcpgate/pkg/config"
	"github.com/stacklok/mcpgate/pkg/connections"
	"github.com/stacklok/mcpgate/pkg/connections/mocks"
	"github.com/stacklok/mcpgate/pkg/discovery"
	"github.com/stacklok/mcpgate/pkg/jsonrpc"
	"github.com/stacklok/mcpgate/pkg/mcpclient"
	"github.com/stacklok/mcpgate/pkg/state"
	"github.com/stacklok/mcpgate/pkg/stats"
	"github.com/stacklok/mcpgate/pkg/toolcall"
)

const echoSchema = `{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`

type fixture struct {
	server   *Server
	http     *httptest.Server
	state    *state.State
	recorder *stats.Recorder
	client   *mocks.MockClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	st := state.New(&config.Config{}, nil)
	require.NoError(t, st.AddBackend(config.BackendConfig{
		ID: "echo-id", Name: "echo", Transport: config.TransportStdio, Command: "echo-mcp-server",
	}))
	require.NoError(t, st.AddBackend(config.BackendConfig{
		ID: "idle-id", Name: "idle", Transport: config.TransportStdio, Command: "idle-mcp-server",
	}))
	require.NoError(t, st.SetConnected("echo-id", []state.ToolDescriptor{{
		Name: "echo", Title: "Echo", Description: "Echo a message",
		InputSchema: json.RawMessage(echoSchema), ServerID: "echo-id", ServerName: "echo",
	}}, time.Now()))

	client := mocks.NewMockClient(ctrl)
	registry := connections.NewRegistry()
	registry.Insert("echo-id", client)
	recorder := stats.NewRecorder()

	s := New(Deps{
		State:     st,
		Registry:  registry,
		Recorder:  recorder,
		Discovery: discovery.NewHandler(st, toolcall.NewForwarder(st, registry, recorder)),
		Metrics:   stats.NewMetrics(false),
	}, WithKeepAlive(50*time.Millisecond))

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return &fixture{server: s, http: ts, state: st, recorder: recorder, client: client}
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int64  `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (f *fixture) post(t *testing.T, path, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, f.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (f *fixture) call(t *testing.T, path, body string) rpcResponse {
	t.Helper()
	resp := f.post(t, path, body, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestNotificationIsAcceptedWithoutSideEffects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.post(t, "/echo-id",
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`,
		http.Header{SessionHeader: {"session-1"}})

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "session-1", resp.Header.Get(SessionHeader))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Empty(t, body)
	assert.Zero(t, f.recorder.Get("echo-id").TotalCalls)
}

func TestRejectsMalformedBodies(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`},
		{"not json", `{"jsonrpc":`},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`},
		{"empty", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := f.post(t, "/echo-id", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestDisallowedOriginIsForbidden(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		origin string
		want   int
	}{
		{"https://evil.example.com", http.StatusForbidden},
		{"null", http.StatusForbidden},
		{"http://localhost:3000", http.StatusOK},
		{"http://127.0.0.1:8080", http.StatusOK},
		{"vscode-webview://abc", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			t.Parallel()
			resp := f.post(t, "/echo-id", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, http.Header{"Origin": {tt.origin}})
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestUnknownBackendIsInvalidParams(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	out := f.call(t, "/missing-id", `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, int64(jsonrpc.CodeInvalidParams), out.Error.Code)
	assert.Equal(t, "No server found with ID: missing-id", out.Error.Message)
	assert.JSONEq(t, `7`, string(out.ID))
}

func TestInitialize(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		name      string
		requested string
		want      string
	}{
		{"supported version is echoed", "2025-03-26", "2025-03-26"},
		{"oldest supported version", "2024-11-05", "2024-11-05"},
		{"unknown version gets latest", "1999-01-01", SupportedProtocolVersions[0]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := f.post(t, "/echo-id",
				`{"jsonrpc":"2.0","id":"init","method":"initialize","params":{"protocolVersion":"`+tt.requested+`","capabilities":{}}}`, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get(SessionHeader))

			var out rpcResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			var result initializeResult
			require.NoError(t, json.Unmarshal(out.Result, &result))
			assert.Equal(t, tt.want, result.ProtocolVersion)
			assert.Equal(t, "mcpgate: echo", result.ServerInfo.Name)
			assert.True(t, result.Capabilities.Tools.ListChanged)
		})
	}
}

func TestInitializeMintsNewSessions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`
	first := f.post(t, "/echo-id", body, nil).Header.Get(SessionHeader)
	second := f.post(t, "/echo-id", body, nil).Header.Get(SessionHeader)
	assert.NotEqual(t, first, second)
}

func TestToolsListIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	first := f.call(t, "/echo-id", body)
	second := f.call(t, "/echo-id", body)

	assert.JSONEq(t, `{"tools":[{"name":"echo","title":"Echo","description":"Echo a message","inputSchema":`+echoSchema+`}]}`,
		string(first.Result))
	assert.JSONEq(t, string(first.Result), string(second.Result))
}

func TestToolsCallForwardsAndRecords(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.client.EXPECT().CallTool(gomock.Any(), "echo", map[string]any{"message": "hi"}).Return(&mcpclient.CallResult{
		Content: []json.RawMessage{json.RawMessage(`{"type":"text","text":"hi"}`)},
	}, nil)

	out := f.call(t, "/echo-id?client=vscode",
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`)
	require.Nil(t, out.Error)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"hi"}]}`, string(out.Result))

	s := f.recorder.Get("echo-id")
	assert.Equal(t, uint64(1), s.TotalCalls)
	assert.Equal(t, uint64(1), s.Clients["vscode"])
}

func TestToolsCallTransportFailureIsErrorResult(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.client.EXPECT().CallTool(gomock.Any(), "echo", gomock.Any()).Return(nil, errors.New("stream closed"))

	out := f.call(t, "/echo-id",
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`)
	require.Nil(t, out.Error)
	var result toolcall.Result
	require.NoError(t, json.Unmarshal(out.Result, &result))
	assert.True(t, result.IsError)
	assert.Contains(t, string(result.Content[0]), "Tool call failed: stream closed")
}

func TestToolsCallCallerErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		name string
		path string
		body string
		code int64
		msg  string
	}{
		{"missing params", "/echo-id", `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`,
			jsonrpc.CodeInvalidParams, "Missing params for tools/call"},
		{"missing name", "/echo-id", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`,
			jsonrpc.CodeInvalidParams, "Missing tool name in params"},
		{"arguments not an object", "/echo-id", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":[1]}}`,
			jsonrpc.CodeInvalidParams, "Tool arguments must be an object"},
		{"backend not connected", "/idle-id", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo"}}`,
			jsonrpc.CodeInvalidParams, "Server 'idle' is not connected"},
		{"unknown method", "/echo-id", `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`,
			jsonrpc.CodeMethodNotFound, "Method not found: resources/list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := f.call(t, tt.path, tt.body)
			require.NotNil(t, out.Error)
			assert.Equal(t, tt.code, out.Error.Code)
			assert.Equal(t, tt.msg, out.Error.Message)
		})
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	out := f.call(t, "/echo-id", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	require.Nil(t, out.Error)
	assert.JSONEq(t, `{}`, string(out.Result))
}

func TestEventStreamResponseEncoding(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.post(t, "/echo-id", `{"jsonrpc":"2.0","id":1,"method":"ping"}`,
		http.Header{"Accept": {"text/event-stream"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{}}\n\n", string(body))
}

func TestDiscoveryEndpointGating(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	out := f.call(t, DiscoveryPath, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, int64(jsonrpc.CodeNotEnabled), out.Error.Code)
	assert.Equal(t, "Tool discovery mode is not enabled", out.Error.Message)

	resp := f.post(t, DiscoveryPath, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	f.state.SetDiscoveryEnabled(true)
	out = f.call(t, DiscoveryPath, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.Nil(t, out.Error)
	var listed struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(out.Result, &listed))
	require.Len(t, listed.Tools, 3)
	assert.Equal(t, discovery.DiscoverToolsName, listed.Tools[0].Name)

	out = f.call(t, DiscoveryPath, `{"jsonrpc":"2.0","id":3,"method":"initialize","params":{}}`)
	var result initializeResult
	require.NoError(t, json.Unmarshal(out.Result, &result))
	assert.Equal(t, "mcpgate: "+DiscoveryServerName, result.ServerInfo.Name)
	assert.False(t, result.Capabilities.Tools.ListChanged)
}

func TestDiscoveryCallToolRoutesToBackend(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.state.SetDiscoveryEnabled(true)

	f.client.EXPECT().CallTool(gomock.Any(), "echo", map[string]any{"message": "yo"}).Return(&mcpclient.CallResult{
		Content: []json.RawMessage{json.RawMessage(`{"type":"text","text":"yo"}`)},
	}, nil)

	out := f.call(t, DiscoveryPath+"?client=claude",
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"call_tool","arguments":{"server_id":"echo-id","tool_name":"echo","arguments":{"message":"yo"}}}}`)
	require.Nil(t, out.Error)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"yo"}]}`, string(out.Result))
	assert.Equal(t, uint64(1), f.recorder.Get("echo-id").Clients["claude"])
}

// readEvent reads one event block from an event stream.
func readEvent(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		if line == "\n" {
			return b.String(), nil
		}
		b.WriteString(line)
	}
}

func openStream(t *testing.T, f *fixture, path string) (*bufio.Reader, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.http.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return f.server.Notifier().Subscribers() > 0 }, time.Second, 5*time.Millisecond)
	return bufio.NewReader(resp.Body), cancel
}

func nextNonKeepAlive(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		event, err := readEvent(r)
		require.NoError(t, err)
		if !strings.HasPrefix(event, ":") {
			return event
		}
	}
}

func TestStreamBroadcastsToolListChanges(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	reader, cancel := openStream(t, f, "/echo-id")
	defer cancel()

	notifier := f.server.Notifier()
	notifier.ToolsChanged("other-id", []string{"x"})
	notifier.ToolsChanged("echo-id", []string{"echo"})
	notifier.ToolsChanged("echo-id", []string{"echo"})
	notifier.ToolsChanged("echo-id", []string{"echo", "reverse"})

	for range 2 {
		assert.Equal(t, "event: message\ndata: "+listChangedNotification+"\n", nextNonKeepAlive(t, reader))
	}
}

func TestStreamSendsKeepAlives(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	reader, cancel := openStream(t, f, DiscoveryPath)
	defer cancel()

	event, err := readEvent(reader)
	require.NoError(t, err)
	assert.Equal(t, ": keep-alive\n", event)
}

func TestStreamForUnknownBackendIsNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, f.http.URL+"/missing-id", nil)
	require.NoError(t, err)
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestShutdownEndsStreams(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	reader, cancel := openStream(t, f, "/echo-id")
	defer cancel()

	ctx, cancelShutdown := context.WithTimeout(t.Context(), time.Second)
	defer cancelShutdown()
	require.NoError(t, f.server.Shutdown(ctx))

	_, err := io.ReadAll(reader)
	assert.NoError(t, err)
	assert.Zero(t, f.server.Notifier().Subscribers())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.client.EXPECT().CallTool(gomock.Any(), "echo", gomock.Any()).Return(&mcpclient.CallResult{}, nil)
	f.call(t, "/echo-id", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"message":"m"}}}`)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, f.http.URL+"/metrics", nil)
	require.NoError(t, err)
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mcpgate_connected_backends")
}

func TestListenAndServe(t *testing.T) {
	t.Parallel()
	s := New(Deps{State: state.New(&config.Config{}, nil), Registry: connections.NewRegistry()})

	require.NoError(t, s.Listen(0))
	assert.NotZero(t, s.Port())

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()
	require.Eventually(t, s.Ready, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, <-done)
	assert.False(t, s.Ready())
}
