// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"golang.org/x/exp/jsonrpc2"

	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
)

func TestEncodeDecodeLine(t *testing.T) {
	t.Parallel()

	req, err := jsonrpc2.NewCall(jsonrpc2.Int64ID(7), "tools/list", map[string]any{})
	require.NoError(t, err)

	line, err := EncodeLine(req)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), line[len(line)-1])
	assert.NotContains(t, string(line[:len(line)-1]), "\n")

	msg, err := DecodeLine(append([]byte("  "), line...))
	require.NoError(t, err)
	decoded, ok := msg.(*jsonrpc2.Request)
	require.True(t, ok)
	assert.Equal(t, "tools/list", decoded.Method)
	assert.Equal(t, "n:7", IDKey(decoded.ID))

	_, err = DecodeLine([]byte("   \n"))
	assert.Error(t, err)
	_, err = DecodeLine([]byte("not json"))
	assert.Error(t, err)
}

func TestIDKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "n:1", IDKey(jsonrpc2.Int64ID(1)))
	assert.Equal(t, "s:1", IDKey(jsonrpc2.StringID("1")))
	assert.Equal(t, "", IDKey(jsonrpc2.ID{}))
}

func TestIDFromJSON(t *testing.T) {
	t.Parallel()

	id, ok := IDFromJSON(gjson.Get(`{"id":42}`, "id"))
	require.True(t, ok)
	assert.Equal(t, "n:42", IDKey(id))

	id, ok = IDFromJSON(gjson.Get(`{"id":"abc"}`, "id"))
	require.True(t, ok)
	assert.Equal(t, "s:abc", IDKey(id))

	_, ok = IDFromJSON(gjson.Get(`{"id":null}`, "id"))
	assert.False(t, ok)
	_, ok = IDFromJSON(gjson.Get(`{"method":"x"}`, "id"))
	assert.False(t, ok)
}

func TestIsNotification(t *testing.T) {
	t.Parallel()

	n, err := jsonrpc2.NewNotification("notifications/initialized", nil)
	require.NoError(t, err)
	assert.True(t, IsNotification(n))

	c, err := jsonrpc2.NewCall(jsonrpc2.Int64ID(1), "ping", nil)
	require.NoError(t, err)
	assert.False(t, IsNotification(c))
}

func TestDecodeResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		envelope     string
		wantProtocol bool
		wantResp     bool
		wantErrText  string
	}{
		{
			name:     "result",
			envelope: `{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`,
			wantResp: true,
		},
		{
			name:         "error object",
			envelope:     `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found"}}`,
			wantProtocol: true,
			wantResp:     true,
			wantErrText:  "-32601: Method not found",
		},
		{
			name:         "request instead of response",
			envelope:     `{"jsonrpc":"2.0","id":1,"method":"ping"}`,
			wantProtocol: true,
		},
		{
			name:         "garbage",
			envelope:     `<html>`,
			wantProtocol: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, err := DecodeResponse([]byte(tt.envelope))
			if tt.wantProtocol {
				require.Error(t, err)
				assert.True(t, mcperrors.IsProtocol(err))
			} else {
				require.NoError(t, err)
			}
			if tt.wantErrText != "" {
				assert.Contains(t, err.Error(), tt.wantErrText)
			}
			assert.Equal(t, tt.wantResp, resp != nil)
		})
	}
}

func TestNewErrorResponseEncodes(t *testing.T) {
	t.Parallel()

	resp := NewErrorResponse(jsonrpc2.StringID("a"), CodeInvalidParams, "No server found with ID: x")
	data, err := jsonrpc2.EncodeMessage(resp)
	require.NoError(t, err)

	assert.Equal(t, "a", gjson.GetBytes(data, "id").String())
	assert.Equal(t, int64(CodeInvalidParams), gjson.GetBytes(data, "error.code").Int())
	assert.Equal(t, "No server found with ID: x", gjson.GetBytes(data, "error.message").String())
}

func TestResultInto(t *testing.T) {
	t.Parallel()

	resp, err := NewResultResponse(jsonrpc2.Int64ID(1), map[string]any{"ok": true})
	require.NoError(t, err)

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, ResultInto(resp, &out))
	assert.True(t, out.OK)

	err = ResultInto(&jsonrpc2.Response{ID: jsonrpc2.Int64ID(1), Result: json.RawMessage(`[`)}, &out)
	assert.True(t, mcperrors.IsProtocol(err))
	assert.True(t, mcperrors.IsProtocol(ResultInto(nil, &out)))
}

func TestResponseError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ResponseError(nil))

	ok, err := NewResultResponse(jsonrpc2.Int64ID(1), map[string]any{})
	require.NoError(t, err)
	assert.NoError(t, ResponseError(ok))

	msg, err := jsonrpc2.DecodeMessage([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"bad args"}}`))
	require.NoError(t, err)
	rpcErr := ResponseError(msg.(*jsonrpc2.Response))
	require.Error(t, rpcErr)
	assert.True(t, mcperrors.IsProtocol(rpcErr))
	assert.Contains(t, rpcErr.Error(), "-32602: bad args")
}

func TestRPCErrorResponse(t *testing.T) {
	t.Parallel()

	rpcErr := NewRPCError(CodeInvalidParams, "No server found with ID: %s", "x")
	assert.Equal(t, "-32602: No server found with ID: x", rpcErr.Error())

	data, err := jsonrpc2.EncodeMessage(rpcErr.Response(jsonrpc2.Int64ID(4)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":4,"error":{"code":-32602,"message":"No server found with ID: x"}}`, string(data))
}
