// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package jsonrpc holds the JSON-RPC 2.0 envelope helpers shared by transports and the gateway.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"golang.org/x/exp/jsonrpc2"

	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
)

// Standard and gateway-specific error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotEnabled     = -32001
)

// EncodeLine encodes msg as a single newline-terminated line.
func EncodeLine(msg jsonrpc2.Message) ([]byte, error) {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeLine decodes one line of newline-delimited JSON-RPC. Surrounding
// whitespace is ignored; an empty line is an error.
func DecodeLine(line []byte) (jsonrpc2.Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, fmt.Errorf("empty message")
	}
	return jsonrpc2.DecodeMessage(line)
}

// IDKey returns a stable key for id, prefixed by kind so 1 and "1" differ.
func IDKey(id jsonrpc2.ID) string {
	switch v := id.Raw().(type) {
	case string:
		return "s:" + v
	case int64:
		return "n:" + strconv.FormatInt(v, 10)
	case float64:
		return "n:" + strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

// IDFromJSON converts a raw JSON id member into a jsonrpc2.ID. It returns
// an invalid ID (and false) when the member is absent or null.
func IDFromJSON(raw gjson.Result) (jsonrpc2.ID, bool) {
	switch raw.Type {
	case gjson.String:
		return jsonrpc2.StringID(raw.String()), true
	case gjson.Number:
		return jsonrpc2.Int64ID(raw.Int()), true
	default:
		return jsonrpc2.ID{}, false
	}
}

// IsNotification reports whether msg is a request without an id.
func IsNotification(msg jsonrpc2.Message) bool {
	req, ok := msg.(*jsonrpc2.Request)
	return ok && !req.ID.IsValid()
}

// NewErrorResponse builds an error response for id.
func NewErrorResponse(id jsonrpc2.ID, code int64, message string) *jsonrpc2.Response {
	return &jsonrpc2.Response{
		ID:    id,
		Error: jsonrpc2.NewError(code, message),
	}
}

// NewResultResponse builds a success response for id, marshalling result.
func NewResultResponse(id jsonrpc2.ID, result any) (*jsonrpc2.Response, error) {
	return jsonrpc2.NewResponse(id, result, nil)
}

// ErrorFromEnvelope inspects a raw response envelope and returns a protocol
// error "<code>: <message>" if it carries a JSON-RPC error object.
func ErrorFromEnvelope(envelope []byte) error {
	errObj := gjson.GetBytes(envelope, "error")
	if !errObj.Exists() || errObj.Type == gjson.Null {
		return nil
	}
	code := errObj.Get("code").Int()
	msg := errObj.Get("message").String()
	return mcperrors.NewProtocolError(fmt.Sprintf("%d: %s", code, msg), nil)
}

// ResponseError returns a protocol error "<code>: <message>" when resp carries
// a JSON-RPC error object, and nil otherwise.
func ResponseError(resp *jsonrpc2.Response) error {
	if resp == nil || resp.Error == nil {
		return nil
	}
	data, err := jsonrpc2.EncodeMessage(resp)
	if err != nil {
		return mcperrors.NewProtocolError(resp.Error.Error(), nil)
	}
	return ErrorFromEnvelope(data)
}

// DecodeResponse decodes a raw envelope that must be a response. A JSON-RPC
// error object becomes a protocol error; the response is still returned.
func DecodeResponse(envelope []byte) (*jsonrpc2.Response, error) {
	msg, err := jsonrpc2.DecodeMessage(bytes.TrimSpace(envelope))
	if err != nil {
		return nil, mcperrors.NewProtocolError("invalid JSON-RPC envelope", err)
	}
	resp, ok := msg.(*jsonrpc2.Response)
	if !ok {
		return nil, mcperrors.NewProtocolError("expected a JSON-RPC response", nil)
	}
	if err := ErrorFromEnvelope(envelope); err != nil {
		return resp, err
	}
	return resp, nil
}

// ResultInto unmarshals resp.Result into v.
func ResultInto(resp *jsonrpc2.Response, v any) error {
	if resp == nil {
		return mcperrors.NewProtocolError("missing response", nil)
	}
	if len(resp.Result) == 0 {
		return mcperrors.NewProtocolError("response has no result", nil)
	}
	if err := json.Unmarshal(resp.Result, v); err != nil {
		return mcperrors.NewProtocolError("failed to decode result", err)
	}
	return nil
}

// RPCError is a JSON-RPC error object produced by the gateway.
type RPCError struct {
	Code    int64
	Message string
}

// NewRPCError returns an RPCError with code and a formatted message.
func NewRPCError(code int64, format string, args ...any) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (e *RPCError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// Response builds the error response for id.
func (e *RPCError) Response(id jsonrpc2.ID) *jsonrpc2.Response {
	return NewErrorResponse(id, e.Code, e.Message)
}
