// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sse

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stream = "event: endpoint\ndata: /messages?sessionId=abc\n\n" +
	": keep-alive\n\n" +
	"data: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{}}\n\n" +
	"event: message\ndata: line one\ndata: line two\n\n"

var wantEvents = []Event{
	{Name: "endpoint", Data: "/messages?sessionId=abc"},
	{Data: `{"jsonrpc":"2.0","id":1,"result":{}}`},
	{Name: "message", Data: "line one\nline two"},
}

func feedInChunks(p *Parser, data []byte, size int) []Event {
	var events []Event
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		events = append(events, p.Feed(data[:n])...)
		data = data[n:]
	}
	return append(events, p.Flush()...)
}

func TestParserChunkBoundaries(t *testing.T) {
	t.Parallel()

	crlf := bytes.ReplaceAll([]byte(stream), []byte("\n"), []byte("\r\n"))
	cr := bytes.ReplaceAll([]byte(stream), []byte("\n"), []byte("\r"))

	inputs := map[string][]byte{
		"lf":   []byte(stream),
		"crlf": crlf,
		"cr":   cr,
	}

	for name, input := range inputs {
		for _, size := range []int{1, 2, 3, 7, 16, len(input)} {
			t.Run(name, func(t *testing.T) {
				t.Parallel()
				got := feedInChunks(NewParser(), input, size)
				assert.Equal(t, wantEvents, got, "chunk size %d", size)
			})
		}
	}
}

func TestParserCRLFSplitAcrossChunks(t *testing.T) {
	t.Parallel()

	p := NewParser()
	assert.Empty(t, p.Feed([]byte("data: a\r")))
	assert.Empty(t, p.Feed([]byte("\n\r")))
	events := p.Feed([]byte("\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].Data)
}

func TestParserPartialEventIsCarriedOver(t *testing.T) {
	t.Parallel()

	p := NewParser()
	assert.Empty(t, p.Feed([]byte("event: message\nda")))
	assert.Empty(t, p.Feed([]byte("ta: {\"id\":2}\n")))
	events := p.Feed([]byte("\n"))
	require.Len(t, events, 1)
	assert.Equal(t, Event{Name: "message", Data: `{"id":2}`}, events[0])
}

func TestParserFieldEdgeCases(t *testing.T) {
	t.Parallel()

	p := NewParser()
	events := p.Feed([]byte("data:nospace\ndata:  two spaces\nretry: 100\nunknown: x\nid: 9\n\nevent: only-name\n\n"))
	require.Len(t, events, 1, "an event without data is not dispatched")
	assert.Equal(t, "nospace\n two spaces", events[0].Data)
	assert.Equal(t, "9", events[0].ID)
}

func TestFlushDispatchesUnterminatedEvent(t *testing.T) {
	t.Parallel()

	p := NewParser()
	assert.Empty(t, p.Feed([]byte("data: tail")))
	events := p.Flush()
	require.Len(t, events, 1)
	assert.Equal(t, "tail", events[0].Data)
	assert.Empty(t, p.Flush())
}

func TestWriteRoundTrip(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	SetHeaders(rec)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var buf bytes.Buffer
	require.NoError(t, WriteComment(&buf, "ping"))
	require.NoError(t, Write(&buf, Event{Name: "message", ID: "3", Data: "a\nb"}))

	p := NewParser()
	events := p.Feed(buf.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, Event{Name: "message", ID: "3", Data: "a\nb"}, events[0])
}
