// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sse implements an incremental text/event-stream parser and writer.
package sse

import (
	"bytes"
	"strings"
)

// Event is one dispatched server-sent event.
type Event struct {
	// Name is the event type; empty means the default "message" type.
	Name string
	// Data is the payload with multiple data lines joined by "\n".
	Data string
	// ID is the last event id field, if any.
	ID string
}

// IsMessage reports whether the event is of the default message type.
func (e Event) IsMessage() bool {
	return e.Name == "" || e.Name == "message"
}

// Parser turns arbitrary byte chunks into events. Partial lines and partial
// events are carried over between calls to Feed.
type Parser struct {
	line    []byte
	afterCR bool

	name    string
	id      string
	data    []string
	hasData bool
}

// NewParser returns an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed consumes chunk and returns the events it completed, in order.
func (p *Parser) Feed(chunk []byte) []Event {
	var events []Event

	for len(chunk) > 0 {
		if p.afterCR {
			p.afterCR = false
			if chunk[0] == '\n' {
				chunk = chunk[1:]
				continue
			}
		}

		i := bytes.IndexAny(chunk, "\r\n")
		if i < 0 {
			p.line = append(p.line, chunk...)
			break
		}

		p.line = append(p.line, chunk[:i]...)
		if chunk[i] == '\r' {
			if i+1 < len(chunk) {
				if chunk[i+1] == '\n' {
					i++
				}
			} else {
				p.afterCR = true
			}
		}
		chunk = chunk[i+1:]

		if ev, ok := p.processLine(string(p.line)); ok {
			events = append(events, ev)
		}
		p.line = p.line[:0]
	}

	return events
}

// Flush ends the stream: an unterminated final line is processed and an event
// still being assembled is dispatched.
func (p *Parser) Flush() []Event {
	var events []Event
	if len(p.line) > 0 {
		if ev, ok := p.processLine(string(p.line)); ok {
			events = append(events, ev)
		}
		p.line = p.line[:0]
	}
	if ev, ok := p.dispatch(); ok {
		events = append(events, ev)
	}
	p.afterCR = false
	return events
}

func (p *Parser) processLine(line string) (Event, bool) {
	if line == "" {
		return p.dispatch()
	}
	if strings.HasPrefix(line, ":") {
		return Event{}, false
	}

	field, value, found := strings.Cut(line, ":")
	if found {
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "event":
		p.name = value
	case "data":
		p.data = append(p.data, value)
		p.hasData = true
	case "id":
		p.id = value
	}
	return Event{}, false
}

func (p *Parser) dispatch() (Event, bool) {
	defer func() {
		p.name = ""
		p.data = p.data[:0]
		p.hasData = false
	}()
	if !p.hasData {
		return Event{}, false
	}
	return Event{
		Name: p.name,
		Data: strings.Join(p.data, "\n"),
		ID:   p.id,
	}, true
}
