// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package stdio

import (
	"log/slog"
	"strings"
	"sync"
)

// ClassifyLine guesses the severity of a line a backend wrote to stderr.
// Backends log freely to stderr, so anything unrecognized is a warning.
func ClassifyLine(line string) slog.Level {
	upper := " " + strings.ToUpper(line) + " "
	switch {
	case strings.Contains(upper, " ERROR "),
		strings.Contains(upper, "ERROR:"),
		strings.Contains(upper, "TRACEBACK"),
		strings.Contains(upper, "EXCEPTION"):
		return slog.LevelError
	case strings.Contains(upper, "WARNING"),
		strings.Contains(upper, " WARN "):
		return slog.LevelWarn
	case strings.Contains(upper, " INFO "),
		strings.Contains(upper, "INFO:"),
		strings.Contains(upper, " DEBUG "):
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

// lineRing keeps the most recent lines up to a fixed capacity.
type lineRing struct {
	mu    sync.Mutex
	lines []string
	size  int
}

func newLineRing(size int) *lineRing {
	return &lineRing{size: size}
}

func (r *lineRing) push(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lines) == r.size {
		copy(r.lines, r.lines[1:])
		r.lines = r.lines[:r.size-1]
	}
	r.lines = append(r.lines, line)
}

func (r *lineRing) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}
