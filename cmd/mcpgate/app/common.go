// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stacklok/mcpgate/pkg/api/client"
	"github.com/stacklok/mcpgate/pkg/process"
)

// errNotRunning is shown when a command needs the daemon and none answers.
var errNotRunning = errors.New("the mcpgate gateway is not running; start it with `mcpgate serve`")

// daemonClient returns a client for the running daemon, waiting briefly for
// one that is still starting.
var daemonClient = func(ctx context.Context) (*client.Client, error) {
	if _, err := process.ReadRuntimeInfo(); err != nil {
		if errors.Is(err, process.ErrNotRunning) {
			return nil, errNotRunning
		}
		return nil, fmt.Errorf("failed to read gateway runtime info: %w", err)
	}
	c, err := client.WaitForDaemon(ctx, daemonWaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w (%v)", errNotRunning, err)
	}
	return c, nil
}

// AddFormatFlag adds the --format flag to cmd.
func AddFormatFlag(cmd *cobra.Command, format *string, description string) {
	cmd.Flags().StringVar(format, "format", FormatText, description)
}

// ValidateFormat rejects anything but text and json.
func ValidateFormat(format string) error {
	switch format {
	case FormatText, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format %q: must be %q or %q", format, FormatText, FormatJSON)
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// parseKeyValues parses KEY=VALUE pairs as given to --env and --header.
func parseKeyValues(pairs []string, sep string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, sep)
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid value %q: expected KEY%sVALUE", p, sep)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

// orDash renders empty cells in tables.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
