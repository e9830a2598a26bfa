// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stacklok/mcpgate/pkg/events"
)

func newLogsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print buffered server log lines",
		Long: `Print the server log lines, errors and sign-in requests buffered by the
gateway since the last call. Entries are removed once printed.`,
		Args: cobra.NoArgs,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return ValidateFormat(format)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := daemonClient(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := c.Logs(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get logs: %w", err)
			}

			if format == FormatJSON {
				if entries == nil {
					entries = []events.LogEntry{}
				}
				return printJSON(cmd.OutOrStdout(), entries)
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-5s [%s] %s\n",
					e.Time.Local().Format(time.TimeOnly), e.Level, e.ServerID, e.Message)
			}
			return nil
		},
	}
	AddFormatFlag(cmd, &format, "Output format (json or text)")

	return cmd
}
