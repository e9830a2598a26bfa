// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	v1 "github.com/stacklok/mcpgate/pkg/api/v1"
)

func newStatusCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the gateway is running",
		Args:  cobra.NoArgs,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return ValidateFormat(format)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := daemonClient(cmd.Context())
			if err != nil {
				if format == FormatJSON {
					return printJSON(cmd.OutOrStdout(), v1.GatewayStatus{})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "The gateway is not running")
				return nil
			}
			status, err := c.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get gateway status: %w", err)
			}
			if format == FormatJSON {
				return printJSON(cmd.OutOrStdout(), status)
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	AddFormatFlag(cmd, &format, "Output format (json or text)")

	return cmd
}

func printStatus(out io.Writer, s *v1.GatewayStatus) {
	fmt.Fprintf(out, "Gateway %s running on 127.0.0.1:%d (pid %d)\n", s.Version, s.Port, s.PID)
	fmt.Fprintf(out, "Started: %s\n", s.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "Servers: %d configured, %d connected\n", s.Servers, s.Connected)
	fmt.Fprintf(out, "Discovery: %s\n", onOff(s.Discovery))
}
