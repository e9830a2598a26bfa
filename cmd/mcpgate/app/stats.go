// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	v1 "github.com/stacklok/mcpgate/pkg/api/v1"
)

func newStatsCmd() *cobra.Command {
	var (
		format string
		reset  bool
	)

	cmd := &cobra.Command{
		Use:   "stats <id>",
		Short: "Show tool call statistics of a server",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return ValidateFormat(format)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := daemonClient(cmd.Context())
			if err != nil {
				return err
			}

			if reset {
				if err := c.ResetStats(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to reset stats: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset stats for %s\n", args[0])
				return nil
			}

			resp, err := c.Stats(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}
			if format == FormatJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			return printStats(cmd.OutOrStdout(), resp)
		},
	}

	AddFormatFlag(cmd, &format, "Output format (json or text)")
	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the statistics instead of showing them")

	return cmd
}

func printStats(out io.Writer, resp *v1.StatsResponse) error {
	if resp.ServerStats == nil || resp.TotalCalls == 0 {
		fmt.Fprintf(out, "No tool calls recorded for %s\n", resp.ServerID)
		return nil
	}

	fmt.Fprintf(out, "Calls: %d   Errors: %d   Average: %dms\n\n", resp.TotalCalls, resp.Errors, resp.AverageDurationMs)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TOOL\tCALLS\tERRORS\tAVG")
	tools := make([]string, 0, len(resp.Tools))
	for name := range resp.Tools {
		tools = append(tools, name)
	}
	slices.Sort(tools)
	for _, name := range tools {
		t := resp.Tools[name]
		var avg uint64
		if t.TotalCalls > 0 {
			avg = t.TotalDurationMs / t.TotalCalls
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%dms\n", name, t.TotalCalls, t.Errors, avg)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(resp.Clients) > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "CLIENT\tCALLS")
		clients := make([]string, 0, len(resp.Clients))
		for name := range resp.Clients {
			clients = append(clients, name)
		}
		slices.Sort(clients)
		for _, name := range clients {
			fmt.Fprintf(w, "%s\t%d\n", name, resp.Clients[name])
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if len(resp.RecentCalls) > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TIME\tTOOL\tCLIENT\tDURATION\tRESULT")
		for _, call := range resp.RecentCalls {
			result := "ok"
			if call.IsError {
				result = "error"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%s\n",
				time.Unix(call.Timestamp, 0).Format(time.DateTime), call.Tool, orDash(call.Client), call.DurationMs, result)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}
