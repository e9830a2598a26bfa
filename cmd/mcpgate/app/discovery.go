// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDiscoveryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discovery",
		Short: "Manage the discovery endpoint",
		Long: `The discovery endpoint is a single MCP server that lets a client search the
tools of every connected server and call them, instead of configuring each
server separately.`,
	}

	cmd.AddCommand(newDiscoverySetCmd("on", true))
	cmd.AddCommand(newDiscoverySetCmd("off", false))
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether the discovery endpoint is enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := daemonClient(cmd.Context())
			if err != nil {
				return err
			}
			enabled, err := c.Discovery(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get discovery status: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Discovery is %s\n", onOff(enabled))
			return nil
		},
	})

	return cmd
}

func newDiscoverySetCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Turn the discovery endpoint %s", use),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := daemonClient(cmd.Context())
			if err != nil {
				return err
			}
			got, err := c.SetDiscovery(cmd.Context(), enabled)
			if err != nil {
				return fmt.Errorf("failed to update discovery: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Discovery is %s\n", onOff(got))
			return nil
		},
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
