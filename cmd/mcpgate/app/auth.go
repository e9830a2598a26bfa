// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth <id>",
		Short: "Sign in to an HTTP server that requires OAuth",
		Long: `Run the OAuth authorization flow for an HTTP server.

The gateway opens the provider's sign-in page in your browser and waits for the
redirect on a loopback port. The resulting tokens are kept in the OS keyring and
the server is reconnected with them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := daemonClient(cmd.Context())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), authorizeTimeout)
			defer cancel()

			fmt.Fprintln(cmd.OutOrStdout(), "Complete the sign-in in your browser...")
			view, err := c.Authorize(ctx, args[0])
			if err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in to %s; server is %s with %d tools\n", view.Name, view.Status, view.ToolCount)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Forget the stored OAuth tokens of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := daemonClient(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.RevokeAuth(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to revoke tokens: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed stored tokens for %s\n", args[0])
			return nil
		},
	})

	return cmd
}
