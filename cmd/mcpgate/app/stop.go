// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/process"
)

// stopGracePeriod is how long the daemon gets to disconnect its servers.
const stopGracePeriod = 10 * time.Second

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running gateway",
		Long: `Stop the gateway started with "mcpgate serve --detach". Connected servers are
shut down and the published endpoints are withdrawn.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := process.ReadRuntimeInfo()
			if err != nil {
				if errors.Is(err, process.ErrNotRunning) {
					fmt.Fprintln(cmd.OutOrStdout(), "The gateway is not running")
					return nil
				}
				return fmt.Errorf("failed to read gateway runtime info: %w", err)
			}

			if err := process.Terminate(info.PID, stopGracePeriod); err != nil {
				return fmt.Errorf("failed to stop gateway (pid %d): %w", info.PID, err)
			}

			// a killed daemon cannot clean up after itself
			if err := process.RemoveRuntimeInfo(); err != nil {
				logger.Debugw("failed to remove runtime file", "error", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Gateway stopped (pid %d)\n", info.PID)
			return nil
		},
	}
}
