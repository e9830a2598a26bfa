// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/mcpgate/pkg/api/client"
	"github.com/stacklok/mcpgate/pkg/daemon"
	"github.com/stacklok/mcpgate/pkg/lifecycle"
	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/process"
)

type serveFlags struct {
	port    int
	detach  bool
	metrics bool
}

func newServeCmd() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Long: `Start the gateway in the foreground.

The gateway reconnects every server that was connected when it last stopped,
then every enabled server, and publishes their endpoints for MCP clients.
Use --detach to run it in the background; its output then goes to the
mcpgate log file in the XDG state directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serveCmdFunc(cmd, flags)
		},
	}

	cmd.Flags().IntVarP(&flags.port, "port", "p", 0, "Port to listen on (defaults to the configured gateway port)")
	cmd.Flags().BoolVarP(&flags.detach, "detach", "d", false, "Run the gateway in the background")
	cmd.Flags().BoolVar(&flags.metrics, "metrics", false, "Expose Prometheus metrics at /metrics")

	return cmd
}

func serveCmdFunc(cmd *cobra.Command, flags *serveFlags) error {
	if info, err := process.ReadRuntimeInfo(); err == nil {
		if alive, _ := process.FindProcess(info.PID); alive {
			return fmt.Errorf("the gateway is already running (pid %d, port %d)", info.PID, info.Port)
		}
		logger.Debugw("removing stale runtime file", "pid", info.PID)
		if err := process.RemoveRuntimeInfo(); err != nil {
			logger.Warnf("Failed to remove stale runtime file: %v", err)
		}
	} else if !errors.Is(err, process.ErrNotRunning) {
		return fmt.Errorf("failed to read gateway runtime info: %w", err)
	}

	if flags.detach && !lifecycle.IsDetached() {
		return detachServe(cmd, flags)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(ctx, daemon.Options{
		ConfigPath: viper.GetString("config"),
		Port:       flags.port,
		Metrics:    flags.metrics,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warnf("Failed to close gateway: %v", err)
		}
	}()

	return d.Run(ctx)
}

// detachServe starts `serve` again in the background and waits for it to answer.
func detachServe(cmd *cobra.Command, flags *serveFlags) error {
	args := []string{"serve"}
	if flags.port != 0 {
		args = append(args, "--port", strconv.Itoa(flags.port))
	}
	if flags.metrics {
		args = append(args, "--metrics")
	}
	if path := viper.GetString("config"); path != "" {
		args = append(args, "--config", path)
	}
	if viper.GetBool("debug") {
		args = append(args, "--debug")
	}

	pid, err := lifecycle.RunDetached(args)
	if err != nil {
		return err
	}

	c, err := client.WaitForDaemon(cmd.Context(), daemonWaitTimeout)
	if err != nil {
		return fmt.Errorf("gateway started with pid %d but did not become ready: %w", pid, err)
	}
	status, err := c.Status(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Gateway started in the background (pid %d, port %d)\n", status.PID, status.Port)
	if logPath, err := lifecycle.LogFilePath(); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Logs: %s\n", logPath)
	}
	return nil
}
