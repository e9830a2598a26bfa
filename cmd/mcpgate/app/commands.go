// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the mcpgate command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/mcpgate/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "mcpgate",
	DisableAutoGenTag: true,
	Short:             "mcpgate runs MCP servers behind one local gateway",
	Long: `mcpgate (Model Context Protocol gateway) starts and supervises local and remote
MCP servers and exposes each of them, or a single discovery endpoint that searches
all of them, as a streamable HTTP endpoint on a loopback port.

Run "mcpgate serve" to start the gateway, then manage servers with "mcpgate server".`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the mcpgate CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the mcpgate configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newServerCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newDiscoveryCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true

	return rootCmd
}
