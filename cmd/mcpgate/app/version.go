// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stacklok/mcpgate/pkg/versions"
)

// newVersionCmd creates a new version command
func newVersionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the version of mcpgate",
		Long:  `Display detailed version information about mcpgate, including version number, git commit, build date, and Go version.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), info)
			}
			printVersionInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version information as JSON")

	return cmd
}

func printVersionInfo(out io.Writer, info versions.VersionInfo) {
	fmt.Fprintf(out, "mcpgate %s\n", info.Version)
	fmt.Fprintf(out, "Commit: %s\n", info.Commit)
	fmt.Fprintf(out, "Built: %s\n", info.BuildDate)
	fmt.Fprintf(out, "Go version: %s\n", info.GoVersion)
	fmt.Fprintf(out, "Platform: %s\n", info.Platform)
}
