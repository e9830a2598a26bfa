// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	v1 "github.com/stacklok/mcpgate/pkg/api/v1"
	"github.com/stacklok/mcpgate/pkg/config"
	"github.com/stacklok/mcpgate/pkg/state"
)

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "server",
		Aliases: []string{"servers"},
		Short:   "Manage MCP servers behind the gateway",
	}

	cmd.AddCommand(newServerListCmd())
	cmd.AddCommand(newServerAddCmd())
	cmd.AddCommand(newServerRemoveCmd())
	cmd.AddCommand(newServerConnectCmd())
	cmd.AddCommand(newServerDisconnectCmd())
	cmd.AddCommand(newServerToolsCmd())

	return cmd
}

func newServerListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List configured servers and their status",
		Args:    cobra.NoArgs,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return ValidateFormat(format)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := daemonClient(cmd.Context())
			if err != nil {
				return err
			}
			servers, err := c.Servers(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list servers: %w", err)
			}

			if format == FormatJSON {
				if servers == nil {
					servers = []state.BackendView{}
				}
				return printJSON(cmd.OutOrStdout(), servers)
			}
			if len(servers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No servers configured")
				return nil
			}
			return printServerTable(cmd.OutOrStdout(), servers)
		},
	}
	AddFormatFlag(cmd, &format, "Output format (json or text)")

	return cmd
}

func printServerTable(out io.Writer, servers []state.BackendView) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTRANSPORT\tSTATUS\tTOOLS\tTARGET")
	for _, s := range servers {
		status := string(s.Status)
		if s.StatusMessage != "" {
			status = fmt.Sprintf("%s (%s)", status, s.StatusMessage)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.Name, s.Transport, status, s.ToolCount, orDash(serverTarget(s.BackendConfig)))
	}
	return w.Flush()
}

func serverTarget(b config.BackendConfig) string {
	if b.Transport == config.TransportHTTP {
		return b.URL
	}
	return strings.TrimSpace(b.Command + " " + strings.Join(b.Args, " "))
}

type serverAddFlags struct {
	id        string
	transport string
	command   string
	args      []string
	env       []string
	url       string
	httpMode  string
	headers   []string
	tags      []string
	enabled   bool
}

func newServerAddCmd() *cobra.Command {
	flags := &serverAddFlags{}

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a server",
		Long: `Add a stdio or HTTP server to the gateway configuration.

Examples:
  mcpgate server add filesystem --command npx --arg -y --arg @modelcontextprotocol/server-filesystem --arg /tmp
  mcpgate server add linear --transport http --url https://mcp.linear.app/mcp`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(args[0])
			if err != nil {
				return err
			}
			c, err := daemonClient(cmd.Context())
			if err != nil {
				return err
			}
			backend, err := c.AddServer(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("failed to add server: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added server %s (%s)\n", backend.Name, backend.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.id, "id", "", "Server id (generated when empty)")
	cmd.Flags().StringVarP(&flags.transport, "transport", "t", string(config.TransportStdio), "Transport (stdio or http)")
	cmd.Flags().StringVar(&flags.command, "command", "", "Executable to launch for stdio servers")
	cmd.Flags().StringArrayVar(&flags.args, "arg", nil, "Argument for the command (repeatable)")
	cmd.Flags().StringArrayVarP(&flags.env, "env", "e", nil, "Environment variable KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&flags.url, "url", "", "Endpoint URL for http servers")
	cmd.Flags().StringVar(&flags.httpMode, "http-mode", string(config.HTTPModeAuto), "HTTP mode (auto, streamable or sse)")
	cmd.Flags().StringArrayVar(&flags.headers, "header", nil, "HTTP header Name: Value (repeatable)")
	cmd.Flags().StringSliceVar(&flags.tags, "tag", nil, "Tag for the server (repeatable)")
	cmd.Flags().BoolVar(&flags.enabled, "enabled", false, "Connect the server whenever the gateway starts")

	return cmd
}

// request builds the create request. Field validation is left to the daemon.
func (f *serverAddFlags) request(name string) (v1.CreateServerRequest, error) {
	env, err := parseKeyValues(f.env, "=")
	if err != nil {
		return v1.CreateServerRequest{}, fmt.Errorf("invalid --env: %w", err)
	}
	headers, err := parseKeyValues(f.headers, ":")
	if err != nil {
		return v1.CreateServerRequest{}, fmt.Errorf("invalid --header: %w", err)
	}

	req := v1.CreateServerRequest{
		ID:        f.id,
		Name:      name,
		Enabled:   f.enabled,
		Transport: config.TransportType(f.transport),
		Tags:      f.tags,
	}
	switch req.Transport {
	case config.TransportStdio:
		req.Command = f.command
		req.Args = f.args
		req.Env = env
	case config.TransportHTTP:
		req.URL = f.url
		req.HTTPMode = f.httpMode
		req.Headers = headers
	default:
		return v1.CreateServerRequest{}, fmt.Errorf("invalid transport %q: must be %q or %q",
			f.transport, config.TransportStdio, config.TransportHTTP)
	}
	return req, nil
}

func newServerRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Disconnect and remove a server",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := daemonClient(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.RemoveServer(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to remove server: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed server %s\n", args[0])
			return nil
		},
	}
}

func newServerConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <id>",
		Short: "Connect a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := daemonClient(cmd.Context())
			if err != nil {
				return err
			}
			view, err := c.Connect(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to connect server: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server %s is %s with %d tools\n", view.Name, view.Status, view.ToolCount)
			return nil
		},
	}
}

func newServerDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <id>",
		Short: "Disconnect a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := daemonClient(cmd.Context())
			if err != nil {
				return err
			}
			view, err := c.Disconnect(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to disconnect server: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server %s is %s\n", view.Name, view.Status)
			return nil
		},
	}
}

func newServerToolsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "tools <id>",
		Short: "List the tools of a connected server",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return ValidateFormat(format)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := daemonClient(cmd.Context())
			if err != nil {
				return err
			}
			tools, err := c.Tools(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to list tools: %w", err)
			}

			if format == FormatJSON {
				if tools == nil {
					tools = []state.ToolDescriptor{}
				}
				return printJSON(cmd.OutOrStdout(), tools)
			}
			if len(tools) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tools (is the server connected?)")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESCRIPTION")
			for _, t := range tools {
				fmt.Fprintf(w, "%s\t%s\n", t.Name, orDash(firstLine(t.Description)))
			}
			return w.Flush()
		},
	}
	AddFormatFlag(cmd, &format, "Output format (json or text)")

	return cmd
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
