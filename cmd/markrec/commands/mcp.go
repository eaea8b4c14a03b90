package commands

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/markrec/internal/app"
	"github.com/Sumatoshi-tech/markrec/pkg/config"
	"github.com/Sumatoshi-tech/markrec/pkg/observability"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var autoStart bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The server exposes recording control as tools that AI agents can discover
and invoke:
  - recorder_*: status, start, auto-start, stop and split
  - streams_*: list, refresh and select streams
  - marker_send, event_send: publish text markers and events
  - status_log: recent status lines

Logs go to stderr as JSON; stdout carries the protocol.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd, observability.ModeMCP, func(cfg *config.Config) {
				cfg.Session.AutoStart = autoStart
			})
			if err != nil {
				return err
			}

			defer closeApp(a)

			srv := a.MCPServer()

			return a.Run(cmd.Context(), app.RunOptions{
				Output:     io.Discard,
				Foreground: srv.Run,
			})
		},
	}

	cmd.Flags().BoolVar(&autoStart, "auto-start", false, "start recording as soon as the server is up")

	return cmd
}
