// Package main provides the entry point for the markrec CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/markrec/cmd/markrec/commands"
	"github.com/Sumatoshi-tech/markrec/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "markrec",
		Short: "markrec - marker stream recording session manager",
		Long: `markrec discovers marker and data streams, records the selected ones into
timestamped files and keeps crash-safe backups while recording.

Commands:
  record    Run the recorder with console marker entry
  streams   List the streams currently visible
  recover   Restore recordings from leftover backups
  mcp       Serve recording control over MCP stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	commands.AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(commands.NewRecordCommand())
	rootCmd.AddCommand(commands.NewStreamsCommand())
	rootCmd.AddCommand(commands.NewRecoverCommand())
	rootCmd.AddCommand(commands.NewMCPCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "markrec %s\n", version.String())
		},
	}
}
