package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/markrec/pkg/observability"
)

// NewStreamsCommand creates the streams command.
func NewStreamsCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:           "streams",
		Short:         "List the streams currently visible",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd, observability.ModeCLI, nil)
			if err != nil {
				return err
			}

			defer closeApp(a)

			change, err := a.Discovery.DiscoverOnce(cmd.Context(), timeout)
			if err != nil {
				return err
			}

			renderStreams(cmd.OutOrStdout(), change.Catalog.Descriptors())

			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "resolve timeout (default discovery.timeout)")

	return cmd
}
