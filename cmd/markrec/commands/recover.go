package commands

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/markrec/pkg/observability"
)

// NewRecoverCommand creates the recover command.
func NewRecoverCommand() *cobra.Command {
	var (
		assumeYes bool
		listOnly  bool
	)

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Restore recordings from leftover backups",
		Long: `Restore recordings from backups left by an interrupted run.

Each backup is exported next to it as <name>_recovered.xdf with its CSV
sidecar and then deleted. A backup that fails to export is kept.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd, observability.ModeCLI, nil)
			if err != nil {
				return err
			}

			defer closeApp(a)

			out := cmd.OutOrStdout()

			candidates, err := a.Recovery.Scan(a.Config.Output.Dir)
			if err != nil {
				return err
			}

			if len(candidates) == 0 {
				fmt.Fprintf(out, "No backups in %s\n", a.Config.Output.Dir)

				return nil
			}

			if listOnly {
				renderBackups(out, candidates)

				return nil
			}

			prompter := &terminalPrompter{in: bufio.NewReader(cmd.InOrStdin()), out: out, assumeYes: assumeYes}

			outcomes, err := a.Recovery.Recover(cmd.Context(), candidates, prompter)
			for _, outcome := range outcomes {
				if outcome.Skipped {
					fmt.Fprintf(out, "Skipped %s\n", outcome.Candidate.Path)

					continue
				}

				fmt.Fprintf(out, "Recovered %s -> %s (%d rows)\n",
					outcome.Candidate.Path, outcome.Target, outcome.Result.Rows)
			}

			return err
		},
	}

	cmd.Flags().String(flagDir, "", "directory to scan (overrides output.dir)")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "recover every backup to its suggested name")
	cmd.Flags().BoolVar(&listOnly, "list", false, "only list backups")

	return cmd
}
