package commands

import (
	"bufio"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/markrec/internal/app"
	"github.com/Sumatoshi-tech/markrec/pkg/config"
	"github.com/Sumatoshi-tech/markrec/pkg/observability"
)

// NewRecordCommand creates the record command.
func NewRecordCommand() *cobra.Command {
	var (
		assumeYes   bool
		noAutoStart bool
		exitOnEOF   bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Run the recorder",
		Long: `Run the recorder until interrupted.

At startup, backups left by an interrupted run are offered for recovery, the
stream catalog is refreshed and, unless disabled, recording starts with
markrec's own marker streams selected.

Lines typed on stdin are sent as text markers. Lines starting with "/" are
commands; type /help for the list.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd, observability.ModeRecord, func(cfg *config.Config) {
				if noAutoStart {
					cfg.Session.AutoStart = false
				}

				if metricsAddr != "" {
					cfg.Metrics.Addr = metricsAddr
				}
			})
			if err != nil {
				return err
			}

			defer closeApp(a)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stdin := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			return a.Run(ctx, app.RunOptions{
				Prompter:  &terminalPrompter{in: stdin, out: out, assumeYes: assumeYes},
				Input:     stdin,
				ExitOnEOF: exitOnEOF,
				Output:    out,
			})
		},
	}

	cmd.Flags().String(flagDir, "", "output directory (overrides output.dir)")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "recover leftover backups without asking")
	cmd.Flags().BoolVar(&noAutoStart, "no-auto-start", false, "wait for /start instead of recording immediately")
	cmd.Flags().BoolVar(&exitOnEOF, "exit-on-eof", false, "stop recording and exit when stdin is closed")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics, /healthz and /readyz on this address")

	return cmd
}
