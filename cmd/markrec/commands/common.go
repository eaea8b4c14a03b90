// Package commands implements the markrec CLI subcommands.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/markrec/internal/app"
	"github.com/Sumatoshi-tech/markrec/pkg/config"
	"github.com/Sumatoshi-tech/markrec/pkg/observability"
)

// Global flag names.
const (
	flagConfig  = "config"
	flagVerbose = "verbose"
	flagQuiet   = "quiet"
	flagDir     = "dir"
)

// AddGlobalFlags registers the persistent flags every subcommand reads.
func AddGlobalFlags(root *cobra.Command) {
	root.PersistentFlags().String(flagConfig, "", "config file (default .markrec.yaml in . or $HOME)")
	root.PersistentFlags().BoolP(flagVerbose, "v", false, "verbose output")
	root.PersistentFlags().BoolP(flagQuiet, "q", false, "only log warnings and errors")
}

// loadConfig reads the config named by --config and applies --dir when the
// command defines it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if flag := cmd.Flags().Lookup(flagDir); flag != nil && flag.Changed {
		cfg.Output.Dir = flag.Value.String()
	}

	return cfg, nil
}

// buildApp loads the configuration and wires the runtime for mode.
func buildApp(cmd *cobra.Command, mode observability.AppMode, tune func(*config.Config)) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if tune != nil {
		tune(cfg)
	}

	verbose, err := cmd.Flags().GetBool(flagVerbose)
	if err != nil {
		return nil, err
	}

	quiet, err := cmd.Flags().GetBool(flagQuiet)
	if err != nil {
		return nil, err
	}

	a, err := app.New(app.Options{Config: cfg, Mode: mode, Verbose: verbose, Quiet: quiet})
	if err != nil {
		return nil, fmt.Errorf("start markrec: %w", err)
	}

	return a, nil
}

func closeApp(a *app.App) {
	err := a.Close(context.Background())
	if err != nil {
		a.Logger().Warn("shutdown failed", "error", err)
	}
}
