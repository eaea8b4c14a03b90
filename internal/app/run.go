package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/Sumatoshi-tech/markrec/pkg/recovery"
	"github.com/Sumatoshi-tech/markrec/pkg/statusfeed"
)

// shutdownTimeout bounds the final stop, export and server shutdown.
const shutdownTimeout = 30 * time.Second

// RunOptions configures Run.
type RunOptions struct {
	// Prompter handles backups found at startup. Nil leaves them on disk.
	Prompter recovery.Prompter
	// Input carries console lines: commands starting with "/" or marker text.
	// Nil disables the console.
	Input io.Reader
	// ExitOnEOF ends the run once Input is exhausted.
	ExitOnEOF bool
	// Output receives status lines. Nil discards them.
	Output io.Writer
	// Foreground runs alongside the daemon; the run ends when it returns.
	Foreground func(ctx context.Context) error
}

// Run takes the instance lock, recovers leftover backups, starts discovery
// and optionally auto-starts a recording. It returns once ctx is done, the
// foreground task returns or the console reaches EOF with ExitOnEOF set.
// Any running session is stopped and exported before Run returns.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	err := a.Session.Open(ctx)
	if err != nil {
		return err
	}

	out := opts.Output
	if out == nil {
		out = io.Discard
	}

	stopPrinter := a.printFeed(out)

	a.recoverBackups(ctx, opts.Prompter)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	_, err = a.Discovery.DiscoverOnce(runCtx, a.Config.Discovery.Timeout)
	if err != nil {
		a.logger.WarnContext(ctx, "initial discovery failed", "error", err)
		a.Feed.Warn("Initial stream discovery failed")
	}

	err = a.Discovery.StartContinuous(runCtx, a.Config.Discovery.Interval, nil)
	if err != nil {
		a.logger.WarnContext(ctx, "continuous discovery not started", "error", err)
	}

	shutdownHTTP, err := a.serveHTTP(runCtx)
	if err != nil {
		shutdownErr := a.shutdown(ctx, func(context.Context) error { return nil })
		stopPrinter()

		return errors.Join(err, shutdownErr)
	}

	if a.Config.Session.AutoStart {
		_, err = a.Session.AutoStart(runCtx)
		if err != nil {
			a.logger.WarnContext(ctx, "auto-start failed", "error", err)
			a.Feed.Warn("Auto-start failed: " + err.Error())
		}
	}

	runErr := a.wait(runCtx, opts)

	cancel()

	shutdownErr := a.shutdown(ctx, shutdownHTTP)
	stopPrinter()

	return errors.Join(runErr, shutdownErr)
}

func (a *App) wait(ctx context.Context, opts RunOptions) error {
	var eof chan struct{}

	if opts.Input != nil {
		done := make(chan struct{})

		go func() {
			defer close(done)

			a.console(ctx, opts.Input)
		}()

		if opts.ExitOnEOF {
			eof = done
		}
	}

	fgDone := make(chan error, 1)

	if opts.Foreground != nil {
		go func() {
			fgDone <- opts.Foreground(ctx)
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case <-eof:
		return nil
	case err := <-fgDone:
		return err
	}
}

// shutdown stops and exports any running session, releases the lock and
// stops discovery and the HTTP server.
func (a *App) shutdown(ctx context.Context, shutdownHTTP func(context.Context) error) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	sessErr := a.Session.Close(stopCtx)
	if sessErr != nil {
		a.logger.ErrorContext(stopCtx, "session close failed", "error", sessErr)
	}

	a.Discovery.Stop()

	return errors.Join(sessErr, shutdownHTTP(stopCtx))
}

// recoverBackups scans the output directory and hands any backups to
// prompter. Failures are reported and never stop the daemon.
func (a *App) recoverBackups(ctx context.Context, prompter recovery.Prompter) {
	candidates, err := a.Recovery.Scan(a.Config.Output.Dir)
	if err != nil {
		a.logger.WarnContext(ctx, "backup scan failed", "error", err)

		return
	}

	if len(candidates) == 0 {
		return
	}

	if prompter == nil {
		a.Feed.Warn(fmt.Sprintf("%d unrecovered backup(s) in %s; run 'markrec recover'",
			len(candidates), a.Config.Output.Dir))

		return
	}

	outcomes, err := a.Recovery.Recover(ctx, candidates, prompter)
	for _, outcome := range outcomes {
		if !outcome.Skipped {
			a.Feed.Info("Recovered backup to " + filepath.Base(outcome.Target))
		}
	}

	if err != nil {
		a.Feed.Error("Some backups could not be recovered: " + err.Error())
	}
}

// printFeed copies status lines to out until the returned function is called.
func (a *App) printFeed(out io.Writer) func() {
	lines, cancel := a.Feed.Subscribe()

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		for line := range lines {
			printLine(out, line)
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

var (
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed, color.Bold)
	infoColor  = color.New(color.FgGreen)
)

func printLine(out io.Writer, line statusfeed.Line) {
	stamp := line.Time.Format(time.TimeOnly)

	switch line.Level {
	case statusfeed.LevelWarn:
		warnColor.Fprintf(out, "%s %s\n", stamp, line.Message)
	case statusfeed.LevelError:
		errorColor.Fprintf(out, "%s %s\n", stamp, line.Message)
	default:
		infoColor.Fprintf(out, "%s %s\n", stamp, line.Message)
	}
}
