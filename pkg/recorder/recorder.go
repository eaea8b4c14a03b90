// Package recorder provides the recording capability used by a session: an
// external recorder process and the in-process per-source reader pool.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// Sentinel errors.
var (
	// ErrRecorderStart indicates a recorder could not be started.
	ErrRecorderStart = errors.New("recorder start failed")
	// ErrRecorderRuntime indicates a running recorder failed or stopped unexpectedly.
	ErrRecorderRuntime = errors.New("recorder runtime failure")
	// ErrUnavailable indicates the recorder cannot run on this host.
	ErrUnavailable = errors.New("recorder unavailable")
)

// Retry and monitor defaults.
const (
	DefaultStartAttempts   = 3
	DefaultStartDelay      = time.Second
	DefaultMonitorInterval = 100 * time.Millisecond
	DefaultMonitorBackoff  = 500 * time.Millisecond
	DefaultMonitorErrors   = 10
)

// Recorder captures the selected sources into outputPath.
type Recorder interface {
	// Name identifies the implementation in logs and status.
	Name() string
	// Start begins recording sources. It returns once capture is underway.
	Start(ctx context.Context, outputPath string, sources []stream.SourceDescriptor) error
	// Split continues recording the same sources into a new output path.
	Split(ctx context.Context, outputPath string, sources []stream.SourceDescriptor) error
	// Stop ends recording with a bounded wait.
	Stop(ctx context.Context) error
	// IsRecording reports whether capture is still running.
	IsRecording() (bool, error)
}

// StartWithRetry calls rec.Start up to attempts times, sleeping delay between tries.
func StartWithRetry(
	ctx context.Context, rec Recorder, outputPath string, sources []stream.SourceDescriptor,
	attempts int, delay time.Duration, logger *slog.Logger,
) error {
	if attempts <= 0 {
		attempts = DefaultStartAttempts
	}

	if logger == nil {
		logger = slog.Default()
	}

	var errs []error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := rec.Start(ctx, outputPath, sources)
		if err == nil {
			return nil
		}

		errs = append(errs, err)
		logger.WarnContext(ctx, "recorder start attempt failed",
			"recorder", rec.Name(), "attempt", attempt, "of", attempts, "error", err)

		if errors.Is(err, ErrUnavailable) || attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrRecorderStart, rec.Name(), ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%w: %s: %w", ErrRecorderStart, rec.Name(), errors.Join(errs...))
}

// MonitorConfig tunes Monitor.
type MonitorConfig struct {
	Interval     time.Duration
	ErrorBackoff time.Duration
	MaxErrors    int
}

// DefaultMonitorConfig returns the standard monitor settings.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:     DefaultMonitorInterval,
		ErrorBackoff: DefaultMonitorBackoff,
		MaxErrors:    DefaultMonitorErrors,
	}
}

// Monitor polls rec until the returned stop function is called. onFailure is
// called at most once, when rec stops unexpectedly or reports MaxErrors
// consecutive errors. onFailure runs on the monitor goroutine and must not
// wait for stop.
func Monitor(ctx context.Context, rec Recorder, cfg MonitorConfig, onFailure func(error)) (stop func()) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultMonitorInterval
	}

	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = DefaultMonitorErrors
	}

	monitorCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		runMonitor(monitorCtx, rec, cfg, onFailure)
	}()

	return func() {
		cancel()
		<-done
	}
}

func runMonitor(ctx context.Context, rec Recorder, cfg MonitorConfig, onFailure func(error)) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	consecutive := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		running, err := rec.IsRecording()

		switch {
		case err != nil:
			consecutive++
			if consecutive >= cfg.MaxErrors {
				onFailure(fmt.Errorf("%w: %s: %d consecutive monitor errors: %w", ErrRecorderRuntime, rec.Name(), consecutive, err))

				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.ErrorBackoff):
			}
		case !running:
			if ctx.Err() != nil {
				return
			}

			onFailure(fmt.Errorf("%w: %s stopped unexpectedly", ErrRecorderRuntime, rec.Name()))

			return
		default:
			consecutive = 0
		}
	}
}
