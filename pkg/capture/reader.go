package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// Reader defaults.
const (
	DefaultPullTimeout = time.Second
	DefaultMaxErrors   = 3
)

// Sentinel errors.
var (
	// ErrSourceUnavailable indicates a reader gave up on its source.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrJoinTimeout indicates readers were still running when the join deadline passed.
	ErrJoinTimeout = errors.New("readers did not stop in time")
)

// Reader pulls samples from one inlet and delivers them to a Bus.
type Reader struct {
	Source stream.SourceDescriptor
	Inlet  stream.Inlet
	Bus    *Bus
	Logger *slog.Logger

	// PullTimeout bounds each pull. Zero uses DefaultPullTimeout.
	PullTimeout time.Duration
	// MaxErrors is the number of consecutive pull errors tolerated. Zero uses DefaultMaxErrors.
	MaxErrors int
}

// Run pulls until ctx is canceled or the source fails MaxErrors times in a row.
// The inlet is closed on return.
func (r *Reader) Run(ctx context.Context) error {
	defer r.Inlet.Close()

	timeout := r.PullTimeout
	if timeout <= 0 {
		timeout = DefaultPullTimeout
	}

	maxErrors := r.MaxErrors
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}

	consecutive := 0

	for ctx.Err() == nil {
		sample, err := r.Inlet.Pull(timeout)

		// A pull that outlived the session must not reach the next one's buffer.
		if ctx.Err() != nil {
			return nil
		}

		switch {
		case err == nil:
			consecutive = 0

			if sample.SourceKey == "" {
				sample.SourceKey = r.Source.Key
			}

			r.Bus.Deliver(sample)
		case errors.Is(err, stream.ErrTimeout):
			consecutive = 0
		default:
			consecutive++
			r.logger().WarnContext(ctx, "pull failed", "source", r.Source.Key, "attempt", consecutive, "error", err)

			if consecutive >= maxErrors {
				return fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, r.Source.Key, err)
			}
		}
	}

	return nil
}

func (r *Reader) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}

	return slog.Default()
}

// Group is a set of running readers.
type Group struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	mu   sync.Mutex
	errs []error
}

// RunReaders starts one goroutine per reader. A reader that gives up is logged
// and leaves the others running.
func RunReaders(ctx context.Context, readers []*Reader, logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}

	runCtx, cancel := context.WithCancel(ctx)

	group := &Group{cancel: cancel, done: make(chan struct{})}

	for _, reader := range readers {
		group.wg.Add(1)

		go func() {
			defer group.wg.Done()

			err := reader.Run(runCtx)
			if err != nil {
				logger.ErrorContext(runCtx, "reader stopped", "source", reader.Source.Key, "error", err)
				group.record(err)
			}
		}()
	}

	go func() {
		group.wg.Wait()
		close(group.done)
	}()

	return group
}

// Stop cancels every reader and waits at most timeout for them to return.
func (g *Group) Stop(timeout time.Duration) error {
	g.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-g.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrJoinTimeout, timeout)
	}
}

// Done is closed once every reader has returned.
func (g *Group) Done() <-chan struct{} {
	return g.done
}

// Err joins the errors of readers that gave up.
func (g *Group) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return errors.Join(g.errs...)
}

func (g *Group) record(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.errs = append(g.errs, err)
}
