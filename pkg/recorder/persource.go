package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/markrec/pkg/capture"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// DefaultJoinTimeout bounds how long Stop waits for readers.
const DefaultJoinTimeout = 2 * time.Second

// PerSourceConfig tunes the reader pool.
type PerSourceConfig struct {
	PullTimeout time.Duration
	MaxErrors   int
	JoinTimeout time.Duration
}

// PerSource records by running one capture.Reader per source into a shared bus.
// The bus decides which session buffer receives each sample, so Split needs no
// reader restart.
type PerSource struct {
	opener stream.InletOpener
	bus    *capture.Bus
	cfg    PerSourceConfig
	logger *slog.Logger

	mu    sync.Mutex
	group *capture.Group
}

// NewPerSource creates a per-source recorder delivering into bus.
func NewPerSource(opener stream.InletOpener, bus *capture.Bus, cfg PerSourceConfig, logger *slog.Logger) *PerSource {
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PerSource{opener: opener, bus: bus, cfg: cfg, logger: logger}
}

// Name implements Recorder.
func (p *PerSource) Name() string {
	return "per-source"
}

// Start implements Recorder. Sources whose inlet cannot be opened are skipped;
// Start fails only when none can be opened.
func (p *PerSource) Start(ctx context.Context, _ string, sources []stream.SourceDescriptor) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.group != nil {
		return fmt.Errorf("%w: already recording", ErrRecorderStart)
	}

	readers := make([]*capture.Reader, 0, len(sources))

	var openErrs []error

	for _, src := range sources {
		inlet, err := p.opener.Open(src)
		if err != nil {
			p.logger.WarnContext(ctx, "could not open inlet", "source", src.Key, "error", err)
			openErrs = append(openErrs, fmt.Errorf("%s: %w", src.Key, err))

			continue
		}

		readers = append(readers, &capture.Reader{
			Source:      src,
			Inlet:       inlet,
			Bus:         p.bus,
			Logger:      p.logger,
			PullTimeout: p.cfg.PullTimeout,
			MaxErrors:   p.cfg.MaxErrors,
		})
	}

	if len(readers) == 0 {
		return fmt.Errorf("%w: no inlet could be opened: %w", ErrRecorderStart, errors.Join(openErrs...))
	}

	p.group = capture.RunReaders(context.WithoutCancel(ctx), readers, p.logger)

	p.logger.InfoContext(ctx, "per-source capture started", "readers", len(readers))

	return nil
}

// Split implements Recorder. Readers keep running; the session moves the bus
// to the next buffer.
func (p *PerSource) Split(context.Context, string, []stream.SourceDescriptor) error {
	return nil
}

// Stop implements Recorder. When readers overrun JoinTimeout the overrun is
// reported and they are abandoned; late samples find no buffer on the bus.
func (p *PerSource) Stop(ctx context.Context) error {
	p.mu.Lock()
	group := p.group
	p.group = nil
	p.mu.Unlock()

	if group == nil {
		return nil
	}

	err := group.Stop(p.cfg.JoinTimeout)
	if err != nil {
		p.logger.WarnContext(ctx, "readers overran join timeout", "error", err)

		return err
	}

	return nil
}

// IsRecording implements Recorder. It turns false once every reader has given up.
func (p *PerSource) IsRecording() (bool, error) {
	p.mu.Lock()
	group := p.group
	p.mu.Unlock()

	if group == nil {
		return false, nil
	}

	select {
	case <-group.Done():
		return false, group.Err()
	default:
		return true, nil
	}
}
