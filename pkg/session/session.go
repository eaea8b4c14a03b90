// Package session coordinates a recording: it picks the selected sources,
// anchors the clocks, drives a recorder, keeps the backup current and exports
// the result when the session ends or splits.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/markrec/pkg/backup"
	"github.com/Sumatoshi-tech/markrec/pkg/capture"
	"github.com/Sumatoshi-tech/markrec/pkg/clocksync"
	"github.com/Sumatoshi-tech/markrec/pkg/discovery"
	"github.com/Sumatoshi-tech/markrec/pkg/export"
	"github.com/Sumatoshi-tech/markrec/pkg/lock"
	"github.com/Sumatoshi-tech/markrec/pkg/markers"
	"github.com/Sumatoshi-tech/markrec/pkg/recorder"
	"github.com/Sumatoshi-tech/markrec/pkg/selection"
	"github.com/Sumatoshi-tech/markrec/pkg/statusfeed"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// DefaultBackupEvery is the sample interval between backups.
const DefaultBackupEvery = 10

// Sentinel errors.
var (
	// ErrNoSourcesSelected indicates the effective selection is empty.
	ErrNoSourcesSelected = errors.New("no sources selected")
	// ErrBusy indicates the operation needs an idle session.
	ErrBusy = errors.New("recording already in progress")
	// ErrNotRecording indicates the operation needs a running session.
	ErrNotRecording = errors.New("not recording")
)

// State is the recording state.
type State int32

// States.
const (
	Idle State = iota
	Starting
	Recording
	Stopping
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// CatalogSource supplies the current catalog. *discovery.Service satisfies it.
type CatalogSource interface {
	Catalog() discovery.Catalog
}

// Metrics observes session activity.
type Metrics interface {
	RecordSample(ctx context.Context, source string)
	RecordBackup(ctx context.Context, err error)
	RecordFallback(ctx context.Context, from, to string)
	RecordLate(ctx context.Context, count int64)
}

// Config holds the session tunables.
type Config struct {
	// OutputDir receives recordings, backups and sidecars. It is created on demand.
	OutputDir string
	// BackupEvery is the number of samples between backups.
	BackupEvery int
	// StartAttempts and StartDelay drive the external recorder retry.
	StartAttempts int
	StartDelay    time.Duration
	// Monitor tunes the external recorder health check.
	Monitor recorder.MonitorConfig
	// Capture tunes the per-source reader pool.
	Capture recorder.PerSourceConfig
}

// Options wires an Orchestrator to its collaborators. Catalog, Selection and
// Opener are required.
type Options struct {
	Config    Config
	Catalog   CatalogSource
	Selection *selection.Set
	Opener    stream.InletOpener
	// DeviceClock and WallClock are read back-to-back to anchor each session.
	DeviceClock stream.DeviceClock
	WallClock   clocksync.WallClock
	// External is tried first when set. Leave it nil when the binary is missing.
	External recorder.Recorder
	Exporter *export.Exporter
	Markers  *markers.Publisher
	Feed     *statusfeed.Feed
	Locker   lock.Locker
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Metrics  Metrics
}

// Status describes the orchestrator for displays and control surfaces.
type Status struct {
	State       string    `json:"state"`
	OutputPath  string    `json:"output_path,omitempty"`
	BackupPath  string    `json:"backup_path,omitempty"`
	Recorder    string    `json:"recorder,omitempty"`
	Generation  uint64    `json:"generation"`
	Samples     int       `json:"samples"`
	Sources     []string  `json:"sources,omitempty"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	LateSamples int64     `json:"late_samples"`
}

// active is one capture generation.
type active struct {
	outputPath string
	anchor     clocksync.Anchor
	buffer     *capture.Buffer
	backup     *backup.Writer
	sources    []stream.SourceDescriptor
}

// Orchestrator is the recording state machine. Its methods are safe for
// concurrent use; state-changing operations are serialized.
type Orchestrator struct {
	cfg       Config
	catalog   CatalogSource
	selection *selection.Set
	device    stream.DeviceClock
	wall      clocksync.WallClock
	external  recorder.Recorder
	perSource *recorder.PerSource
	exporter  *export.Exporter
	markers   *markers.Publisher
	feed      *statusfeed.Feed
	locker    lock.Locker
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   Metrics
	bus       *capture.Bus

	state atomic.Int32

	// opMu serializes Start, Stop, Split and fallback handling.
	opMu        sync.Mutex
	generation  uint64
	monitorID   uint64
	stopMonitor func()
	usedPaths   map[string]struct{}
	lateSeen    int64

	// mu guards the fields read by Status.
	mu      sync.RWMutex
	current *active
	rec     recorder.Recorder
}

// New creates an idle orchestrator.
func New(opts Options) *Orchestrator {
	cfg := opts.Config
	if cfg.BackupEvery <= 0 {
		cfg.BackupEvery = DefaultBackupEvery
	}

	if cfg.StartAttempts <= 0 {
		cfg.StartAttempts = recorder.DefaultStartAttempts
	}

	if cfg.StartDelay <= 0 {
		cfg.StartDelay = recorder.DefaultStartDelay
	}

	if cfg.Monitor == (recorder.MonitorConfig{}) {
		cfg.Monitor = recorder.DefaultMonitorConfig()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	exporter := opts.Exporter
	if exporter == nil {
		exporter = export.New(export.Options{Logger: logger, Tracer: tracer})
	}

	wall := opts.WallClock
	if wall == nil {
		wall = time.Now
	}

	bus := capture.NewBus(nil)

	return &Orchestrator{
		cfg:       cfg,
		catalog:   opts.Catalog,
		selection: opts.Selection,
		device:    opts.DeviceClock,
		wall:      wall,
		external:  opts.External,
		perSource: recorder.NewPerSource(opts.Opener, bus, cfg.Capture, logger),
		exporter:  exporter,
		markers:   opts.Markers,
		feed:      opts.Feed,
		locker:    opts.Locker,
		logger:    logger,
		tracer:    tracer,
		metrics:   opts.Metrics,
		bus:       bus,
		usedPaths: make(map[string]struct{}),
	}
}

// Open takes the single-instance lock.
func (o *Orchestrator) Open(ctx context.Context) error {
	if o.locker == nil {
		return nil
	}

	return o.locker.Acquire(ctx)
}

// Close stops a running session and releases the lock.
func (o *Orchestrator) Close(ctx context.Context) error {
	var errs []error

	if o.State() == Recording {
		_, err := o.Stop(ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if o.locker != nil {
		errs = append(errs, o.locker.Release())
	}

	return errors.Join(errs...)
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Status returns a snapshot of the orchestrator.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	status := Status{
		State:       o.State().String(),
		LateSamples: o.bus.Late(),
	}

	if o.rec != nil {
		status.Recorder = o.rec.Name()
	}

	if o.current != nil {
		status.OutputPath = o.current.outputPath
		status.BackupPath = o.current.backup.Path()
		status.Generation = o.current.buffer.Generation()
		status.Samples = o.current.buffer.Count()
		status.StartedAt = o.current.anchor.Wall

		for _, src := range o.current.sources {
			status.Sources = append(status.Sources, src.Key)
		}
	}

	return status
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

func (o *Orchestrator) info(msg string) {
	if o.feed != nil {
		o.feed.Info(msg)
	}
}

func (o *Orchestrator) warn(msg string) {
	if o.feed != nil {
		o.feed.Warn(msg)
	}
}

func (o *Orchestrator) mark(ctx context.Context, status, detail string) {
	if o.markers == nil {
		return
	}

	err := o.markers.Log(markers.StatusMessage(status, detail))
	if err != nil {
		o.logger.WarnContext(ctx, "could not publish status marker", "status", status, "error", err)
	}
}
