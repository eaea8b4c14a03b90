// Package app builds the markrec runtime from configuration and runs the
// recording daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Sumatoshi-tech/markrec/pkg/config"
	"github.com/Sumatoshi-tech/markrec/pkg/discovery"
	"github.com/Sumatoshi-tech/markrec/pkg/export"
	"github.com/Sumatoshi-tech/markrec/pkg/lock"
	"github.com/Sumatoshi-tech/markrec/pkg/markers"
	"github.com/Sumatoshi-tech/markrec/pkg/mcp"
	"github.com/Sumatoshi-tech/markrec/pkg/observability"
	"github.com/Sumatoshi-tech/markrec/pkg/recorder"
	"github.com/Sumatoshi-tech/markrec/pkg/recovery"
	"github.com/Sumatoshi-tech/markrec/pkg/selection"
	"github.com/Sumatoshi-tech/markrec/pkg/session"
	"github.com/Sumatoshi-tech/markrec/pkg/statusfeed"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
	"github.com/Sumatoshi-tech/markrec/pkg/stream/loopback"
	"github.com/Sumatoshi-tech/markrec/pkg/version"
)

// ErrNoConfig indicates New was called without a configuration.
var ErrNoConfig = errors.New("app: configuration is required")

// Options configures New.
type Options struct {
	Config *config.Config
	Mode   observability.AppMode
	// Verbose and Quiet override the configured log level.
	Verbose bool
	Quiet   bool
	// Network is the streaming layer. Nil creates a fresh in-process network.
	Network *loopback.Network
}

// App holds every long-lived component of a markrec process.
type App struct {
	Config    *config.Config
	Network   *loopback.Network
	Discovery *discovery.Service
	Selection *selection.Set
	Markers   *markers.Publisher
	Feed      *statusfeed.Feed
	Exporter  *export.Exporter
	Session   *session.Orchestrator
	Recovery  *recovery.Manager

	providers observability.Providers
	metrics   *observability.RecorderMetrics
	red       *observability.REDMetrics
	logger    *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New wires the components. It does not start discovery, take the lock or
// touch the output directory; Run does that.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, ErrNoConfig
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}

	switch {
	case opts.Verbose:
		level = slog.LevelDebug
	case opts.Quiet:
		level = slog.LevelWarn
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	mode := opts.Mode
	if mode == "" {
		mode = observability.ModeCLI
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.OTel.Environment
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.OTel.Endpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.OTel.Headers)
	obsCfg.OTLPInsecure = cfg.OTel.Insecure
	obsCfg.Prometheus = cfg.Metrics.Addr != ""
	obsCfg.DebugTrace = cfg.OTel.DebugTrace
	obsCfg.SampleRatio = cfg.OTel.SampleRatio
	obsCfg.TraceVerbose = cfg.OTel.TraceVerbose
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.Log.JSON || mode == observability.ModeMCP

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	recMetrics, err := observability.NewRecorderMetrics(providers.Meter)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("recorder metrics: %w", err), providers.Shutdown(context.Background()))
	}

	red, err := observability.NewREDMetrics(providers.Meter)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("red metrics: %w", err), providers.Shutdown(context.Background()))
	}

	logger := providers.Logger

	network := opts.Network
	if network == nil {
		network = loopback.NewNetwork()
	}

	a := &App{
		Config:    cfg,
		Network:   network,
		Selection: selection.New(),
		Feed:      statusfeed.New(statusfeed.DefaultHistory),
		providers: providers,
		metrics:   recMetrics,
		red:       red,
		logger:    logger,
	}

	a.Exporter = export.New(export.Options{
		Writer:   export.NewYAMLWriter(cfg.Export.Compress),
		Location: loc,
		Logger:   logger,
		Tracer:   providers.Tracer,
		Metrics:  recMetrics,
	})

	a.Discovery = discovery.New(network, discovery.Config{
		Timeout:     cfg.Discovery.Timeout,
		BackoffBase: cfg.Discovery.BackoffBase,
		BackoffMax:  cfg.Discovery.BackoffMax,
		MaxFailures: cfg.Discovery.MaxFailures,
	},
		discovery.WithLogger(logger),
		discovery.WithPollHook(recMetrics.RecordPoll),
		discovery.WithDegradedHandler(func(err error) {
			a.Feed.Error("Stream discovery stopped: " + err.Error())
		}),
	)
	a.Discovery.Subscribe(a.onCatalogChange)

	a.Markers = markers.NewPublisher(network, logger)

	sessOpts := session.Options{
		Config: session.Config{
			OutputDir:     cfg.Output.Dir,
			BackupEvery:   cfg.Backup.Every,
			StartAttempts: cfg.Recorder.StartAttempts,
			StartDelay:    cfg.Recorder.StartDelay,
			Monitor: recorder.MonitorConfig{
				Interval:     cfg.Recorder.MonitorEvery,
				ErrorBackoff: cfg.Recorder.MonitorBackoff,
				MaxErrors:    cfg.Recorder.MonitorErrors,
			},
			Capture: recorder.PerSourceConfig{
				PullTimeout: cfg.Recorder.Capture.PullTimeout,
				MaxErrors:   cfg.Recorder.Capture.MaxErrors,
				JoinTimeout: cfg.Recorder.Capture.JoinTimeout,
			},
		},
		Catalog:     a.Discovery,
		Selection:   a.Selection,
		Opener:      network,
		DeviceClock: network.LocalClock,
		Exporter:    a.Exporter,
		Markers:     a.Markers,
		Feed:        a.Feed,
		Logger:      logger,
		Tracer:      providers.Tracer,
		Metrics:     recMetrics,
	}

	if cfg.Recorder.External {
		ext := recorder.NewExternal(recorder.ExternalConfig{
			Binary:      cfg.Recorder.Binary,
			StopTimeout: cfg.Recorder.StopTimeout,
		}, logger)

		if ext.Available() {
			sessOpts.External = ext
		} else {
			logger.Info("external recorder not found, using per-source capture", "binary", cfg.Recorder.Binary)
		}
	}

	if cfg.Lock.Enabled {
		sessOpts.Locker = lock.NewPortLock(cfg.Lock.Port)
	}

	a.Session = session.New(sessOpts)
	a.Recovery = recovery.New(a.Exporter, recovery.WithLogger(logger), recovery.WithTracer(providers.Tracer))

	return a, nil
}

// Logger returns the process logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// MCPServer builds an MCP server over the app's components.
func (a *App) MCPServer() *mcp.Server {
	return mcp.NewServer(mcp.ServerDeps{
		Logger:           a.logger,
		Metrics:          a.red,
		Tracer:           a.providers.Tracer,
		Session:          a.Session,
		Discovery:        a.Discovery,
		Selection:        a.Selection,
		Markers:          a.Markers,
		Feed:             a.Feed,
		DiscoveryTimeout: a.Config.Discovery.Timeout,
	})
}

// Close withdraws the marker outlets and flushes telemetry. It is safe to
// call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.Discovery.Stop()

		a.closeErr = errors.Join(a.Markers.Close(), a.providers.Shutdown(ctx))
	})

	return a.closeErr
}

// onCatalogChange reports appeared and vanished sources and prunes vanished
// ones from the selection.
func (a *App) onCatalogChange(change discovery.Change) {
	if len(change.Added) > 0 {
		a.Feed.Info("Streams appeared: " + joinNames(change.Added))
	}

	if removed := change.RemovedKeys(); len(removed) > 0 {
		a.Selection.Prune(removed)
		a.Feed.Warn("Streams disappeared: " + joinNames(change.Removed))
	}
}

func joinNames(descs []stream.SourceDescriptor) string {
	names := make([]string, 0, len(descs))
	for _, d := range descs {
		names = append(names, d.Name)
	}

	return strings.Join(names, ", ")
}
