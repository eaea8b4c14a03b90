// Package config loads markrec settings from .markrec.yaml, MARKREC_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Sentinel validation errors.
var (
	ErrInvalidBackupEvery = errors.New("backup.every must be positive")
	ErrInvalidDuration    = errors.New("duration must be positive")
	ErrInvalidCount       = errors.New("count must be positive")
	ErrInvalidPort        = errors.New("invalid port")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidSampleRatio = errors.New("otel.sample_ratio must be within [0, 1]")
	ErrInvalidTimezone    = errors.New("invalid timezone")
	ErrEmptyOutputDir     = errors.New("output.dir must not be empty")
)

// Config is the full markrec configuration.
type Config struct {
	Output    OutputConfig    `mapstructure:"output"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Recorder  RecorderConfig  `mapstructure:"recorder"`
	Session   SessionConfig   `mapstructure:"session"`
	Lock      LockConfig      `mapstructure:"lock"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
	OTel      OTelConfig      `mapstructure:"otel"`
	Export    ExportConfig    `mapstructure:"export"`
}

// OutputConfig says where recordings go.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
	// Timezone names the zone used for sidecar wall-clock text; "Local" uses the host zone.
	Timezone string `mapstructure:"timezone"`
}

// BackupConfig tunes crash-safe snapshots.
type BackupConfig struct {
	Every int `mapstructure:"every"`
}

// DiscoveryConfig tunes stream polling.
type DiscoveryConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
	MaxFailures int           `mapstructure:"max_failures"`
}

// RecorderConfig configures the external recorder and the per-source fallback.
type RecorderConfig struct {
	External       bool          `mapstructure:"external"`
	Binary         string        `mapstructure:"binary"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout"`
	StartAttempts  int           `mapstructure:"start_attempts"`
	StartDelay     time.Duration `mapstructure:"start_delay"`
	MonitorEvery   time.Duration `mapstructure:"monitor_every"`
	MonitorBackoff time.Duration `mapstructure:"monitor_backoff"`
	MonitorErrors  int           `mapstructure:"monitor_errors"`
	Capture        CaptureConfig `mapstructure:"capture"`
}

// CaptureConfig tunes the per-source readers.
type CaptureConfig struct {
	PullTimeout time.Duration `mapstructure:"pull_timeout"`
	MaxErrors   int           `mapstructure:"max_errors"`
	JoinTimeout time.Duration `mapstructure:"join_timeout"`
}

// SessionConfig holds session behavior switches.
type SessionConfig struct {
	AutoStart bool `mapstructure:"auto_start"`
}

// LockConfig configures the single-instance lock.
type LockConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// MetricsConfig configures the scrape endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// OTelConfig configures OpenTelemetry export.
type OTelConfig struct {
	Endpoint     string  `mapstructure:"endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	Headers      string  `mapstructure:"headers"`
	Environment  string  `mapstructure:"environment"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	TraceVerbose bool    `mapstructure:"trace_verbose"`
	DebugTrace   bool    `mapstructure:"debug_trace"`
}

// ExportConfig configures the primary artifact.
type ExportConfig struct {
	Compress bool `mapstructure:"compress"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Output.Dir) == "" {
		errs = append(errs, ErrEmptyOutputDir)
	}

	_, err := c.Location()
	if err != nil {
		errs = append(errs, err)
	}

	if c.Backup.Every <= 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidBackupEvery, c.Backup.Every))
	}

	errs = append(errs,
		positiveDuration("discovery.interval", c.Discovery.Interval),
		positiveDuration("discovery.timeout", c.Discovery.Timeout),
		positiveDuration("discovery.backoff_base", c.Discovery.BackoffBase),
		positiveDuration("discovery.backoff_max", c.Discovery.BackoffMax),
		positiveCount("discovery.max_failures", c.Discovery.MaxFailures),
		positiveDuration("recorder.stop_timeout", c.Recorder.StopTimeout),
		positiveCount("recorder.start_attempts", c.Recorder.StartAttempts),
		positiveDuration("recorder.start_delay", c.Recorder.StartDelay),
		positiveDuration("recorder.monitor_every", c.Recorder.MonitorEvery),
		positiveDuration("recorder.monitor_backoff", c.Recorder.MonitorBackoff),
		positiveCount("recorder.monitor_errors", c.Recorder.MonitorErrors),
		positiveDuration("recorder.capture.pull_timeout", c.Recorder.Capture.PullTimeout),
		positiveCount("recorder.capture.max_errors", c.Recorder.Capture.MaxErrors),
		positiveDuration("recorder.capture.join_timeout", c.Recorder.Capture.JoinTimeout),
	)

	if c.Lock.Port <= 0 || c.Lock.Port > maxPort {
		errs = append(errs, fmt.Errorf("%w: lock.port %d", ErrInvalidPort, c.Lock.Port))
	}

	_, err = c.LogLevel()
	if err != nil {
		errs = append(errs, err)
	}

	if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidSampleRatio, c.OTel.SampleRatio))
	}

	return errors.Join(errs...)
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(c.Log.Level))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}

	return level, nil
}

// Location resolves Output.Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Output.Timezone == "" || c.Output.Timezone == DefaultTimezone {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(c.Output.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidTimezone, c.Output.Timezone, err)
	}

	return loc, nil
}

func positiveDuration(key string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s is %s", ErrInvalidDuration, key, d)
	}

	return nil
}

func positiveCount(key string, n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %s is %d", ErrInvalidCount, key, n)
	}

	return nil
}
