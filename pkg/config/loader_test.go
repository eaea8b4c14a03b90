package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/markrec/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".markrec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_EmptyFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultOutputDir, cfg.Output.Dir)
	assert.Equal(t, config.DefaultBackupEvery, cfg.Backup.Every)
	assert.Equal(t, config.DefaultDiscoveryInterval, cfg.Discovery.Interval)
	assert.Equal(t, config.DefaultDiscoveryMaxFailures, cfg.Discovery.MaxFailures)
	assert.Equal(t, config.DefaultRecorderBinary, cfg.Recorder.Binary)
	assert.True(t, cfg.Recorder.External)
	assert.Equal(t, config.DefaultRecorderStartAttempts, cfg.Recorder.StartAttempts)
	assert.Equal(t, config.DefaultCaptureJoinTimeout, cfg.Recorder.Capture.JoinTimeout)
	assert.True(t, cfg.Session.AutoStart)
	assert.True(t, cfg.Lock.Enabled)
	assert.Equal(t, config.DefaultLockPort, cfg.Lock.Port)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.InDelta(t, config.DefaultOTelSampleRatio, cfg.OTel.SampleRatio, 0)
	assert.False(t, cfg.Export.Compress)
}

func TestLoadConfig_FileValues(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `output:
  dir: /data/lab
  timezone: UTC
backup:
  every: 25
discovery:
  interval: 500ms
  max_failures: 3
recorder:
  external: false
  binary: /opt/LabRecorder/LabRecorderCLI
  start_attempts: 5
  capture:
    pull_timeout: 50ms
session:
  auto_start: false
lock:
  port: 14000
metrics:
  addr: 127.0.0.1:9464
log:
  level: debug
  json: true
otel:
  endpoint: collector:4317
  sample_ratio: 0.25
export:
  compress: true
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/lab", cfg.Output.Dir)
	assert.Equal(t, 25, cfg.Backup.Every)
	assert.Equal(t, 500*time.Millisecond, cfg.Discovery.Interval)
	assert.Equal(t, 3, cfg.Discovery.MaxFailures)
	assert.Equal(t, config.DefaultDiscoveryTimeout, cfg.Discovery.Timeout)
	assert.False(t, cfg.Recorder.External)
	assert.Equal(t, "/opt/LabRecorder/LabRecorderCLI", cfg.Recorder.Binary)
	assert.Equal(t, 5, cfg.Recorder.StartAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Recorder.Capture.PullTimeout)
	assert.False(t, cfg.Session.AutoStart)
	assert.Equal(t, 14000, cfg.Lock.Port)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Addr)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "collector:4317", cfg.OTel.Endpoint)
	assert.InDelta(t, 0.25, cfg.OTel.SampleRatio, 0)
	assert.True(t, cfg.Export.Compress)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("MARKREC_LOCK_PORT", "15000")
	t.Setenv("MARKREC_BACKUP_EVERY", "4")
	t.Setenv("MARKREC_DISCOVERY_INTERVAL", "3s")

	cfg, err := config.LoadConfig(writeConfig(t, "backup:\n  every: 50\n"))
	require.NoError(t, err)

	assert.Equal(t, 15000, cfg.Lock.Port)
	assert.Equal(t, 4, cfg.Backup.Every)
	assert.Equal(t, 3*time.Second, cfg.Discovery.Interval)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"backup every", "backup:\n  every: 0\n", config.ErrInvalidBackupEvery},
		{"lock port", "lock:\n  port: 70000\n", config.ErrInvalidPort},
		{"duration", "discovery:\n  timeout: 0s\n", config.ErrInvalidDuration},
		{"count", "recorder:\n  start_attempts: 0\n", config.ErrInvalidCount},
		{"log level", "log:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"sample ratio", "otel:\n  sample_ratio: 2\n", config.ErrInvalidSampleRatio},
		{"timezone", "output:\n  timezone: Mars/Olympus\n", config.ErrInvalidTimezone},
		{"output dir", "output:\n  dir: \"\"\n", config.ErrEmptyOutputDir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "backup: [unclosed\n"))
	require.Error(t, err)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
