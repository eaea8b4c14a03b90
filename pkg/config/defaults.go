package config

import "time"

// Output defaults.
const (
	DefaultOutputDir = "recordings"
	DefaultTimezone  = "Local"
)

// Backup defaults.
const (
	DefaultBackupEvery = 10
)

// Discovery defaults.
const (
	DefaultDiscoveryInterval    = 2 * time.Second
	DefaultDiscoveryTimeout     = time.Second
	DefaultDiscoveryBackoffBase = 2 * time.Second
	DefaultDiscoveryBackoffMax  = 30 * time.Second
	DefaultDiscoveryMaxFailures = 5
)

// Recorder defaults.
const (
	DefaultRecorderExternal       = true
	DefaultRecorderBinary         = "LabRecorderCLI"
	DefaultRecorderStopTimeout    = 5 * time.Second
	DefaultRecorderStartAttempts  = 3
	DefaultRecorderStartDelay     = time.Second
	DefaultRecorderMonitorEvery   = 100 * time.Millisecond
	DefaultRecorderMonitorBackoff = 500 * time.Millisecond
	DefaultRecorderMonitorErrors  = 10
	DefaultCapturePullTimeout     = 100 * time.Millisecond
	DefaultCaptureMaxErrors       = 10
	DefaultCaptureJoinTimeout     = 2 * time.Second
)

// Session defaults.
const (
	DefaultSessionAutoStart = true
)

// Lock defaults.
const (
	DefaultLockEnabled = true
	DefaultLockPort    = 13379
)

// Log defaults.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = false
)

// Export defaults.
const (
	DefaultExportCompress = false
)

// OTel defaults.
const (
	DefaultOTelSampleRatio = 1.0
)

// maxPort bounds TCP ports.
const maxPort = 65535
