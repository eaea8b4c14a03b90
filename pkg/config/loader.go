package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	configName      = ".markrec"
	configType      = "yaml"
	envPrefix       = "MARKREC"
	envKeySeparator = "_"
)

// LoadConfig loads configuration from file, env vars, and defaults.
// A non-empty configPath is read as the config file. Otherwise .markrec.yaml
// is searched in the working directory and $HOME; a missing file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("output.dir", DefaultOutputDir)
	viperCfg.SetDefault("output.timezone", DefaultTimezone)

	viperCfg.SetDefault("backup.every", DefaultBackupEvery)

	viperCfg.SetDefault("discovery.interval", DefaultDiscoveryInterval)
	viperCfg.SetDefault("discovery.timeout", DefaultDiscoveryTimeout)
	viperCfg.SetDefault("discovery.backoff_base", DefaultDiscoveryBackoffBase)
	viperCfg.SetDefault("discovery.backoff_max", DefaultDiscoveryBackoffMax)
	viperCfg.SetDefault("discovery.max_failures", DefaultDiscoveryMaxFailures)

	viperCfg.SetDefault("recorder.external", DefaultRecorderExternal)
	viperCfg.SetDefault("recorder.binary", DefaultRecorderBinary)
	viperCfg.SetDefault("recorder.stop_timeout", DefaultRecorderStopTimeout)
	viperCfg.SetDefault("recorder.start_attempts", DefaultRecorderStartAttempts)
	viperCfg.SetDefault("recorder.start_delay", DefaultRecorderStartDelay)
	viperCfg.SetDefault("recorder.monitor_every", DefaultRecorderMonitorEvery)
	viperCfg.SetDefault("recorder.monitor_backoff", DefaultRecorderMonitorBackoff)
	viperCfg.SetDefault("recorder.monitor_errors", DefaultRecorderMonitorErrors)
	viperCfg.SetDefault("recorder.capture.pull_timeout", DefaultCapturePullTimeout)
	viperCfg.SetDefault("recorder.capture.max_errors", DefaultCaptureMaxErrors)
	viperCfg.SetDefault("recorder.capture.join_timeout", DefaultCaptureJoinTimeout)

	viperCfg.SetDefault("session.auto_start", DefaultSessionAutoStart)

	viperCfg.SetDefault("lock.enabled", DefaultLockEnabled)
	viperCfg.SetDefault("lock.port", DefaultLockPort)

	viperCfg.SetDefault("metrics.addr", "")

	viperCfg.SetDefault("log.level", DefaultLogLevel)
	viperCfg.SetDefault("log.json", DefaultLogJSON)

	viperCfg.SetDefault("otel.endpoint", "")
	viperCfg.SetDefault("otel.insecure", false)
	viperCfg.SetDefault("otel.headers", "")
	viperCfg.SetDefault("otel.environment", "")
	viperCfg.SetDefault("otel.sample_ratio", DefaultOTelSampleRatio)
	viperCfg.SetDefault("otel.trace_verbose", false)
	viperCfg.SetDefault("otel.debug_trace", false)

	viperCfg.SetDefault("export.compress", DefaultExportCompress)
}
