package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/markrec/pkg/config"
)

func TestConfig_LogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		cfg := config.Config{Log: config.LogConfig{Level: tt.in}}

		level, err := cfg.LogLevel()
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, level, tt.in)
	}
}

func TestConfig_LocationDefaultsToLocal(t *testing.T) {
	t.Parallel()

	for _, tz := range []string{"", config.DefaultTimezone} {
		cfg := config.Config{Output: config.OutputConfig{Timezone: tz}}

		loc, err := cfg.Location()
		require.NoError(t, err)
		assert.Equal(t, time.Local, loc)
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	err := cfg.Validate()
	require.ErrorIs(t, err, config.ErrEmptyOutputDir)
	require.ErrorIs(t, err, config.ErrInvalidBackupEvery)
	require.ErrorIs(t, err, config.ErrInvalidPort)
	require.ErrorIs(t, err, config.ErrInvalidDuration)
	require.ErrorIs(t, err, config.ErrInvalidLogLevel)
}
