package app_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/markrec/internal/app"
	"github.com/Sumatoshi-tech/markrec/pkg/backup"
	"github.com/Sumatoshi-tech/markrec/pkg/clocksync"
	"github.com/Sumatoshi-tech/markrec/pkg/config"
	"github.com/Sumatoshi-tech/markrec/pkg/export"
	"github.com/Sumatoshi-tech/markrec/pkg/observability"
	"github.com/Sumatoshi-tech/markrec/pkg/recovery"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
	"github.com/Sumatoshi-tech/markrec/pkg/stream/loopback"
)

const waitFor = 5 * time.Second

// syncBuffer is a bytes.Buffer safe for the feed printer goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func loadConfig(t *testing.T, outputDir string, autoStart bool) *config.Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "markrec.yaml")
	content := fmt.Sprintf(`output:
  dir: %q
lock:
  enabled: false
recorder:
  external: false
session:
  auto_start: %t
discovery:
  interval: 50ms
log:
  level: error
`, outputDir, autoStart)

	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *app.App {
	t.Helper()

	a, err := app.New(app.Options{Config: cfg, Mode: observability.ModeRecord, Network: loopback.NewNetwork()})
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, a.Close(context.Background()))
	})

	return a
}

func messages(a *app.App) string {
	var lines []string
	for _, line := range a.Feed.Recent(0) {
		lines = append(lines, line.Message)
	}

	return strings.Join(lines, "\n")
}

func TestNew_RequiresConfig(t *testing.T) {
	t.Parallel()

	_, err := app.New(app.Options{})
	require.ErrorIs(t, err, app.ErrNoConfig)
}

func TestNew_WiresComponents(t *testing.T) {
	t.Parallel()

	a := newApp(t, loadConfig(t, t.TempDir(), false))

	assert.NotNil(t, a.Discovery)
	assert.NotNil(t, a.Session)
	assert.NotNil(t, a.Recovery)
	assert.NotNil(t, a.Logger())
	assert.Equal(t, "idle", a.Session.Status().State)
	assert.NotEmpty(t, a.MCPServer().ListToolNames())
}

func TestRun_AutoStartRecordsConsoleMarkers(t *testing.T) {
	t.Parallel()

	a := newApp(t, loadConfig(t, t.TempDir(), true))

	reader, writer := io.Pipe()
	out := &syncBuffer{}
	done := make(chan error, 1)

	go func() {
		done <- a.Run(context.Background(), app.RunOptions{Input: reader, ExitOnEOF: true, Output: out})
	}()

	require.Eventually(t, func() bool {
		return a.Session.Status().State == "recording"
	}, waitFor, 10*time.Millisecond)

	outputPath := a.Session.Status().OutputPath

	_, err := io.WriteString(writer, "participant ready\n")
	require.NoError(t, err)

	// The auto-start status marker and the console line.
	require.Eventually(t, func() bool {
		return a.Session.Status().Samples >= 2
	}, waitFor, 10*time.Millisecond)

	_, err = io.WriteString(writer, "/stop\n")
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("run did not return")
	}

	sidecar, err := os.ReadFile(export.SidecarPath(outputPath))
	require.NoError(t, err)
	assert.Contains(t, string(sidecar), "participant ready")
	assert.Contains(t, string(sidecar), "RECORDING_AUTO_STARTED")

	assert.Equal(t, "idle", a.Session.Status().State)
	assert.Contains(t, out.String(), "Recording stopped")
}

func TestRun_ConsoleCommands(t *testing.T) {
	t.Parallel()

	a := newApp(t, loadConfig(t, t.TempDir(), false))

	input := strings.Join([]string{
		"/help",
		"/bogus",
		"/strat",
		"/event Blink 2s",
		"/toggle Task on",
		"/toggle Task",
		"/select Missing_1",
		"/all",
		"/status",
		"/stop",
	}, "\n")

	err := a.Run(context.Background(), app.RunOptions{Input: strings.NewReader(input), ExitOnEOF: true})
	require.NoError(t, err)

	got := messages(a)
	assert.Contains(t, got, "Commands:")
	assert.Contains(t, got, "Unknown command /bogus")
	assert.Contains(t, got, "Unknown command /strat; did you mean /start?")
	assert.Contains(t, got, "Event sent: Blink||")
	assert.Contains(t, got, "Event sent: Task_START||")
	assert.Contains(t, got, "Usage: /toggle")
	assert.Contains(t, got, "Unknown stream Missing_1")
	assert.Contains(t, got, "TextLogger_textlogger_001 (Markers, selected)")
	assert.Contains(t, got, "State: idle")
	assert.Contains(t, got, "Cannot stop: not recording")
}

func TestRun_RecoversBackupsAtStartup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := newApp(t, loadConfig(t, dir, false))

	anchor := clocksync.Anchor{Wall: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), Device: 10}
	writer := backup.NewWriter(filepath.Join(dir, "20250301_090000_log.xdf"))
	require.NoError(t, writer.Write(backup.NewSnapshot([]stream.Sample{
		{SourceKey: "TextLogger_textlogger_001", Payload: []string{"before crash"}, Timestamp: 11, Generation: 1},
	}, anchor)))

	err := a.Run(context.Background(), app.RunOptions{
		Prompter:  recovery.AutoPrompter{},
		Input:     strings.NewReader(""),
		ExitOnEOF: true,
	})
	require.NoError(t, err)

	target := recovery.SuggestedTarget(writer.Path())
	sidecar, err := os.ReadFile(export.SidecarPath(target))
	require.NoError(t, err)
	assert.Contains(t, string(sidecar), "before crash")
	assert.NoFileExists(t, writer.Path())
	assert.Contains(t, messages(a), "Recovered backup")
}

func TestRun_LeavesBackupsWithoutPrompter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := newApp(t, loadConfig(t, dir, false))

	anchor := clocksync.Anchor{Wall: time.Now(), Device: 1}
	writer := backup.NewWriter(filepath.Join(dir, "left_log.xdf"))
	require.NoError(t, writer.Write(backup.NewSnapshot([]stream.Sample{
		{SourceKey: "A_1", Payload: []string{"x"}, Timestamp: 2},
	}, anchor)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, a.Run(ctx, app.RunOptions{}))
	assert.FileExists(t, writer.Path())
	assert.Contains(t, messages(a), "unrecovered backup")
}
