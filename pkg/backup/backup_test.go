package backup_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/markrec/pkg/backup"
	"github.com/Sumatoshi-tech/markrec/pkg/clocksync"
	"github.com/Sumatoshi-tech/markrec/pkg/persist"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

var testAnchor = clocksync.Anchor{
	Wall:   time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC),
	Device: 1000.5,
}

func testSamples(n int) []stream.Sample {
	samples := make([]stream.Sample, n)
	for i := range samples {
		samples[i] = stream.Sample{
			SourceKey:  "TextLogger_textlogger_001",
			Payload:    []string{"marker"},
			Timestamp:  testAnchor.Device + float64(i),
			Generation: 1,
		}
	}

	return samples
}

func TestPathFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("out", "20250301_143000_log.backup.json"),
		backup.PathFor(filepath.Join("out", "20250301_143000_log.xdf")))
	assert.Equal(t, "plain.backup.json", backup.PathFor("plain"))
	assert.Equal(t, "20250301_143000_log", backup.Stem("/x/20250301_143000_log.backup.json"))
}

func TestWriter_WriteLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writer := backup.NewWriter(filepath.Join(dir, "20250301_143000_log.xdf"))

	assert.Equal(t, filepath.Join(dir, "20250301_143000_log.backup.json"), writer.Path())

	snap := backup.NewSnapshot(testSamples(12), testAnchor)
	require.NoError(t, writer.Write(snap))

	loaded, err := backup.Load(writer.Path())
	require.NoError(t, err)

	assert.Equal(t, 12, loaded.SampleCount)
	assert.Len(t, loaded.RecordedData, 12)
	assert.InDelta(t, testAnchor.Device, loaded.RecordingStartTime, 1e-12)
	assert.Equal(t, snap.RecordedData, loaded.RecordedData)

	anchor := loaded.Anchor(writer.Path(), time.Time{})
	assert.True(t, testAnchor.Wall.Equal(anchor.Wall))
}

func TestSnapshot_EncodingIsDeterministic(t *testing.T) {
	t.Parallel()

	codec := persist.NewJSONCodec()
	snap := backup.NewSnapshot(testSamples(5), testAnchor)

	var first, second bytes.Buffer

	require.NoError(t, codec.Encode(&first, snap))
	require.NoError(t, codec.Encode(&second, snap))

	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestWriter_OverwriteIsByteIdenticalWithoutNewSamples(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writer := backup.NewWriter(filepath.Join(dir, "session.xdf"))
	snap := backup.NewSnapshot(testSamples(10), testAnchor)

	require.NoError(t, writer.Write(snap))

	first, err := os.ReadFile(writer.Path())
	require.NoError(t, err)

	require.NoError(t, writer.Write(snap))

	second, err := os.ReadFile(writer.Path())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestWriter_WriteFailure(t *testing.T) {
	t.Parallel()

	writer := backup.NewWriter(filepath.Join(t.TempDir(), "missing", "session.xdf"))

	err := writer.Write(backup.NewSnapshot(testSamples(1), testAnchor))
	require.ErrorIs(t, err, backup.ErrBackupWrite)
}

func TestWriter_Remove(t *testing.T) {
	t.Parallel()

	writer := backup.NewWriter(filepath.Join(t.TempDir(), "session.xdf"))

	require.NoError(t, writer.Remove(), "removing a missing backup is not an error")
	require.NoError(t, writer.Write(backup.NewSnapshot(nil, testAnchor)))
	require.NoError(t, writer.Remove())

	_, err := os.Stat(writer.Path())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_RejectsInvalidDocuments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"not_json", "{{{"},
		{"missing_count", `{"recorded_data": [], "recording_start_time": 1}`},
		{"wrong_type", `{"recorded_data": "x", "recording_start_time": 1, "sample_count": 0}`},
		{"bad_sample", `{"recorded_data": [{"timestamp": 1}], "recording_start_time": 1, "sample_count": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "x.backup.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))

			_, err := backup.Load(path)
			require.ErrorIs(t, err, backup.ErrInvalidSnapshot)
		})
	}
}

func TestSnapshot_AnchorFallbacks(t *testing.T) {
	t.Parallel()

	modTime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	snap := backup.Snapshot{RecordingStartTime: 7}

	fromName := snap.Anchor("/d/20250301_143000_log.backup.json", modTime)
	want := time.Date(2025, 3, 1, 14, 30, 0, 0, time.Local)

	assert.True(t, want.Equal(fromName.Wall))
	assert.InDelta(t, 7.0, fromName.Device, 1e-12)

	fromMod := snap.Anchor("/d/custom.backup.json", modTime)
	assert.True(t, modTime.Equal(fromMod.Wall))
}

func TestGlob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	for _, name := range []string{"b.backup.json", "a.backup.json", "a.xdf", "notes.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o600))
	}

	matches, err := backup.Glob(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.backup.json"),
		filepath.Join(dir, "b.backup.json"),
	}, matches)
}
