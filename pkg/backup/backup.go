// Package backup writes and reads crash-safe snapshots of an in-progress
// recording. Each write replaces the previous snapshot atomically.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/markrec/pkg/clocksync"
	"github.com/Sumatoshi-tech/markrec/pkg/persist"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// Suffix is appended to an output path's stem to name its backup.
const Suffix = ".backup.json"

// basenameSuffix is Suffix without the codec extension.
const basenameSuffix = ".backup"

// Sentinel errors.
var (
	// ErrBackupWrite indicates a snapshot could not be persisted.
	ErrBackupWrite = errors.New("backup write failed")
	// ErrInvalidSnapshot indicates a backup file failed validation.
	ErrInvalidSnapshot = errors.New("invalid backup snapshot")
)

// Snapshot is the full serialized state of a recording at one point in time.
type Snapshot struct {
	RecordedData           []stream.Sample `json:"recorded_data"`
	RecordingStartDatetime string          `json:"recording_start_datetime,omitempty"`
	RecordingStartTime     float64         `json:"recording_start_time"`
	SampleCount            int             `json:"sample_count"`
}

// NewSnapshot builds a snapshot from samples and the session anchor.
func NewSnapshot(samples []stream.Sample, anchor clocksync.Anchor) Snapshot {
	data := make([]stream.Sample, len(samples))
	copy(data, samples)

	return Snapshot{
		RecordedData:           data,
		RecordingStartDatetime: anchor.Wall.Format(time.RFC3339Nano),
		RecordingStartTime:     anchor.Device,
		SampleCount:            len(data),
	}
}

// PathFor derives the backup path of an output artifact by replacing its extension.
func PathFor(outputPath string) string {
	return stemPath(outputPath) + Suffix
}

// Stem returns the artifact stem a backup file belongs to.
func Stem(backupPath string) string {
	return strings.TrimSuffix(filepath.Base(backupPath), Suffix)
}

func stemPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath))
}

// Writer persists snapshots for one recording session.
type Writer struct {
	dir       string
	persister *persist.Persister[Snapshot]
}

// NewWriter returns a writer for the backup belonging to outputPath.
func NewWriter(outputPath string) *Writer {
	base := filepath.Base(stemPath(outputPath)) + basenameSuffix

	return &Writer{
		dir:       filepath.Dir(outputPath),
		persister: persist.NewPersister[Snapshot](base, persist.NewJSONCodec()),
	}
}

// Path returns the backup file location.
func (w *Writer) Path() string {
	return w.persister.Path(w.dir)
}

// Write atomically replaces the backup with snap.
func (w *Writer) Write(snap Snapshot) error {
	err := w.persister.Save(w.dir, func() *Snapshot { return &snap })
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBackupWrite, w.Path(), err)
	}

	return nil
}

// Remove deletes the backup. A missing file is not an error.
func (w *Writer) Remove() error {
	return Remove(w.Path())
}

// Remove deletes the backup at path. A missing file is not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove backup: %w", err)
	}

	return nil
}

// Glob lists backup files in dir, sorted by name.
func Glob(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+Suffix))
	if err != nil {
		return nil, fmt.Errorf("glob backups: %w", err)
	}

	sort.Strings(matches)

	return matches, nil
}
