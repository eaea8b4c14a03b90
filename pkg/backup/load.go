package backup

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/markrec/pkg/clocksync"
	"github.com/Sumatoshi-tech/markrec/pkg/persist"
)

//go:generate go run ../../tools/schemagen -o .

// schemaJSON validates snapshots read back from disk.
//
//go:embed snapshot.schema.json
var schemaJSON []byte

// FileStampLayout is the timestamp prefix of generated output names.
const FileStampLayout = "20060102_150405"

// Validate checks raw snapshot JSON against the embedded schema.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		problems = append(problems, verr.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidSnapshot, strings.Join(problems, "; "))
}

// Load reads, validates and decodes the backup at path.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read backup: %w", err)
	}

	err = Validate(data)
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot

	err = persist.NewJSONCodec().Decode(bytes.NewReader(data), &snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	return snap, nil
}

// Anchor reconstructs the session anchor. The wall time comes from the stored
// datetime, then from the timestamp in the backup's file name, then from modTime.
func (s Snapshot) Anchor(backupPath string, modTime time.Time) clocksync.Anchor {
	anchor := clocksync.Anchor{Device: s.RecordingStartTime, Wall: modTime}

	if s.RecordingStartDatetime != "" {
		wall, err := time.Parse(time.RFC3339Nano, s.RecordingStartDatetime)
		if err == nil {
			anchor.Wall = wall

			return anchor
		}
	}

	stem := Stem(backupPath)
	if len(stem) >= len(FileStampLayout) {
		wall, err := time.ParseInLocation(FileStampLayout, stem[:len(FileStampLayout)], time.Local)
		if err == nil {
			anchor.Wall = wall
		}
	}

	return anchor
}
