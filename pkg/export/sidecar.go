package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Sumatoshi-tech/markrec/pkg/persist"
)

// Sidecar layout.
const (
	sidecarDir    = "CSV"
	sidecarSuffix = "_events.csv"
	flaggedSuffix = "_flagged.csv"
	sidecarPerm   = 0o644
	dirPerm       = 0o750
)

// sidecarHeader is the first row of every sidecar.
var sidecarHeader = []string{"Timestamp", "DeviceClockValue", "DeviceClockOffsetSeconds", "Message"}

// SidecarPath returns <dir>/CSV/<stem>_events.csv for outputPath.
func SidecarPath(outputPath string) string {
	return filepath.Join(filepath.Dir(outputPath), sidecarDir, stem(outputPath)+sidecarSuffix)
}

// FlaggedPath returns <dir>/CSV/<stem>_flagged.csv for outputPath. It holds
// samples stamped before the session anchor.
func FlaggedPath(outputPath string) string {
	return filepath.Join(filepath.Dir(outputPath), sidecarDir, stem(outputPath)+flaggedSuffix)
}

// WriteSidecar atomically writes rows as CSV to path, creating its directory.
func WriteSidecar(path string, rows []Row) error {
	err := os.MkdirAll(filepath.Dir(path), dirPerm)
	if err != nil {
		return fmt.Errorf("create sidecar dir: %w", err)
	}

	return persist.WriteFileAtomic(path, sidecarPerm, func(w io.Writer) error {
		return encodeRows(w, rows)
	})
}

func encodeRows(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)

	err := writer.Write(sidecarHeader)
	if err != nil {
		return fmt.Errorf("write sidecar header: %w", err)
	}

	for _, row := range rows {
		err = writer.Write([]string{
			row.WallClock,
			formatSeconds(row.DeviceClock),
			formatSeconds(row.Offset),
			row.Message,
		})
		if err != nil {
			return fmt.Errorf("write sidecar row: %w", err)
		}
	}

	writer.Flush()

	err = writer.Error()
	if err != nil {
		return fmt.Errorf("flush sidecar: %w", err)
	}

	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
