package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sumatoshi-tech/markrec/pkg/backup"
)

const (
	outputStampLayout = backup.FileStampLayout
	outputSuffix      = "_log"
	outputExt         = ".xdf"
	outputDirPerm     = 0o750
)

// nextOutputPath returns <dir>/<YYYYMMDD_HHMMSS>_log.xdf, adding a counter
// while any export output, the backup or the path itself exists on disk, or
// the name was already handed out. Callers hold opMu.
func (o *Orchestrator) nextOutputPath() (string, error) {
	dir := o.cfg.OutputDir
	if dir == "" {
		dir = "."
	}

	err := os.MkdirAll(dir, outputDirPerm)
	if err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	name := o.wall().Format(outputStampLayout) + outputSuffix + outputExt

	path := o.exporter.UniquePath(filepath.Join(dir, name), func(candidate string) bool {
		_, used := o.usedPaths[candidate]

		return used || exists(candidate) || exists(backup.PathFor(candidate))
	})

	o.usedPaths[path] = struct{}{}

	return path, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)

	return !errors.Is(err, os.ErrNotExist)
}
