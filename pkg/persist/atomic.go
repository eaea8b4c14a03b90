package persist

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// filePerm is the permission applied to persisted files.
const filePerm = 0o644

// tempPattern names temporary files created next to their targets.
const tempPattern = ".tmp-*"

// WriteFileAtomic writes through a temporary file in the target's directory,
// syncs it, renames it over path and syncs the directory. Readers see either
// the previous content or the complete new content.
func WriteFileAtomic(path string, perm os.FileMode, write func(io.Writer) error) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+tempPattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpPath := tmp.Name()

	err = writeAndSync(tmp, write)
	if err != nil {
		return errors.Join(err, os.Remove(tmpPath))
	}

	err = os.Chmod(tmpPath, perm)
	if err != nil {
		return errors.Join(fmt.Errorf("chmod temp file: %w", err), os.Remove(tmpPath))
	}

	err = os.Rename(tmpPath, path)
	if err != nil {
		return errors.Join(fmt.Errorf("rename temp file: %w", err), os.Remove(tmpPath))
	}

	syncDir(dir)

	return nil
}

func writeAndSync(file *os.File, write func(io.Writer) error) error {
	err := write(file)
	if err != nil {
		return errors.Join(err, file.Close())
	}

	err = file.Sync()
	if err != nil {
		return errors.Join(fmt.Errorf("sync temp file: %w", err), file.Close())
	}

	err = file.Close()
	if err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	return nil
}

// syncDir persists the rename. Some filesystems refuse directory syncs; the
// rename itself already happened, so failures are ignored.
func syncDir(dir string) {
	handle, err := os.Open(dir)
	if err != nil {
		return
	}

	_ = handle.Sync()
	_ = handle.Close()
}
