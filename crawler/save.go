package crawler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// maxNameBytes is the file name limit of common filesystems.
const maxNameBytes = 255

// writeFileAtomic writes data to path through a temp file in the same
// directory and a rename, so an interrupted run never leaves a partial file
// under the final name. It reports whether path already existed.
func writeFileAtomic(path string, data []byte) (bool, error) {
	if len(filepath.Base(path)) > maxNameBytes {
		return false, &fs.PathError{Op: "write", Path: path, Err: syscall.ENAMETOOLONG}
	}

	existed := false
	if _, err := os.Stat(path); err == nil {
		existed = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".offliner-*.tmp")
	if err != nil {
		return false, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return false, fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return false, fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return false, err
	}
	return existed, nil
}

// isNameTooLong reports whether err comes from a file name the filesystem
// refuses for its length.
func isNameTooLong(err error) bool {
	return errors.Is(err, syscall.ENAMETOOLONG)
}
