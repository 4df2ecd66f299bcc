// Package fsutil defiens a set of internal utility functions used to
// interact with the file system.
package fsutil

import (
	"errors"
	"os"
	"path/filepath"
)

var ErrPermission = errors.New("unexpected permission")

// IsMetaFile tests wheter a DirEntry appears to be a metaddata file or not.
func IsMetaFile(e os.DirEntry) (bool, error) {
	if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
		return false, nil
	}

	info, err := e.Info()
	if err != nil {
		return false, err
	}

	return info.Mode().IsRegular(), nil
}

// AtomicallyWriteFile writes data to a temp file in the same directory as
// path, then renames it into place, so a reader never observes a
// partially-written document and a crash mid-write never corrupts the
// existing one.
func AtomicallyWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
