//go:build !windows
// +build !windows

package fsutil

import (
	"io/fs"
	"os"
)

// EnsureMaxPermissions tests the provided file info to make sure no
// permission bit is set beyond those in perm.
func EnsureMaxPermissions(fi os.FileInfo, perm os.FileMode) error {
	// Clear all bits which are note related to the permission.
	mode := fi.Mode() & fs.ModePerm
	mask := ^perm
	if (mode & mask) != 0 {
		return ErrPermission
	}

	return nil
}
