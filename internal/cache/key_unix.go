//go:build !windows

package cache

import "golang.org/x/sys/unix"

// restrictKeyFile enforces owner-only (0o600) permissions on POSIX. The
// explicit chmod matters when the key file already existed: WriteFile
// keeps an existing file's mode rather than applying 0o600.
func restrictKeyFile(path string) error {
	return unix.Chmod(path, 0o600)
}
