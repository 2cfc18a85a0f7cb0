//go:build !windows

package preflight

import (
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"
)

func checkVolumeExists(string) error { return nil }

func isUnsafeRoot(path string) bool {
	return path == "" || path == "."
}

// OnSystemDisk reports whether path, or its deepest existing ancestor, lives
// on the same device as "/". A target there usually means an external drive
// is not mounted and files would land on the system disk. Paths below the
// user's home directory are never reported.
func OnSystemDisk(path string) (bool, error) {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		if path == home || strings.HasPrefix(path, home+string(filepath.Separator)) {
			return false, nil
		}
	}
	if path == "/" {
		return false, nil
	}

	var rootStat unix.Stat_t
	if err := unix.Stat("/", &rootStat); err != nil {
		return false, errors.Errorf("failed to stat root: %w", err)
	}

	existing := path
	var pathStat unix.Stat_t
	for {
		err := unix.Stat(existing, &pathStat)
		if err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return false, errors.Errorf("failed to stat target path %s: %w", path, err)
		}
		existing = parent
	}
	return pathStat.Dev == rootStat.Dev, nil
}
