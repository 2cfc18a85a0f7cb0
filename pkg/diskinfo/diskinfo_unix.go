//go:build linux || darwin || freebsd

package diskinfo

import (
	"path/filepath"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"
)

func lookup(path string) (*Info, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return nil, errors.Errorf("statfs %s: %w", path, err)
	}
	mount, err := mountPoint(path)
	if err != nil {
		return nil, err
	}
	bsize := uint64(st.Bsize)
	return &Info{
		Available:  uint64(st.Bavail) * bsize,
		Total:      uint64(st.Blocks) * bsize,
		MountPoint: mount,
	}, nil
}

// mountPoint climbs from path until the parent lives on a different device.
func mountPoint(path string) (string, error) {
	dev := func(p string) (uint64, error) {
		var st unix.Stat_t
		if err := unix.Stat(p, &st); err != nil {
			return 0, err
		}
		return uint64(st.Dev), nil
	}

	current := path
	currentDev, err := dev(current)
	if err != nil {
		return "", errors.Errorf("failed to stat %s: %w", current, err)
	}
	for {
		parent := filepath.Dir(current)
		if parent == current {
			return current, nil
		}
		parentDev, err := dev(parent)
		if err != nil || parentDev != currentDev {
			return current, nil
		}
		current = parent
	}
}
