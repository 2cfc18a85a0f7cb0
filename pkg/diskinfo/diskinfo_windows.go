//go:build windows

package diskinfo

import (
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/windows"
)

func lookup(path string) (*Info, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, errors.Errorf("invalid path %s: %w", path, err)
	}

	var available, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(p, &available, &total, &free); err != nil {
		return nil, errors.Errorf("GetDiskFreeSpaceEx %s: %w", path, err)
	}

	buf := make([]uint16, windows.MAX_PATH+1)
	if err := windows.GetVolumePathName(p, &buf[0], uint32(len(buf))); err != nil {
		return nil, errors.Errorf("GetVolumePathName %s: %w", path, err)
	}

	return &Info{
		Available:  available,
		Total:      total,
		MountPoint: windows.UTF16ToString(buf),
	}, nil
}
