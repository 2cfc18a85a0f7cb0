//go:build windows

package entry

import (
	"os"
	"syscall"
	"time"
)

func platformTimes(_ string, info os.FileInfo) (atime, btime *time.Time) {
	data, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return nil, nil
	}
	a := time.Unix(0, data.LastAccessTime.Nanoseconds())
	b := time.Unix(0, data.CreationTime.Nanoseconds())
	return &a, &b
}
