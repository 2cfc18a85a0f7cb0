//go:build linux

package entry

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// platformTimes prefers statx, which exposes the birth time on filesystems
// that record it, and falls back to the stat access time.
func platformTimes(absPath string, info os.FileInfo) (atime, btime *time.Time) {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, absPath, 0, unix.STATX_ATIME|unix.STATX_BTIME, &stx)
	if err == nil {
		if stx.Mask&unix.STATX_ATIME != 0 {
			t := time.Unix(stx.Atime.Sec, int64(stx.Atime.Nsec))
			atime = &t
		}
		if stx.Mask&unix.STATX_BTIME != 0 {
			t := time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
			btime = &t
		}
		return atime, btime
	}

	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		t := time.Unix(st.Atim.Unix())
		atime = &t
	}
	return atime, nil
}
