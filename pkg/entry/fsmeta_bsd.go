//go:build darwin || freebsd

package entry

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

func platformTimes(absPath string, _ os.FileInfo) (atime, btime *time.Time) {
	var st unix.Stat_t
	if err := unix.Stat(absPath, &st); err != nil {
		return nil, nil
	}
	a := time.Unix(st.Atim.Unix())
	b := time.Unix(st.Btim.Unix())
	return &a, &b
}
