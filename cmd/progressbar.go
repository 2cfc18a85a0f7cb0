package cmd

import (
	"github.com/schollz/progressbar/v3"

	"github.com/paulschiretz/pgl-sortbackup/pkg/copier"
)

// newProgressBar returns a byte progress bar for total bytes. In quiet mode
// the bar tracks progress without drawing. Nothing to copy means no bar.
func newProgressBar(total uint64, quiet bool) copier.ProgressSink {
	if total == 0 {
		return nil
	}
	if quiet {
		return progressbar.DefaultBytesSilent(int64(total), "copying")
	}
	return progressbar.DefaultBytes(int64(total), "copying")
}
