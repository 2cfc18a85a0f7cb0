package cmd

import (
	"os"

	"github.com/pterm/pterm"
	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/engine"
	"github.com/paulschiretz/pgl-sortbackup/pkg/preflight"
)

// confirmCopy shows the preflight report and asks whether to start copying.
func confirmCopy(format func(uint64) string) engine.ConfirmFunc {
	return func(report *preflight.Report) (bool, error) {
		if !stdinIsTerminal() {
			return false, errors.New("cannot ask for confirmation without a terminal, pass --yes to run non-interactively")
		}
		if err := renderReport(report, format); err != nil {
			return false, err
		}
		if report.HasWarnings() {
			pterm.Warning.Println("Some targets need attention, see the warnings above.")
		}
		return pterm.DefaultInteractiveConfirm.WithDefaultValue(false).Show("Start copying?")
	}
}

func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
