package cmd

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"
	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/config"
	"github.com/paulschiretz/pgl-sortbackup/pkg/diskinfo"
	"github.com/paulschiretz/pgl-sortbackup/pkg/engine"
	"github.com/paulschiretz/pgl-sortbackup/pkg/hints"
	"github.com/paulschiretz/pgl-sortbackup/pkg/index"
	"github.com/paulschiretz/pgl-sortbackup/pkg/lockfile"
	"github.com/paulschiretz/pgl-sortbackup/pkg/planner"
	"github.com/paulschiretz/pgl-sortbackup/pkg/preflight"
)

// RunStatus prints what the interrupted run in the state directory has left to copy.
func RunStatus(opts Options) error {
	setupLogging(opts)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return errors.Errorf("failed to load configuration: %w", err)
	}
	stateDir, err := planner.ResolveStateDir(opts.StateDir, opts.ConfigPath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(filepath.Join(stateDir, lockfile.LockFileName)); err == nil {
		pterm.Warning.Printfln("A run currently holds the lock on %s, the numbers below may be outdated.", stateDir)
	}

	if !index.Exists(stateDir) {
		pterm.Info.Printfln("No interrupted run in %s.", stateDir)
		return nil
	}
	ix, tracker, err := engine.LoadCheckpoint(stateDir)
	if err != nil {
		if hints.Is(err, engine.ErrNothingToResume) {
			pterm.Info.Printfln("No interrupted run in %s.", stateDir)
			return nil
		}
		return err
	}

	pterm.Info.Printfln("Interrupted run %s, indexed %s.", tracker.RunID(), ix.CreatedAt.Local().Format(time.DateTime))
	report := preflight.Build(cfg, ix, tracker, diskinfo.NewSystem())
	if err := renderReport(report, cfg.FormatBytes); err != nil {
		return err
	}
	pterm.Info.Println("Continue it with --continue.")
	return nil
}
