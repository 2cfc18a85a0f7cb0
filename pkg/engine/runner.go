// Package engine runs the phases of a sort-and-backup run: lock the state
// directory, build or load the index, report, confirm, copy and clean up.
package engine

import (
	"context"
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/artifact"
	"github.com/paulschiretz/pgl-sortbackup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-sortbackup/pkg/config"
	"github.com/paulschiretz/pgl-sortbackup/pkg/copier"
	"github.com/paulschiretz/pgl-sortbackup/pkg/diskinfo"
	"github.com/paulschiretz/pgl-sortbackup/pkg/hints"
	"github.com/paulschiretz/pgl-sortbackup/pkg/index"
	"github.com/paulschiretz/pgl-sortbackup/pkg/lockfile"
	"github.com/paulschiretz/pgl-sortbackup/pkg/metrics"
	"github.com/paulschiretz/pgl-sortbackup/pkg/planner"
	"github.com/paulschiretz/pgl-sortbackup/pkg/plog"
	"github.com/paulschiretz/pgl-sortbackup/pkg/preflight"
	"github.com/paulschiretz/pgl-sortbackup/pkg/progress"
)

// ErrNothingToResume is returned by LoadCheckpoint when the state directory
// holds no index.
var ErrNothingToResume = errors.Base("no interrupted run to resume")

// Indexer builds a fresh index.
type Indexer interface {
	Build(ctx context.Context) (*index.Index, error)
}

// Copier executes an index, advancing the tracker's counters.
type Copier interface {
	Copy(ctx context.Context, ix *index.Index, tracker *progress.Tracker) (*copier.Result, error)
}

// HookRunner runs the commands of one hook phase.
type HookRunner interface {
	Run(ctx context.Context, phase string, commands []string, dryRun bool) error
}

// CopierFactory creates the copier once the number of bytes left to copy is known.
type CopierFactory func(m metrics.Metrics, remainingBytes uint64) Copier

// ConfirmFunc is asked after the preflight report whether copying should start.
type ConfirmFunc func(report *preflight.Report) (bool, error)

// Status is how a run ended when it did not fail.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPlanned   Status = "planned"
	StatusDeclined  Status = "declined"
	StatusLocked    Status = "locked"
)

// Result describes a finished run.
type Result struct {
	Status   Status
	Report   *preflight.Report
	Failures []copier.Failure
}

// Runner wires the phases of a run together.
type Runner struct {
	cfg       *config.Config
	indexer   Indexer
	newCopier CopierFactory
	disks     diskinfo.Provider
	hooks     HookRunner
	confirm   ConfirmFunc
}

// NewRunner returns a Runner. A nil confirm starts copying without asking.
func NewRunner(cfg *config.Config, indexer Indexer, newCopier CopierFactory, disks diskinfo.Provider, hooks HookRunner, confirm ConfirmFunc) *Runner {
	return &Runner{
		cfg:       cfg,
		indexer:   indexer,
		newCopier: newCopier,
		disks:     disks,
		hooks:     hooks,
		confirm:   confirm,
	}
}

// DefaultCopierFactory builds a copier.Copier from the plan without a progress sink.
func DefaultCopierFactory(p *planner.RunPlan) CopierFactory {
	return func(m metrics.Metrics, _ uint64) Copier {
		return copier.New(copier.Options{
			Workers:    p.CopyWorkers,
			RetryCount: p.RetryCount,
			RetryWait:  p.RetryWait,
			Metrics:    m,
		})
	}
}

// Run executes the plan. A cancelled copy keeps the index and writes a last
// checkpoint so the run can be continued; the returned error is then the
// context's error.
func (r *Runner) Run(ctx context.Context, p *planner.RunPlan) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dryRun := p.Mode == planner.DryRun

	if err := r.checkAccess(); err != nil {
		return nil, errors.Errorf("preflight failed: %w", err)
	}

	if !dryRun {
		release, err := acquireStateLock(ctx, p.StateDir)
		if err != nil {
			return nil, err
		}
		if release == nil {
			return &Result{Status: StatusLocked}, nil
		}
		defer release()
	}

	if err := r.hooks.Run(ctx, "before_run", p.BeforeRunHooks, dryRun); err != nil && !hints.IsHint(err) {
		errMsg := "before_run hook failed"
		if errors.Is(err, context.Canceled) {
			errMsg = "before_run hook canceled"
		}
		return nil, errors.Errorf("%s: %w", errMsg, err)
	}
	defer func() {
		err := r.hooks.Run(ctx, "after_run", p.AfterRunHooks, dryRun)
		switch {
		case err == nil, hints.IsHint(err):
		case errors.Is(err, context.Canceled):
			plog.Info("after_run hooks skipped due to cancellation")
		default:
			plog.Warn("after_run hook failed", "error", err)
		}
	}()

	ix, tracker, resumed, err := r.prepareIndex(ctx, p)
	if err != nil {
		return nil, err
	}

	var reportTracker *progress.Tracker
	if resumed {
		reportTracker = tracker
	}
	report := preflight.Build(r.cfg, ix, reportTracker, r.disks)
	report.Log(p.FormatBytes)

	if dryRun {
		plog.Notice("Dry run finished, nothing was copied")
		return &Result{Status: StatusPlanned, Report: report}, nil
	}

	if !p.AssumeYes && r.confirm != nil {
		ok, err := r.confirm(report)
		if err != nil {
			return nil, errors.Errorf("confirmation failed: %w", err)
		}
		if !ok {
			plog.Notice("Copy declined, the index is kept and can be continued later", "state_dir", p.StateDir)
			return &Result{Status: StatusDeclined, Report: report}, nil
		}
	}

	for _, t := range report.Targets {
		if t.Path == "" {
			continue
		}
		if err := preflight.CheckTargetWritable(t.Path); err != nil {
			return nil, errors.Errorf("target '%s' is not writable: %w", t.Name, err)
		}
	}

	failures, err := r.copy(ctx, p, ix, tracker, report.RemainingBytes)
	return &Result{Status: StatusCompleted, Report: report, Failures: failures}, err
}

// checkAccess fails on targets that cannot be reached. Unreachable sources
// only warn, the indexer skips them.
func (r *Runner) checkAccess() error {
	for _, name := range r.cfg.SourceNames() {
		src := r.cfg.Sources[name]
		if src.Disabled {
			continue
		}
		if err := preflight.CheckSourceAccessible(src.Path); err != nil {
			plog.Warn("Source is not accessible", "source", name, "error", err)
		}
	}
	for _, name := range r.cfg.TargetNames() {
		if err := preflight.CheckTargetAccessible(r.cfg.Targets[name]); err != nil {
			return errors.Errorf("target '%s': %w", name, err)
		}
	}
	return nil
}

// prepareIndex loads the interrupted run when resuming and builds a fresh
// index otherwise. resumed reports whether a checkpoint was loaded.
func (r *Runner) prepareIndex(ctx context.Context, p *planner.RunPlan) (*index.Index, *progress.Tracker, bool, error) {
	dryRun := p.Mode == planner.DryRun

	if p.Resume {
		ix, tracker, err := LoadCheckpoint(p.StateDir)
		switch {
		case err == nil:
			plog.Info("Continuing interrupted run", "run_id", tracker.RunID(), "created_at", ix.CreatedAt.Format(time.RFC3339))
			for _, name := range tracker.Sources() {
				plog.Debug("Resuming source", "source", name, "completed", tracker.Completed(name), "instructions", len(ix.Sources[name].Instructions))
			}
			return ix, tracker, true, nil
		case hints.Is(err, ErrNothingToResume):
			plog.Warn("Nothing to continue, building a fresh index", "reason", err, "state_dir", p.StateDir)
		default:
			return nil, nil, false, err
		}
	}

	plog.Info("Building indices")
	start := time.Now()
	ix, err := r.indexer.Build(ctx)
	if err != nil {
		return nil, nil, false, errors.Errorf("failed to build index: %w", err)
	}
	plog.Info("Built indices", "instructions", ix.TotalInstructions(), "duration", time.Since(start).Round(time.Millisecond))
	tracker := progress.NewTracker(ix.RunID, ix.SourceNames())

	if dryRun {
		return ix, tracker, false, nil
	}
	if progress.Exists(p.StateDir) {
		plog.Info("Discarding checkpoint of a previous run", "state_dir", p.StateDir)
		if err := progress.Remove(p.StateDir); err != nil {
			plog.Warn("Failed to discard stale checkpoint", "error", err)
		}
	}
	if err := ix.Save(p.StateDir, p.IndexCompression); err != nil {
		return nil, nil, false, err
	}
	return ix, tracker, false, nil
}

func (r *Runner) copy(ctx context.Context, p *planner.RunPlan, ix *index.Index, tracker *progress.Tracker, remaining uint64) ([]copier.Failure, error) {
	m := metrics.NewCopyMetrics(p.FormatBytes)
	if p.MetricsInterval > 0 {
		m.StartProgress("Copy progress", p.MetricsInterval)
	}
	cp := r.newCopier(m, remaining)

	plog.Info("Copying files", "instructions", ix.TotalInstructions(), "bytes", p.FormatBytes(remaining))
	checkpointer := progress.StartCheckpointer(tracker, p.StateDir, p.CheckpointInterval)
	res, copyErr := cp.Copy(ctx, ix, tracker)
	checkpointer.Stop()
	m.StopProgress()

	var failures []copier.Failure
	if res != nil {
		failures = res.Failures
	}

	if copyErr != nil {
		if err := checkpointer.Flush(); err != nil {
			plog.Warn("Failed to write final checkpoint", "error", err)
		}
		m.LogSummary("Copy stopped")
		if ctx.Err() != nil {
			plog.Notice("Run interrupted, continue it with --continue", "state_dir", p.StateDir)
			return failures, ctx.Err()
		}
		return failures, errors.Errorf("copy failed: %w", copyErr)
	}

	if err := index.Remove(p.StateDir); err != nil {
		plog.Warn("Failed to remove index", "error", err)
	}
	if err := progress.Remove(p.StateDir); err != nil {
		plog.Warn("Failed to remove checkpoint", "error", err)
	}

	for _, f := range failures {
		plog.Error("File was not copied", "source", f.Source, "file", f.Instruction.Source, "destination", f.Instruction.Destination, "error", f.Err)
	}
	m.LogSummary("Copy finished")
	return failures, nil
}

// LoadCheckpoint reads the index and progress of an interrupted run from
// stateDir. A missing index yields ErrNothingToResume. A missing or
// unreadable progress file restarts every source at zero.
func LoadCheckpoint(stateDir string) (*index.Index, *progress.Tracker, error) {
	ix, err := index.Load(stateDir)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return nil, nil, hints.Wrap(errors.WithDetails(ErrNothingToResume, "state_dir", stateDir))
		}
		return nil, nil, err
	}

	snap, err := progress.Load(stateDir)
	if err != nil {
		if !errors.Is(err, artifact.ErrNotFound) {
			plog.Warn("Ignoring unreadable checkpoint, starting every source from the beginning", "error", err)
		}
		snap = nil
	}
	return ix, progress.Restore(ix.RunID, ix.SourceNames(), snap), nil
}

// acquireStateLock locks stateDir. It returns a nil release function when
// another run holds the lock.
func acquireStateLock(ctx context.Context, stateDir string) (func(), error) {
	plog.Debug("Attempting to acquire lock", "path", stateDir)
	lock, err := lockfile.Acquire(ctx, stateDir, buildinfo.AppID, "run")
	if err != nil {
		var lockErr *lockfile.ErrLockActive
		if errors.As(err, &lockErr) {
			plog.Warn("Another run is using this state directory, skipping run", "details", lockErr.Error())
			return nil, nil
		}
		return nil, errors.Errorf("failed to acquire lock: %w", err)
	}
	plog.Debug("Lock acquired")
	return lock.Release, nil
}
