package cmd

import (
	"context"
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-sortbackup/pkg/config"
	"github.com/paulschiretz/pgl-sortbackup/pkg/copier"
	"github.com/paulschiretz/pgl-sortbackup/pkg/diskinfo"
	"github.com/paulschiretz/pgl-sortbackup/pkg/engine"
	"github.com/paulschiretz/pgl-sortbackup/pkg/hook"
	"github.com/paulschiretz/pgl-sortbackup/pkg/indexer"
	"github.com/paulschiretz/pgl-sortbackup/pkg/metrics"
	"github.com/paulschiretz/pgl-sortbackup/pkg/planner"
	"github.com/paulschiretz/pgl-sortbackup/pkg/plog"
)

// RunSort indexes the sources and copies the classified files.
func RunSort(ctx context.Context, opts Options) error {
	return execute(ctx, opts, planner.Copy)
}

// RunPlan indexes the sources and prints the preflight report. Nothing is
// copied and no log file, index or checkpoint is written.
func RunPlan(ctx context.Context, opts Options) error {
	return execute(ctx, opts, planner.DryRun)
}

func execute(ctx context.Context, opts Options, mode planner.Mode) error {
	setupLogging(opts)
	plog.Debug("Starting "+buildinfo.Name, "version", buildinfo.Version, "mode", mode)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return errors.Errorf("failed to load configuration: %w", err)
	}
	cfg.LogSummary()

	plan, err := planner.GenerateRunPlan(cfg, planner.Options{
		Mode:               mode,
		ConfigPath:         opts.ConfigPath,
		StateDir:           opts.StateDir,
		Resume:             opts.Resume,
		AssumeYes:          opts.AssumeYes,
		Workers:            opts.Workers,
		CheckpointInterval: opts.CheckpointInterval,
		MetricsInterval:    opts.MetricsInterval,
		RetryCount:         opts.RetryCount,
		RetryWait:          opts.RetryWait,
	})
	if err != nil {
		return err
	}

	ixr := indexer.New(cfg, nil, plan.IndexWorkers)
	ixr.SetDryRun(mode == planner.DryRun)

	runner := engine.NewRunner(
		cfg,
		ixr,
		progressCopierFactory(plan),
		diskinfo.NewSystem(),
		hook.NewExecutor(nil),
		confirmCopy(plan.FormatBytes),
	)

	startTime := time.Now()
	result, err := runner.Run(ctx, plan)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err
	}

	if result.Status == engine.StatusPlanned {
		if err := renderReport(result.Report, plan.FormatBytes); err != nil {
			return err
		}
	}
	plog.Notice(buildinfo.Name+" finished", "status", result.Status, "failures", len(result.Failures), "duration", duration)
	return nil
}

// progressCopierFactory builds a copier that drives a byte progress bar.
func progressCopierFactory(p *planner.RunPlan) engine.CopierFactory {
	return func(m metrics.Metrics, remainingBytes uint64) engine.Copier {
		return copier.New(copier.Options{
			Workers:    p.CopyWorkers,
			RetryCount: p.RetryCount,
			RetryWait:  p.RetryWait,
			Metrics:    m,
			Sink:       newProgressBar(remainingBytes, plog.IsQuiet()),
		})
	}
}
