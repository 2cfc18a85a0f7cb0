// Package planner turns the configuration and command line options into the
// plan the engine executes.
package planner

import (
	"path/filepath"
	"runtime"
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/artifact"
	"github.com/paulschiretz/pgl-sortbackup/pkg/config"
	"github.com/paulschiretz/pgl-sortbackup/pkg/progress"
	"github.com/paulschiretz/pgl-sortbackup/pkg/util"
)

// DefaultStateDirName is created next to the config file when no state
// directory is given.
const DefaultStateDirName = ".pgl-sortbackup"

// Options are the command line inputs to a plan.
type Options struct {
	Mode               Mode
	ConfigPath         string
	StateDir           string
	Resume             bool
	AssumeYes          bool
	Workers            int
	CheckpointInterval time.Duration
	MetricsInterval    time.Duration
	RetryCount         int
	RetryWait          time.Duration
}

// RunPlan is everything the engine needs besides the configuration.
type RunPlan struct {
	Mode      Mode
	StateDir  string
	Resume    bool
	AssumeYes bool

	IndexWorkers       int
	CopyWorkers        int
	CheckpointInterval time.Duration
	// MetricsInterval is 0 when periodic progress logging is off.
	MetricsInterval time.Duration
	RetryCount      int
	RetryWait       time.Duration

	IndexCompression artifact.Codec
	FormatBytes      func(uint64) string

	BeforeRunHooks []string
	AfterRunHooks  []string
}

// ResolveStateDir returns the absolute state directory. An empty stateDir
// means DefaultStateDirName next to the config file.
func ResolveStateDir(stateDir, configPath string) (string, error) {
	if stateDir == "" {
		configDir := "."
		if configPath != "" {
			configDir = filepath.Dir(configPath)
		}
		stateDir = filepath.Join(configDir, DefaultStateDirName)
	}
	stateDir, err := util.ExpandPath(stateDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(stateDir)
	if err != nil {
		return "", errors.Errorf("could not resolve state directory: %w", err)
	}
	return abs, nil
}

// GenerateRunPlan validates opts against cfg and fills in defaults.
func GenerateRunPlan(cfg *config.Config, opts Options) (*RunPlan, error) {
	if opts.Workers < 0 {
		return nil, errors.Errorf("workers must not be negative, got %d", opts.Workers)
	}
	if opts.CheckpointInterval < 0 {
		return nil, errors.Errorf("checkpoint interval must not be negative, got %s", opts.CheckpointInterval)
	}
	if opts.RetryCount < 0 {
		return nil, errors.Errorf("retry count must not be negative, got %d", opts.RetryCount)
	}
	if opts.Mode == DryRun && opts.Resume {
		return nil, errors.New("a dry run cannot resume a previous run")
	}

	stateDir, err := ResolveStateDir(opts.StateDir, opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	checkpoint := opts.CheckpointInterval
	if checkpoint == 0 {
		checkpoint = progress.DefaultInterval
	}

	return &RunPlan{
		Mode:               opts.Mode,
		StateDir:           stateDir,
		Resume:             opts.Resume,
		AssumeYes:          opts.AssumeYes,
		IndexWorkers:       workers,
		CopyWorkers:        workers,
		CheckpointInterval: checkpoint,
		MetricsInterval:    opts.MetricsInterval,
		RetryCount:         opts.RetryCount,
		RetryWait:          opts.RetryWait,
		IndexCompression:   cfg.Settings.IndexCompression,
		FormatBytes:        cfg.FormatBytes,
		BeforeRunHooks:     cfg.Hooks.BeforeRun,
		AfterRunHooks:      cfg.Hooks.AfterRun,
	}, nil
}
