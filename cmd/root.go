// Package cmd holds the command line surface of pgl-sortbackup. Each command
// is a thin cobra wrapper around a RunX function.
package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/paulschiretz/pgl-sortbackup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-sortbackup/pkg/config"
	"github.com/paulschiretz/pgl-sortbackup/pkg/plog"
)

// Options are the command line flags shared by the commands.
type Options struct {
	ConfigPath string
	StateDir   string
	LogLevel   string
	Quiet      bool

	AssumeYes          bool
	Resume             bool
	Workers            int
	CheckpointInterval time.Duration
	MetricsInterval    time.Duration
	RetryCount         int
	RetryWait          time.Duration
}

// NewRootCommand returns the pgl-sortbackup command tree. The root command
// itself performs a run.
func NewRootCommand() *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:     "pgl-sortbackup",
		Short:   "Copy files from multiple sources to multiple targets using rule-driven file groups",
		Version: buildinfo.Version,
		Long: `pgl-sortbackup walks every configured source, classifies each entry with the
first matching file group and copies it to its target. Runs are indexed first,
checkpointed while copying and can be continued after an interruption.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, _ []string) error {
			return RunSort(c.Context(), *opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", config.DefaultConfigFileName, "Path to the configuration file")
	pf.StringVar(&opts.StateDir, "state-dir", "", "Directory for the index, checkpoint and lock (default: .pgl-sortbackup next to the config file)")
	pf.StringVar(&opts.LogLevel, "log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'")
	pf.BoolVarP(&opts.Quiet, "quiet", "q", false, "Only log notices, warnings and errors")

	f := root.Flags()
	f.BoolVarP(&opts.AssumeYes, "yes", "y", false, "Answer all questions with yes (non-interactive mode)")
	f.BoolVarP(&opts.Resume, "continue", "c", false, "Continue a previously interrupted run")
	f.IntVar(&opts.Workers, "workers", 0, "Number of sources indexed and copied in parallel (0 = one per CPU)")
	f.DurationVar(&opts.CheckpointInterval, "checkpoint-interval", 0, "How often copy progress is saved (0 = 15s)")
	f.DurationVar(&opts.MetricsInterval, "metrics-interval", 0, "Log copy progress at this interval (0 = off)")
	f.IntVar(&opts.RetryCount, "retry-count", 0, "Number of retries for failed file copies")
	f.DurationVar(&opts.RetryWait, "retry-wait", time.Second, "Time to wait between retries")

	root.AddCommand(
		newPlanCommand(opts),
		newInitCommand(opts),
		newStatusCommand(opts),
		newVersionCommand(),
	)
	return root
}

func newPlanCommand(opts *Options) *cobra.Command {
	c := &cobra.Command{
		Use:   "plan",
		Short: "Build the index and print the preflight report without copying or writing anything",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return RunPlan(c.Context(), *opts)
		},
	}
	c.Flags().IntVar(&opts.Workers, "workers", 0, "Number of sources indexed in parallel (0 = one per CPU)")
	return c
}

func newInitCommand(opts *Options) *cobra.Command {
	var force bool
	c := &cobra.Command{
		Use:   "init [path]",
		Short: "Write an example configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			path := opts.ConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			return RunInit(path, force)
		},
	}
	c.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	return c
}

func newStatusCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what an interrupted run has left to copy",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return RunStatus(*opts)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return RunVersion(buildinfo.Name, buildinfo.Version)
		},
	}
}

// setupLogging applies the logging flags.
func setupLogging(opts Options) {
	plog.SetLevel(plog.LevelFromString(opts.LogLevel))
	plog.SetQuiet(opts.Quiet)
}
