// Package hook runs the shell commands configured around a run, for example
// to mount a backup drive before copying and unmount it afterwards.
package hook

import (
	"context"
	"os"
	"os/exec"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/hints"
	"github.com/paulschiretz/pgl-sortbackup/pkg/plog"
)

var ErrNothingToExecute = hints.New("nothing to execute")

// Executor runs hook commands through the platform shell.
type Executor struct {
	// commandContext allows mocking os/exec for testing hooks.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewExecutor returns an Executor. A nil commandContext uses exec.CommandContext.
func NewExecutor(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *Executor {
	if commandContext == nil {
		commandContext = exec.CommandContext
	}
	return &Executor{commandContext: commandContext}
}

// Run executes commands in order and stops at the first failure. phase only
// labels log lines and errors.
func (e *Executor) Run(ctx context.Context, phase string, commands []string, dryRun bool) error {
	if len(commands) == 0 {
		return ErrNothingToExecute
	}

	plog.Info("Running hook commands", "phase", phase, "count", len(commands))
	for _, command := range commands {
		if err := ctx.Err(); err != nil {
			return err
		}

		if dryRun {
			plog.Info("[DRY RUN] Would execute command", "phase", phase, "command", command)
			continue
		}
		plog.Info("Executing command", "phase", phase, "command", command)

		cmd := e.createCommand(ctx, command)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			// A cancelled context kills the command; report the cancellation, not the exit status.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Errorf("%s hook command '%s' failed: %w", phase, command, err)
		}
	}
	return nil
}
