package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/paulschiretz/pgl-sortbackup/cmd"
)

func main() {
	// An interrupt cancels the run; the engine keeps a checkpoint for --continue.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, cmd.FormatError(err))
		stop()
		os.Exit(1)
	}
}
