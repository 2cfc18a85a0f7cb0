// Package copier executes an index: it copies every instruction of every
// source, in order, and advances the source's progress counter after each
// attempt so an interrupted run can be resumed from the checkpoint.
//
// Sources run in parallel; instructions within a source run sequentially.
// A failed copy is logged and recorded but never stops the run.
package copier

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/paulschiretz/pgl-sortbackup/pkg/index"
	"github.com/paulschiretz/pgl-sortbackup/pkg/metrics"
	"github.com/paulschiretz/pgl-sortbackup/pkg/plog"
	"github.com/paulschiretz/pgl-sortbackup/pkg/pool"
	"github.com/paulschiretz/pgl-sortbackup/pkg/progress"
	"github.com/paulschiretz/pgl-sortbackup/pkg/sharded"
	"github.com/paulschiretz/pgl-sortbackup/pkg/util"
)

const (
	minBufferSize = 4 * 1024
	maxBufferSize = 1024 * 1024
)

// ProgressSink receives the byte size of every processed instruction.
// *progressbar.ProgressBar satisfies it.
type ProgressSink interface {
	Add64(n int64) error
}

type noopSink struct{}

func (noopSink) Add64(int64) error { return nil }

// Options configures a Copier.
type Options struct {
	// Workers bounds how many sources copy at the same time. <= 0 means one per CPU.
	Workers    int
	RetryCount int
	RetryWait  time.Duration
	Metrics    metrics.Metrics
	Sink       ProgressSink
}

// Failure is a single instruction that could not be copied.
type Failure struct {
	Source      string
	Instruction index.CopyInstruction
	Err         error
}

// Result lists the failures of a copy run.
type Result struct {
	Failures []Failure
}

// Copier runs copy instructions.
type Copier struct {
	workers    int
	retryCount int
	retryWait  time.Duration
	metrics    metrics.Metrics
	sink       ProgressSink
	buffers    *pool.CopyBufferPool

	// createdDirs memoizes destination directories already created in this run.
	createdDirs *sharded.Set
	// mkdirGroup collapses concurrent creation of the same directory by several sources.
	mkdirGroup singleflight.Group

	failMu   sync.Mutex
	failures []Failure
}

// New returns a Copier.
func New(opts Options) *Copier {
	c := &Copier{
		workers:     opts.Workers,
		retryCount:  opts.RetryCount,
		retryWait:   opts.RetryWait,
		metrics:     opts.Metrics,
		sink:        opts.Sink,
		buffers:     pool.NewCopyBufferPool(minBufferSize, maxBufferSize),
		createdDirs: sharded.NewSet(64),
	}
	if c.workers <= 0 {
		c.workers = runtime.NumCPU()
	}
	if c.metrics == nil {
		c.metrics = &metrics.NoopMetrics{}
	}
	if c.sink == nil {
		c.sink = noopSink{}
	}
	return c
}

// Copy processes every enabled source of ix starting at the offset held by
// its counter in tracker. It returns when all sources are done or ctx is
// cancelled; cancellation stops each source between two instructions and is
// returned as the error. Per-file failures are only reported in the Result.
func (c *Copier) Copy(ctx context.Context, ix *index.Index, tracker *progress.Tracker) (*Result, error) {
	var names []string
	for _, name := range ix.SourceNames() {
		sc := ix.Sources[name]
		if sc.Disabled || len(sc.Instructions) == 0 {
			continue
		}
		if tracker.Counter(name) == nil {
			return nil, errors.Errorf("no progress counter for source '%s'", name)
		}
		names = append(names, name)
	}

	var g errgroup.Group
	g.SetLimit(c.workers)
	for _, name := range names {
		sc, done := ix.Sources[name], tracker.Counter(name)
		g.Go(func() error {
			return c.copySource(ctx, name, sc, done)
		})
	}

	err := g.Wait()

	c.failMu.Lock()
	result := &Result{Failures: append([]Failure(nil), c.failures...)}
	c.failMu.Unlock()
	return result, err
}

type counter interface {
	Load() uint64
	Add(delta uint64) uint64
}

func (c *Copier) copySource(ctx context.Context, name string, sc *index.SourceContext, done counter) error {
	total := uint64(len(sc.Instructions))
	start := done.Load()
	if start > total {
		plog.Warn("Checkpoint is past the end of the source, nothing left to copy", "source", name, "checkpoint", start, "instructions", total)
		return nil
	}
	if start > 0 {
		plog.Info("Resuming source", "source", name, "skipping", start, "of", total)
		c.metrics.AddFilesSkipped(int64(start))
	} else {
		plog.Info("Copying source", "source", name, "instructions", total)
	}

	for i := start; i < total; i++ {
		if err := ctx.Err(); err != nil {
			plog.Info("Stopping source", "source", name, "completed", i, "of", total)
			return err
		}

		ins := sc.Instructions[i]
		if err := c.copyFile(ins); err != nil {
			plog.Warn("Failed to copy file", "source", name, "from", ins.Source, "to", ins.Destination, "error", err)
			c.recordFailure(Failure{Source: name, Instruction: ins, Err: err})
			c.metrics.AddFilesFailed(1)
		} else {
			plog.Debug("Copied file", "source", name, "from", ins.Source, "to", ins.Destination)
			c.metrics.AddFilesCopied(1)
			c.metrics.AddBytesWritten(int64(ins.Size))
		}

		done.Add(1)
		if err := c.sink.Add64(int64(ins.Size)); err != nil {
			plog.Debug("Failed to update progress display", "source", name, "error", err)
		}
	}

	plog.Info("Finished source", "source", name, "instructions", total)
	return nil
}

func (c *Copier) recordFailure(f Failure) {
	c.failMu.Lock()
	defer c.failMu.Unlock()
	c.failures = append(c.failures, f)
}

// ensureDir creates dir once per run, even when several sources ask for it concurrently.
func (c *Copier) ensureDir(dir string) error {
	if c.createdDirs.Has(dir) {
		return nil
	}
	_, err, _ := c.mkdirGroup.Do(dir, func() (any, error) {
		if c.createdDirs.Has(dir) {
			return nil, nil
		}
		if _, statErr := os.Stat(dir); os.IsNotExist(statErr) {
			c.metrics.AddDirsCreated(1)
		}
		if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
			return nil, errors.Errorf("failed to ensure destination directory %s exists: %w", dir, err)
		}
		c.createdDirs.Store(dir)
		return nil, nil
	})
	return err
}

// copyFile copies one instruction, always overwriting the destination.
func (c *Copier) copyFile(ins index.CopyInstruction) error {
	var lastErr error
	for i := 0; i <= c.retryCount; i++ {
		if i > 0 {
			plog.Warn("Retrying file copy", "file", ins.Source, "attempt", i, "of", c.retryCount, "after", c.retryWait)
			time.Sleep(c.retryWait)
		}
		if lastErr = c.copyFileOnce(ins); lastErr == nil {
			return nil
		}
	}
	if c.retryCount > 0 {
		return errors.Errorf("failed after %d retries: %w", c.retryCount, lastErr)
	}
	return lastErr
}

// copyFileOnce writes to a temp file next to the destination and renames it
// into place, so a destination is never left half written.
func (c *Copier) copyFileOnce(ins index.CopyInstruction) error {
	src, trg := ins.Source, ins.Destination

	in, err := os.Open(src)
	if err != nil {
		return errors.Errorf("failed to open source file %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.Errorf("failed to stat source file %s: %w", src, err)
	}
	if !info.Mode().IsRegular() {
		return errors.Errorf("source %s is not a regular file", src)
	}

	trgDir := filepath.Dir(trg)
	if err := c.ensureDir(trgDir); err != nil {
		return err
	}

	out, err := os.CreateTemp(trgDir, ".pgl-sortbackup-*.tmp")
	if err != nil {
		return errors.Errorf("failed to create temporary file in %s: %w", trgDir, err)
	}
	tempPath := out.Name()
	defer func() {
		if tempPath != "" {
			os.Remove(tempPath)
		}
	}()

	bufPtr := c.buffers.Get(info.Size())
	defer c.buffers.Put(bufPtr)

	if _, err := io.CopyBuffer(out, in, *bufPtr); err != nil {
		out.Close()
		return errors.Errorf("failed to copy content from %s to %s: %w", src, tempPath, err)
	}
	if err := out.Chmod(util.WithUserWritePermission(info.Mode().Perm())); err != nil {
		out.Close()
		return errors.Errorf("failed to set permissions on temporary file %s: %w", tempPath, err)
	}
	// Close before Chtimes, flushing may touch the modification time.
	if err := out.Close(); err != nil {
		return errors.Errorf("failed to close temporary file %s: %w", tempPath, err)
	}
	if err := os.Chtimes(tempPath, info.ModTime(), info.ModTime()); err != nil {
		return errors.Errorf("failed to set timestamps on %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, trg); err != nil {
		return errors.Errorf("failed to move %s into place: %w", trg, err)
	}
	tempPath = ""
	return nil
}
