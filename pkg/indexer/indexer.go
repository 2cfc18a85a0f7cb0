// Package indexer walks every enabled source, resolves a rule for each entry
// and records the resulting copy instructions in an index.Index.
//
// Sources are indexed concurrently. Within a source the walk is sequential,
// one directory level at a time in lexical order, so the instruction order is
// stable between runs over an unchanged tree.
package indexer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-sortbackup/pkg/config"
	"github.com/paulschiretz/pgl-sortbackup/pkg/entry"
	"github.com/paulschiretz/pgl-sortbackup/pkg/index"
	"github.com/paulschiretz/pgl-sortbackup/pkg/plog"
	"github.com/paulschiretz/pgl-sortbackup/pkg/rules"
	"github.com/paulschiretz/pgl-sortbackup/pkg/util"
)

// Indexer builds an index from a configuration.
type Indexer struct {
	cfg       *config.Config
	inspector *entry.Inspector
	workers   int
	dryRun    bool

	// logMu serializes appends to log files, which may be shared between sources.
	logMu sync.Mutex
}

// New returns an Indexer. A nil inspector reads real filesystem and EXIF
// metadata; workers <= 0 uses one worker per CPU.
func New(cfg *config.Config, inspector *entry.Inspector, workers int) *Indexer {
	if inspector == nil {
		inspector = entry.DefaultInspector()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Indexer{cfg: cfg, inspector: inspector, workers: workers}
}

// SetDryRun makes LogFile rules report the line they would append instead of
// writing it.
func (ix *Indexer) SetDryRun(dryRun bool) {
	ix.dryRun = dryRun
}

// Build indexes all sources. Disabled sources get an empty context. The first
// source that fails aborts the build and cancels the others.
func (ix *Indexer) Build(ctx context.Context) (*index.Index, error) {
	result := index.New()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)

	for _, name := range ix.cfg.SourceNames() {
		src := ix.cfg.Sources[name]
		if src.Disabled {
			sc := index.NewSourceContext(src.Path)
			sc.Disabled = true
			mu.Lock()
			result.Sources[name] = sc
			mu.Unlock()
			plog.Info("Skipping disabled source", "source", name)
			continue
		}

		g.Go(func() error {
			sc, err := ix.buildSource(gctx, name, src)
			if err != nil {
				return errors.Errorf("failed to build index for source '%s': %w", name, err)
			}
			mu.Lock()
			result.Sources[name] = sc
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (ix *Indexer) buildSource(ctx context.Context, name string, src config.Source) (*index.SourceContext, error) {
	plog.Info("Building index", "source", name, "path", src.Path)

	w := &sourceWalk{
		ctx:     ctx,
		ix:      ix,
		name:    name,
		src:     src,
		context: index.NewSourceContext(src.Path),
	}
	if err := w.walkDir(""); err != nil {
		return nil, err
	}

	plog.Info("Built index",
		"source", name,
		"instructions", len(w.context.Instructions),
		"ignored", len(w.context.Ignored),
		"bytes", ix.cfg.FormatBytes(w.context.TotalBytes()))
	return w.context, nil
}

// sourceWalk is the state of one source's walk. It is owned by a single goroutine.
type sourceWalk struct {
	ctx     context.Context
	ix      *Indexer
	name    string
	src     config.Source
	context *index.SourceContext
}

func (w *sourceWalk) walkDir(rel string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	absDir := filepath.Join(w.src.Path, rel)
	// os.ReadDir returns entries sorted by name.
	dirEntries, err := os.ReadDir(absDir)
	if err != nil {
		plog.Warn("Skipping unreadable directory", "source", w.name, "path", absDir, "error", err)
		return nil
	}

	for _, de := range dirEntries {
		childRel := filepath.Join(rel, de.Name())
		if w.src.Ignores(childRel) {
			plog.Debug("Ignoring configured path", "source", w.name, "path", childRel)
			w.context.Ignore(filepath.Join(w.src.Path, childRel))
			continue
		}

		fp := entry.New(w.src.Path, childRel, w.ix.inspector)
		if err := w.apply(fp); err != nil {
			return err
		}
	}
	return nil
}

func (w *sourceWalk) apply(fp *entry.FilePath) error {
	rule := rules.Resolve(w.ix.cfg.FileGroups, w.name, fp)
	plog.Debug("Resolved rule", "source", w.name, "path", fp.RelPath, "rule", rule)

	switch rule.Kind {
	case rules.RuleIgnore:
		w.context.Ignore(fp.AbsPath)
		return nil

	case rules.RuleTraverse:
		if !fp.IsDir() {
			// Nothing below a file.
			return nil
		}
		return w.walkDir(fp.RelPath)

	case rules.RuleCopyExact:
		base, err := w.ix.cfg.Target(rule.Target)
		if err != nil {
			return err
		}
		w.add(rule.Target, fp, filepath.Join(base, fp.RelPath))
		return nil

	case rules.RuleCopyTo:
		base, err := w.ix.cfg.Target(rule.Target)
		if err != nil {
			return err
		}
		dest, err := rules.Render(rule.Path, fp, base)
		if err != nil {
			return errors.WithDetails(
				errors.Errorf("cannot build destination for %s: %w", fp.AbsPath, err),
				"source", w.name, "file", fp.AbsPath)
		}
		w.add(rule.Target, fp, dest)
		return nil

	case rules.RuleLogFile:
		return w.appendLog(rule, fp)

	default:
		return errors.Errorf("unhandled rule %s for %s", rule.Kind, fp.AbsPath)
	}
}

func (w *sourceWalk) add(target string, fp *entry.FilePath, dest string) {
	w.context.Add(index.CopyInstruction{
		Source:      fp.AbsPath,
		Destination: dest,
		Target:      target,
		Size:        uint64(fp.Size()),
	})
}

// appendLog writes one line naming fp to the log file rendered from the rule.
func (w *sourceWalk) appendLog(rule rules.Rule, fp *entry.FilePath) error {
	base, err := w.ix.cfg.Target(rule.Target)
	if err != nil {
		return err
	}
	logPath, err := rules.Render(rule.Path, fp, base)
	if err != nil {
		return errors.WithDetails(
			errors.Errorf("cannot build log file path for %s: %w", fp.AbsPath, err),
			"source", w.name, "file", fp.AbsPath)
	}

	line := fp.RelPath
	if rule.FullPath {
		line = fp.AbsPath
	}

	if w.ix.dryRun {
		plog.Info("[DRY RUN] Would append to log file", "source", w.name, "log_file", logPath, "line", line)
		return nil
	}

	w.ix.logMu.Lock()
	defer w.ix.logMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(logPath), util.UserWritableDirPerms); err != nil {
		return errors.Errorf("failed to create directory for log file %s: %w", logPath, err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return errors.Errorf("failed to open log file at %s: %w", logPath, err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return errors.Errorf("failed to write to log file %s: %w", logPath, err)
	}
	if err := f.Close(); err != nil {
		return errors.Errorf("failed to close log file %s: %w", logPath, err)
	}
	plog.Debug("Logged file", "source", w.name, "path", fp.RelPath, "log_file", logPath)
	return nil
}
