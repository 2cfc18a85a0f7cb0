package copier

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/goleak"

	"github.com/paulschiretz/pgl-sortbackup/pkg/index"
	"github.com/paulschiretz/pgl-sortbackup/pkg/metrics"
	"github.com/paulschiretz/pgl-sortbackup/pkg/plog"
	"github.com/paulschiretz/pgl-sortbackup/pkg/progress"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingSink struct {
	bytes atomic.Int64
	calls atomic.Int64
	after func()
	err   error
}

func (s *countingSink) Add64(n int64) error {
	s.bytes.Add(n)
	s.calls.Add(1)
	if s.after != nil {
		s.after()
	}
	return s.err
}

// newSource writes the given files below a fresh source root and returns a
// context with one instruction per file, in the order given.
func newSource(t *testing.T, dst string, names ...string) *index.SourceContext {
	t.Helper()
	src := t.TempDir()
	sc := index.NewSourceContext(src)
	for _, name := range names {
		p := filepath.Join(src, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte("content of "+name), 0644))
		sc.Add(index.CopyInstruction{
			Source:      p,
			Destination: filepath.Join(dst, name),
			Target:      "t",
			Size:        uint64(len("content of " + name)),
		})
	}
	return sc
}

func newIndex(sources map[string]*index.SourceContext) (*index.Index, *progress.Tracker) {
	ix := index.New()
	ix.Sources = sources
	return ix, progress.NewTracker(ix.RunID, ix.SourceNames())
}

func TestCopy(t *testing.T) {
	t.Run("Happy Path - Copies Content, Mode And Time", func(t *testing.T) {
		dst := t.TempDir()
		sc := newSource(t, dst, "a.txt", "deep/er/b.txt")
		modTime := time.Date(2020, 5, 17, 10, 0, 0, 0, time.UTC)
		require.NoError(t, os.Chtimes(sc.Instructions[0].Source, modTime, modTime))
		require.NoError(t, os.Chmod(sc.Instructions[0].Source, 0444))

		ix, tracker := newIndex(map[string]*index.SourceContext{"s": sc})
		sink := &countingSink{}
		m := metrics.NewCopyMetrics(nil)

		res, err := New(Options{Workers: 2, Sink: sink, Metrics: m}).Copy(context.Background(), ix, tracker)
		require.NoError(t, err)
		assert.Empty(t, res.Failures)
		assert.Equal(t, uint64(2), tracker.Completed("s"))
		assert.Equal(t, int64(sc.TotalBytes()), sink.bytes.Load())
		assert.Equal(t, int64(2), m.FilesCopied.Load())

		data, err := os.ReadFile(filepath.Join(dst, "deep", "er", "b.txt"))
		require.NoError(t, err)
		assert.Equal(t, "content of deep/er/b.txt", string(data))

		info, err := os.Stat(filepath.Join(dst, "a.txt"))
		require.NoError(t, err)
		assert.True(t, info.ModTime().Equal(modTime))
		assert.NotZero(t, info.Mode().Perm()&0200, "user write bit must be set")

		leftovers, err := filepath.Glob(filepath.Join(dst, ".pgl-sortbackup-*.tmp"))
		require.NoError(t, err)
		assert.Empty(t, leftovers)
	})

	t.Run("Happy Path - Existing Destination Is Overwritten", func(t *testing.T) {
		dst := t.TempDir()
		sc := newSource(t, dst, "a.txt")
		require.NoError(t, os.WriteFile(filepath.Join(dst, "a.txt"), []byte("stale"), 0644))

		ix, tracker := newIndex(map[string]*index.SourceContext{"s": sc})
		_, err := New(Options{}).Copy(context.Background(), ix, tracker)
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(dst, "a.txt"))
		require.NoError(t, err)
		assert.Equal(t, "content of a.txt", string(data))
	})

	t.Run("Progress Display Errors Do Not Stop Copying", func(t *testing.T) {
		var logBuf bytes.Buffer
		plog.SetOutput(&logBuf)
		plog.SetLevel(plog.LevelDebug)
		t.Cleanup(func() {
			plog.SetOutput(os.Stderr)
			plog.SetLevel(plog.LevelInfo)
		})

		dst := t.TempDir()
		sc := newSource(t, dst, "a.txt", "b.txt")
		ix, tracker := newIndex(map[string]*index.SourceContext{"s": sc})
		sink := &countingSink{err: errors.New("terminal closed")}

		res, err := New(Options{Sink: sink}).Copy(context.Background(), ix, tracker)
		require.NoError(t, err)
		assert.Empty(t, res.Failures)
		assert.FileExists(t, filepath.Join(dst, "a.txt"))
		assert.FileExists(t, filepath.Join(dst, "b.txt"))
		assert.Equal(t, uint64(2), tracker.Completed("s"))
		assert.Equal(t, int64(2), sink.calls.Load())
		assert.Contains(t, logBuf.String(), "Failed to update progress display")
		assert.Contains(t, logBuf.String(), "terminal closed")
	})

	t.Run("Resume Skips Completed Instructions", func(t *testing.T) {
		dst := t.TempDir()
		sc := newSource(t, dst, "0.txt", "1.txt", "2.txt", "3.txt")
		ix, tracker := newIndex(map[string]*index.SourceContext{"s": sc})
		tracker.Counter("s").Store(2)
		sink := &countingSink{}
		m := metrics.NewCopyMetrics(nil)

		res, err := New(Options{Sink: sink, Metrics: m}).Copy(context.Background(), ix, tracker)
		require.NoError(t, err)
		assert.Empty(t, res.Failures)

		assert.NoFileExists(t, filepath.Join(dst, "0.txt"))
		assert.NoFileExists(t, filepath.Join(dst, "1.txt"))
		assert.FileExists(t, filepath.Join(dst, "2.txt"))
		assert.FileExists(t, filepath.Join(dst, "3.txt"))
		assert.Equal(t, uint64(4), tracker.Completed("s"))
		assert.Equal(t, int64(2), sink.calls.Load())
		assert.Equal(t, int64(sc.RemainingBytes(2)), sink.bytes.Load())
		assert.Equal(t, int64(2), m.FilesSkipped.Load())
	})

	t.Run("Checkpoint Past The End Copies Nothing", func(t *testing.T) {
		dst := t.TempDir()
		sc := newSource(t, dst, "a.txt")
		ix, tracker := newIndex(map[string]*index.SourceContext{"s": sc})
		tracker.Counter("s").Store(10)

		_, err := New(Options{}).Copy(context.Background(), ix, tracker)
		require.NoError(t, err)
		assert.NoFileExists(t, filepath.Join(dst, "a.txt"))
	})

	t.Run("Failures Are Recorded Per Source And Do Not Stop Others", func(t *testing.T) {
		dst := t.TempDir()
		a := newSource(t, dst, "a1.txt", "a2.txt", "a3.txt")
		b := newSource(t, dst, "b1.txt", "b2.txt")
		require.NoError(t, os.Remove(a.Instructions[1].Source))
		require.NoError(t, os.Remove(b.Instructions[0].Source))

		ix, tracker := newIndex(map[string]*index.SourceContext{"a": a, "b": b})
		m := metrics.NewCopyMetrics(nil)
		res, err := New(Options{Workers: 2, Metrics: m}).Copy(context.Background(), ix, tracker)
		require.NoError(t, err)

		require.Len(t, res.Failures, 2)
		bySource := map[string]Failure{}
		for _, f := range res.Failures {
			bySource[f.Source] = f
		}
		assert.Equal(t, a.Instructions[1], bySource["a"].Instruction)
		assert.Equal(t, b.Instructions[0], bySource["b"].Instruction)
		assert.ErrorIs(t, bySource["a"].Err, os.ErrNotExist)

		assert.Equal(t, uint64(3), tracker.Completed("a"))
		assert.Equal(t, uint64(2), tracker.Completed("b"))
		assert.FileExists(t, filepath.Join(dst, "a3.txt"))
		assert.FileExists(t, filepath.Join(dst, "b2.txt"))
		assert.Equal(t, int64(2), m.FilesFailed.Load())
		assert.Equal(t, int64(3), m.FilesCopied.Load())
	})

	t.Run("Sources Sharing A Destination Directory", func(t *testing.T) {
		dst := t.TempDir()
		sources := map[string]*index.SourceContext{}
		for _, name := range []string{"a", "b", "c", "d"} {
			sources[name] = newSource(t, dst, filepath.Join("shared", name+".txt"))
		}
		ix, tracker := newIndex(sources)
		m := metrics.NewCopyMetrics(nil)

		res, err := New(Options{Workers: 4, Metrics: m}).Copy(context.Background(), ix, tracker)
		require.NoError(t, err)
		assert.Empty(t, res.Failures)
		entries, err := os.ReadDir(filepath.Join(dst, "shared"))
		require.NoError(t, err)
		assert.Len(t, entries, 4)
		assert.Equal(t, int64(1), m.DirsCreated.Load())
	})

	t.Run("Cancellation Stops Between Instructions", func(t *testing.T) {
		dst := t.TempDir()
		sc := newSource(t, dst, "0.txt", "1.txt", "2.txt")
		ix, tracker := newIndex(map[string]*index.SourceContext{"s": sc})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sink := &countingSink{after: cancel}

		_, err := New(Options{Sink: sink}).Copy(ctx, ix, tracker)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, uint64(1), tracker.Completed("s"))
		assert.FileExists(t, filepath.Join(dst, "0.txt"))
		assert.NoFileExists(t, filepath.Join(dst, "1.txt"))
	})

	t.Run("Disabled Source Is Skipped", func(t *testing.T) {
		dst := t.TempDir()
		sc := newSource(t, dst, "a.txt")
		sc.Disabled = true
		ix, tracker := newIndex(map[string]*index.SourceContext{"s": sc})

		_, err := New(Options{}).Copy(context.Background(), ix, tracker)
		require.NoError(t, err)
		assert.NoFileExists(t, filepath.Join(dst, "a.txt"))
	})

	t.Run("Error - Missing Counter", func(t *testing.T) {
		dst := t.TempDir()
		ix, _ := newIndex(map[string]*index.SourceContext{"s": newSource(t, dst, "a.txt")})
		_, err := New(Options{}).Copy(context.Background(), ix, progress.NewTracker(ix.RunID, nil))
		assert.Error(t, err)
	})

	t.Run("Retries Then Records Failure", func(t *testing.T) {
		dst := t.TempDir()
		sc := newSource(t, dst, "a.txt")
		require.NoError(t, os.Remove(sc.Instructions[0].Source))
		ix, tracker := newIndex(map[string]*index.SourceContext{"s": sc})

		res, err := New(Options{RetryCount: 2, RetryWait: time.Millisecond}).Copy(context.Background(), ix, tracker)
		require.NoError(t, err)
		require.Len(t, res.Failures, 1)
		assert.Contains(t, res.Failures[0].Err.Error(), "after 2 retries")
	})
}
