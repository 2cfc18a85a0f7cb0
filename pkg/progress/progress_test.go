package progress

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/paulschiretz/pgl-sortbackup/pkg/artifact"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestTracker(t *testing.T) {
	t.Run("Counters Start At Zero", func(t *testing.T) {
		tr := NewTracker("run-1", []string{"b", "a"})
		assert.Equal(t, []string{"a", "b"}, tr.Sources())
		assert.Equal(t, uint64(0), tr.Completed("a"))
		assert.Nil(t, tr.Counter("missing"))
		assert.Equal(t, uint64(0), tr.Completed("missing"))
	})

	t.Run("Snapshot Reflects Counters", func(t *testing.T) {
		tr := NewTracker("run-1", []string{"a", "b"})
		tr.Counter("a").Add(3)
		tr.Counter("b").Add(1)
		snap := tr.Snapshot()
		assert.Equal(t, "run-1", snap.RunID)
		assert.Equal(t, map[string]uint64{"a": 3, "b": 1}, snap.Completed)
	})

	t.Run("Restore Same Run", func(t *testing.T) {
		snap := &Snapshot{RunID: "run-1", Completed: map[string]uint64{"a": 7, "gone": 2}}
		tr := Restore("run-1", []string{"a", "b"}, snap)
		assert.Equal(t, uint64(7), tr.Completed("a"))
		assert.Equal(t, uint64(0), tr.Completed("b"))
		assert.Nil(t, tr.Counter("gone"))
	})

	t.Run("Restore Other Run Starts Over", func(t *testing.T) {
		snap := &Snapshot{RunID: "run-0", Completed: map[string]uint64{"a": 7}}
		tr := Restore("run-1", []string{"a"}, snap)
		assert.Equal(t, uint64(0), tr.Completed("a"))
	})

	t.Run("Restore Without Snapshot", func(t *testing.T) {
		tr := Restore("run-1", []string{"a"}, nil)
		assert.Equal(t, uint64(0), tr.Completed("a"))
	})
}

func TestPersistence(t *testing.T) {
	t.Run("Happy Path - Save And Load", func(t *testing.T) {
		dir := t.TempDir()
		tr := NewTracker("run-1", []string{"a"})
		tr.Counter("a").Store(42)
		require.NoError(t, tr.Save(dir))
		assert.True(t, Exists(dir))
		assert.FileExists(t, filepath.Join(dir, BaseName))

		snap, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, "run-1", snap.RunID)
		assert.Equal(t, uint64(42), snap.Completed["a"])

		require.NoError(t, Remove(dir))
		assert.False(t, Exists(dir))
	})

	t.Run("Missing Checkpoint", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.ErrorIs(t, err, artifact.ErrNotFound)
	})

	t.Run("Corrupt Checkpoint", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, BaseName), []byte("not json"), 0644))
		_, err := Load(dir)
		assert.Error(t, err)
	})
}

func TestCheckpointer(t *testing.T) {
	t.Run("Writes On Interval", func(t *testing.T) {
		dir := t.TempDir()
		tr := NewTracker("run-1", []string{"a"})
		tr.Counter("a").Store(5)

		c := StartCheckpointer(tr, dir, 10*time.Millisecond)
		defer c.Stop()

		require.Eventually(t, func() bool {
			snap, err := Load(dir)
			return err == nil && snap.Completed["a"] == 5
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("Stop Does Not Write", func(t *testing.T) {
		dir := t.TempDir()
		tr := NewTracker("run-1", []string{"a"})
		c := StartCheckpointer(tr, dir, time.Hour)
		c.Stop()
		c.Stop()
		assert.False(t, Exists(dir))
	})

	t.Run("Flush Writes Immediately", func(t *testing.T) {
		dir := t.TempDir()
		tr := NewTracker("run-1", []string{"a"})
		c := StartCheckpointer(tr, dir, time.Hour)
		tr.Counter("a").Store(9)
		require.NoError(t, c.Flush())
		c.Stop()

		snap, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, uint64(9), snap.Completed["a"])
	})

	t.Run("Save Errors Keep It Running", func(t *testing.T) {
		// A regular file where the state directory should be.
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0644))

		tr := NewTracker("run-1", []string{"a"})
		c := StartCheckpointer(tr, filepath.Join(blocker, "state"), 5*time.Millisecond)
		time.Sleep(30 * time.Millisecond)
		c.Stop()
	})
}
