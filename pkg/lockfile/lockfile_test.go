package lockfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/goleak"

	"github.com/paulschiretz/pgl-sortbackup/pkg/util"
)

func writeStaleLock(t *testing.T, dir string) string {
	t.Helper()
	lockPath := filepath.Join(dir, LockFileName)
	data, err := json.Marshal(LockContent{
		PID:        12345,
		Hostname:   "stale-host",
		AppID:      "stale-app",
		LastUpdate: time.Now().Add(-(staleTimeout + time.Minute)),
		Nonce:      "stale-nonce",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(lockPath, data, util.UserWritableFilePerms))
	return lockPath
}

func TestAcquireAndRelease(t *testing.T) {
	defer goleak.VerifyNone(t)
	dir := filepath.Join(t.TempDir(), "state")

	lock, err := Acquire(context.Background(), dir, "test-app", "run")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, LockFileName))

	lock.Release()
	lock.Release()
	assert.NoFileExists(t, filepath.Join(dir, LockFileName))
}

func TestContention(t *testing.T) {
	dir := t.TempDir()

	lock1, err := Acquire(context.Background(), dir, "app-1", "run")
	require.NoError(t, err)
	defer lock1.Release()

	_, err = Acquire(context.Background(), dir, "app-2", "plan")
	require.Error(t, err)

	var lockErr *ErrLockActive
	require.True(t, errors.As(err, &lockErr), "expected *ErrLockActive, got %T", err)
	assert.Equal(t, "app-1", lockErr.AppID)
	assert.Equal(t, "run", lockErr.Command)
}

func TestStaleLockTakeover(t *testing.T) {
	dir := t.TempDir()
	lockPath := writeStaleLock(t, dir)

	lock, err := Acquire(context.Background(), dir, "new-app", "run")
	require.NoError(t, err)
	defer lock.Release()

	content, err := readContent(lockPath)
	require.NoError(t, err)
	assert.Equal(t, "new-app", content.AppID)
}

func TestCorruptLockTakeover(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFileName), []byte("{"), util.UserWritableFilePerms))

	lock, err := Acquire(context.Background(), dir, "new-app", "run")
	require.NoError(t, err)
	lock.Release()
}

func TestStaleLockContention(t *testing.T) {
	defer goleak.VerifyNone(t)

	contend := func(t *testing.T, dir string, contenders int) []*Lock {
		t.Helper()
		var wg sync.WaitGroup
		acquired := make(chan *Lock, contenders)
		for range contenders {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if lock, err := Acquire(context.Background(), dir, "contender", "run"); err == nil {
					acquired <- lock
				}
			}()
		}
		wg.Wait()
		close(acquired)

		var locks []*Lock
		for lock := range acquired {
			locks = append(locks, lock)
		}
		t.Cleanup(func() {
			for _, lock := range locks {
				lock.Release()
			}
		})
		return locks
	}

	t.Run("Stale Lock Has Exactly One Winner", func(t *testing.T) {
		for range 20 {
			dir := t.TempDir()
			writeStaleLock(t, dir)
			locks := contend(t, dir, 4)
			require.Len(t, locks, 1, "exactly one contender may win")
			locks[0].Release()
			matches, err := filepath.Glob(filepath.Join(dir, LockFileName+".stale-*"))
			require.NoError(t, err)
			assert.Empty(t, matches, "tombstones must be cleaned up")
		}
	})

	t.Run("Corrupt Lock Has Exactly One Winner", func(t *testing.T) {
		for range 10 {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, LockFileName), []byte("{"), util.UserWritableFilePerms))
			locks := contend(t, dir, 3)
			require.Len(t, locks, 1, "exactly one contender may win")
		}
	})
}

func TestTakeoverOfReplacedLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := writeStaleLock(t, dir)
	judged, err := readContent(lockPath)
	require.NoError(t, err)

	// Another run took over first and wrote a fresh lock.
	fresh := judged
	fresh.Nonce = "fresh-nonce"
	fresh.LastUpdate = time.Now().UTC()
	data, err := json.Marshal(fresh)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(lockPath, data, util.UserWritableFilePerms))

	_, err = takeover(lockPath, &judged, "late-app", "run")
	require.ErrorIs(t, err, ErrLostRace)

	current, err := readContent(lockPath)
	require.NoError(t, err)
	assert.Equal(t, "fresh-nonce", current.Nonce, "the fresh lock must be restored")
}

func TestTakeoverOfVanishedLock(t *testing.T) {
	dir := t.TempDir()
	judged := LockContent{Nonce: "gone"}
	_, err := takeover(filepath.Join(dir, LockFileName), &judged, "app", "run")
	assert.ErrorIs(t, err, ErrLostRace)
}

func TestHeartbeatKeepsLockFresh(t *testing.T) {
	origHeartbeat, origStale := heartbeatInterval, staleTimeout
	heartbeatInterval = 50 * time.Millisecond
	staleTimeout = 3 * heartbeatInterval
	t.Cleanup(func() {
		heartbeatInterval = origHeartbeat
		staleTimeout = origStale
	})

	dir := t.TempDir()
	lock, err := Acquire(context.Background(), dir, "app-1", "run")
	require.NoError(t, err)
	defer lock.Release()

	time.Sleep(staleTimeout + 50*time.Millisecond)

	_, err = Acquire(context.Background(), dir, "app-2", "run")
	var lockErr *ErrLockActive
	require.True(t, errors.As(err, &lockErr), "expected *ErrLockActive, got %v", err)
}

func TestAcquireCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Acquire(ctx, t.TempDir(), "app", "run")
	assert.ErrorIs(t, err, context.Canceled)
}
