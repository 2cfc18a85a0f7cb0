// Package lockfile guards a state directory so that only one run at a time can
// own its index and progress checkpoint.
//
// The lock is a small JSON file created with O_EXCL. While held, a heartbeat
// refreshes its timestamp; a lock whose timestamp is older than staleTimeout is
// considered abandoned by a crashed run and may be taken over.
package lockfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/artifact"
	"github.com/paulschiretz/pgl-sortbackup/pkg/plog"
	"github.com/paulschiretz/pgl-sortbackup/pkg/util"
)

// LockFileName is the name of the lock file created in the state directory.
const LockFileName = ".~pgl-sortbackup.lock"

// LockContent is the JSON body of the lock file.
type LockContent struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	AppID      string    `json:"appID"`
	Command    string    `json:"command,omitempty"`
	LastUpdate time.Time `json:"lastUpdate"`
	Nonce      string    `json:"nonce"`
}

// ErrLockActive is returned when another live run holds the lock.
type ErrLockActive struct {
	PID       int64
	Hostname  string
	AppID     string
	Command   string
	TimeSince time.Duration
}

func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("state directory is in use by %s (%s) PID %d on host '%s', last updated %s ago",
		e.AppID, e.Command, e.PID, e.Hostname, e.TimeSince.Truncate(time.Second))
}

var (
	// ErrLostRace is returned when a concurrent takeover of a stale lock won.
	ErrLostRace = errors.Base("lost race during stale lock takeover")
	// ErrCorruptLockFile marks a lock file that stays empty or unparsable.
	ErrCorruptLockFile = errors.Base("lock file is corrupt or empty")
)

// Tests shorten these.
var (
	heartbeatInterval = 1 * time.Minute
	staleTimeout      = 3 * heartbeatInterval
	retryDelay        = 100 * time.Millisecond
)

// Lock is a held state-directory lock.
type Lock struct {
	path    string
	content LockContent

	mu     sync.Mutex
	held   bool
	cancel context.CancelFunc
	done   chan struct{}
}

// Acquire takes the lock in dir. command is recorded for diagnostics ("run", "plan").
// It returns *ErrLockActive when another live run owns the directory.
func Acquire(ctx context.Context, dir, appID, command string) (*Lock, error) {
	if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
		return nil, errors.Errorf("failed to create state directory %s: %w", dir, err)
	}
	absPath := filepath.Join(dir, LockFileName)

	const maxAttempts = 3
	for range maxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lock, err := create(absPath, appID, command)
		if err == nil {
			lock.start()
			return lock, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Errorf("failed to create lock file %s: %w", absPath, err)
		}

		current, readErr := readContent(absPath)
		judged := &current
		switch {
		case readErr == nil:
			if age := time.Since(current.LastUpdate); age < staleTimeout {
				return nil, &ErrLockActive{
					PID:       current.PID,
					Hostname:  current.Hostname,
					AppID:     current.AppID,
					Command:   current.Command,
					TimeSince: age,
				}
			}
			plog.Warn("Found stale lock, attempting takeover", "pid", current.PID, "host", current.Hostname)
		case errors.Is(readErr, ErrCorruptLockFile):
			plog.Warn("Found corrupt lock file, treating as stale", "path", absPath, "error", readErr)
			judged = nil
		case os.IsNotExist(readErr):
			// Released between our create and read.
			continue
		default:
			time.Sleep(retryDelay)
			continue
		}

		lock, err = takeover(absPath, judged, appID, command)
		if err != nil {
			if errors.Is(err, ErrLostRace) {
				plog.Debug("Lock takeover race lost, retrying")
			} else {
				plog.Warn("Lock takeover failed, retrying", "error", err)
			}
			time.Sleep(retryDelay)
			continue
		}
		lock.start()
		return lock, nil
	}
	return nil, errors.Errorf("failed to acquire lock %s after %d attempts", absPath, maxAttempts)
}

func newContent(appID, command string) (LockContent, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return LockContent{}, errors.Errorf("failed to read hostname: %w", err)
	}
	return LockContent{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		AppID:      appID,
		Command:    command,
		LastUpdate: time.Now().UTC(),
		Nonce:      uuid.NewString(),
	}, nil
}

// create claims a free lock with O_EXCL.
func create(absPath, appID, command string) (*Lock, error) {
	f, err := os.OpenFile(absPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := newContent(appID, command)
	if err != nil {
		os.Remove(absPath)
		return nil, err
	}
	if err := json.NewEncoder(f).Encode(content); err != nil {
		os.Remove(absPath)
		return nil, errors.Errorf("failed to write lock content: %w", err)
	}
	return &Lock{path: absPath, content: content, held: true}, nil
}

// takeover moves the stale lock aside to a tombstone, checks that the
// tombstone is the lock judged stale, then claims the path with O_EXCL.
// Only one contender's rename of a given file can succeed. judged is nil when
// the lock was corrupt.
func takeover(absPath string, judged *LockContent, appID, command string) (*Lock, error) {
	tombstone := absPath + ".stale-" + uuid.NewString()
	if err := os.Rename(absPath, tombstone); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrLostRace
		}
		return nil, errors.Errorf("failed to move stale lock aside: %w", err)
	}

	moved, readErr := readContent(tombstone)
	if !sameLock(judged, moved, readErr) {
		// Another contender already replaced the stale lock, give it back.
		if err := os.Rename(tombstone, absPath); err != nil {
			plog.Warn("Failed to restore lock file", "path", absPath, "error", err)
		}
		return nil, ErrLostRace
	}
	if err := os.Remove(tombstone); err != nil {
		plog.Warn("Failed to remove stale lock", "path", tombstone, "error", err)
	}

	lock, err := create(absPath, appID, command)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrLostRace
		}
		return nil, errors.Errorf("failed to create lock file %s: %w", absPath, err)
	}
	plog.Debug("Took over stale lock", "path", absPath)
	return lock, nil
}

// sameLock reports whether the content read from a tombstone is the lock that
// was judged stale.
func sameLock(judged *LockContent, moved LockContent, readErr error) bool {
	if judged == nil {
		return errors.Is(readErr, ErrCorruptLockFile)
	}
	return readErr == nil && moved.Nonce == judged.Nonce && moved.LastUpdate.Equal(judged.LastUpdate)
}

func (l *Lock) start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.heartbeat(ctx, heartbeatInterval)
}

func (l *Lock) heartbeat(ctx context.Context, interval time.Duration) {
	defer close(l.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			l.content.LastUpdate = time.Now().UTC()
			content := l.content
			l.mu.Unlock()
			if err := artifact.Write(l.path, content, artifact.None); err != nil {
				plog.Warn("Heartbeat failed to update lock file", "path", l.path, "error", err)
			}
		}
	}
}

// Release stops the heartbeat and removes the lock file. Safe to call more than once.
func (l *Lock) Release() {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return
	}
	l.held = false
	l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
		<-l.done
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
		return
	}
	plog.Debug("Lock released", "path", l.path)
}

// readContent reads the lock file, retrying briefly over a file caught empty
// or half-written mid-update.
func readContent(absPath string) (LockContent, error) {
	var lastErr error
	for range 3 {
		data, err := os.ReadFile(absPath)
		if err != nil {
			return LockContent{}, err
		}
		if len(data) == 0 {
			lastErr = errors.New("lock file is empty")
			time.Sleep(50 * time.Millisecond)
			continue
		}
		var content LockContent
		if err := json.Unmarshal(data, &content); err != nil {
			lastErr = err
			time.Sleep(50 * time.Millisecond)
			continue
		}
		return content, nil
	}
	return LockContent{}, errors.Errorf("%w: %s", ErrCorruptLockFile, lastErr)
}
