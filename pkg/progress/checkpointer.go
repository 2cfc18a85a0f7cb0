package progress

import (
	"sync"
	"time"

	"github.com/paulschiretz/pgl-sortbackup/pkg/plog"
)

// DefaultInterval is how often a Checkpointer saves when no interval is given.
const DefaultInterval = 15 * time.Second

// Checkpointer saves a tracker on a fixed interval until stopped.
type Checkpointer struct {
	tracker  *Tracker
	stateDir string
	interval time.Duration

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// StartCheckpointer starts saving tracker into stateDir every interval.
// Save failures are logged and the checkpointer keeps running.
func StartCheckpointer(tracker *Tracker, stateDir string, interval time.Duration) *Checkpointer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	c := &Checkpointer{
		tracker:  tracker,
		stateDir: stateDir,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Checkpointer) run() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.tracker.Save(c.stateDir); err != nil {
				plog.Warn("Failed to write checkpoint", "error", err)
				continue
			}
			plog.Debug("Wrote checkpoint", "dir", c.stateDir)
		case <-c.stopChan:
			return
		}
	}
}

// Stop ends the ticker loop and waits for it. It does not save; callers that
// need the final state on disk call Flush.
func (c *Checkpointer) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	<-c.done
}

// Flush saves the tracker immediately.
func (c *Checkpointer) Flush() error {
	return c.tracker.Save(c.stateDir)
}
