// Package progress tracks how many instructions of each source have been
// processed and persists that count as a checkpoint in the state directory.
//
// The checkpoint is advisory. A count that is behind the real progress only
// causes files to be copied again.
package progress

import (
	"sort"
	"sync/atomic"
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/artifact"
	"github.com/paulschiretz/pgl-sortbackup/pkg/plog"
)

// BaseName is the checkpoint artifact name. It is never compressed.
const BaseName = "progress.json"

// Snapshot is the persisted form of a Tracker.
type Snapshot struct {
	RunID     string            `json:"runId"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Completed map[string]uint64 `json:"completed"`
}

// Tracker owns one counter per source. The set of sources is fixed at
// construction, so the map itself is never written concurrently.
type Tracker struct {
	runID    string
	counters map[string]*atomic.Uint64
}

// NewTracker returns a tracker with all counters at zero.
func NewTracker(runID string, sources []string) *Tracker {
	t := &Tracker{
		runID:    runID,
		counters: make(map[string]*atomic.Uint64, len(sources)),
	}
	for _, s := range sources {
		t.counters[s] = new(atomic.Uint64)
	}
	return t
}

// Restore returns a tracker seeded from snap. A snapshot from another run
// is discarded with a warning and all counters start at zero.
func Restore(runID string, sources []string, snap *Snapshot) *Tracker {
	t := NewTracker(runID, sources)
	if snap == nil {
		return t
	}
	if snap.RunID != runID {
		plog.Warn("Checkpoint belongs to a different index, starting from the beginning",
			"checkpoint_run_id", snap.RunID, "index_run_id", runID)
		return t
	}
	for name, n := range snap.Completed {
		c, ok := t.counters[name]
		if !ok {
			plog.Warn("Checkpoint refers to a source that is not in the index", "source", name)
			continue
		}
		c.Store(n)
	}
	return t
}

// RunID is the id of the index this tracker belongs to.
func (t *Tracker) RunID() string { return t.runID }

// Counter returns the counter for source, or nil if the source is unknown.
func (t *Tracker) Counter(source string) *atomic.Uint64 {
	return t.counters[source]
}

// Completed returns the current count for source.
func (t *Tracker) Completed(source string) uint64 {
	if c, ok := t.counters[source]; ok {
		return c.Load()
	}
	return 0
}

// Sources returns the tracked source names, sorted.
func (t *Tracker) Sources() []string {
	names := make([]string, 0, len(t.counters))
	for name := range t.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot reads every counter. Counters are read one at a time, the result
// is not a consistent cut across sources and does not need to be.
func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{
		RunID:     t.runID,
		UpdatedAt: time.Now().UTC(),
		Completed: make(map[string]uint64, len(t.counters)),
	}
	for name, c := range t.counters {
		s.Completed[name] = c.Load()
	}
	return s
}

// Save persists the tracker's current state into stateDir.
func (t *Tracker) Save(stateDir string) error {
	snap := t.Snapshot()
	if err := artifact.Write(artifact.Path(stateDir, BaseName, artifact.None), snap, artifact.None); err != nil {
		return errors.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load reads the checkpoint from stateDir. A missing checkpoint yields an
// error matching artifact.ErrNotFound.
func Load(stateDir string) (*Snapshot, error) {
	snap := &Snapshot{}
	if err := artifact.Read(artifact.Path(stateDir, BaseName, artifact.None), snap, artifact.None); err != nil {
		return nil, err
	}
	if snap.Completed == nil {
		snap.Completed = make(map[string]uint64)
	}
	return snap, nil
}

// Exists reports whether a checkpoint is present in stateDir.
func Exists(stateDir string) bool {
	return artifact.Exists(artifact.Path(stateDir, BaseName, artifact.None))
}

// Remove deletes the checkpoint from stateDir.
func Remove(stateDir string) error {
	return artifact.Remove(artifact.Path(stateDir, BaseName, artifact.None))
}
