// Package index holds the per-source list of copy instructions produced by
// the indexer and its persisted form in the state directory.
//
// Instruction order is traversal order. Progress checkpoints store only a
// count per source, so the order must survive a save and load unchanged.
package index

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/artifact"
	"github.com/paulschiretz/pgl-sortbackup/pkg/plog"
)

// BaseName is the artifact name before the codec extension.
const BaseName = "index.json"

// CopyInstruction copies one source file to Destination.
type CopyInstruction struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Target      string `json:"target"`
	Size        uint64 `json:"size"`
}

// SourceContext is the indexing result for one source.
type SourceContext struct {
	Root         string            `json:"root"`
	Disabled     bool              `json:"disabled,omitempty"`
	Instructions []CopyInstruction `json:"instructions"`
	Ignored      []string          `json:"ignored"`
	TargetBytes  map[string]uint64 `json:"targetBytes"`
}

// NewSourceContext returns an empty context rooted at root.
func NewSourceContext(root string) *SourceContext {
	return &SourceContext{
		Root:         root,
		Instructions: []CopyInstruction{},
		Ignored:      []string{},
		TargetBytes:  make(map[string]uint64),
	}
}

// Add appends an instruction and accounts its size to the target.
func (c *SourceContext) Add(ins CopyInstruction) {
	c.Instructions = append(c.Instructions, ins)
	c.TargetBytes[ins.Target] += ins.Size
}

// Ignore records an ignored absolute path.
func (c *SourceContext) Ignore(absPath string) {
	c.Ignored = append(c.Ignored, absPath)
}

// TotalBytes is the sum over all instructions.
func (c *SourceContext) TotalBytes() uint64 {
	var total uint64
	for _, b := range c.TargetBytes {
		total += b
	}
	return total
}

// RemainingTargetBytes returns the per-target bytes of the instructions at
// offset done and beyond.
func (c *SourceContext) RemainingTargetBytes(done uint64) map[string]uint64 {
	remaining := make(map[string]uint64, len(c.TargetBytes))
	for i := clampOffset(done, len(c.Instructions)); i < len(c.Instructions); i++ {
		ins := c.Instructions[i]
		remaining[ins.Target] += ins.Size
	}
	return remaining
}

// RemainingBytes returns the bytes of the instructions at offset done and beyond.
func (c *SourceContext) RemainingBytes(done uint64) uint64 {
	var total uint64
	for _, b := range c.RemainingTargetBytes(done) {
		total += b
	}
	return total
}

func clampOffset(done uint64, n int) int {
	if done > uint64(n) {
		return n
	}
	return int(done)
}

// Index maps source names to their contexts.
type Index struct {
	RunID     string                    `json:"runId"`
	CreatedAt time.Time                 `json:"createdAt"`
	Sources   map[string]*SourceContext `json:"sources"`
}

// New returns an empty index with a fresh run id.
func New() *Index {
	return &Index{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Sources:   make(map[string]*SourceContext),
	}
}

// SourceNames returns the source names in sorted order.
func (ix *Index) SourceNames() []string {
	names := make([]string, 0, len(ix.Sources))
	for name := range ix.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalInstructions counts instructions across all sources.
func (ix *Index) TotalInstructions() int {
	n := 0
	for _, c := range ix.Sources {
		n += len(c.Instructions)
	}
	return n
}

// TotalBytes sums bytes across all sources.
func (ix *Index) TotalBytes() uint64 {
	var total uint64
	for _, c := range ix.Sources {
		total += c.TotalBytes()
	}
	return total
}

// Save writes the index into stateDir with the given codec and removes
// copies left behind under other codecs.
func (ix *Index) Save(stateDir string, codec artifact.Codec) error {
	path := artifact.Path(stateDir, BaseName, codec)
	if err := artifact.Write(path, ix, codec); err != nil {
		return errors.Errorf("failed to save index: %w", err)
	}
	for _, other := range codecs {
		if other == codec {
			continue
		}
		if err := artifact.Remove(artifact.Path(stateDir, BaseName, other)); err != nil {
			plog.Warn("Failed to remove stale index", "error", err)
		}
	}
	plog.Debug("Saved index", "path", path, "instructions", ix.TotalInstructions())
	return nil
}

// codecs lists the lookup order for Load.
var codecs = []artifact.Codec{artifact.Gzip, artifact.Zstd, artifact.None}

// Load reads the index from stateDir, whichever codec it was saved with.
// A missing index yields an error matching artifact.ErrNotFound.
func Load(stateDir string) (*Index, error) {
	for _, codec := range codecs {
		path := artifact.Path(stateDir, BaseName, codec)
		if !artifact.Exists(path) {
			continue
		}
		ix := &Index{}
		if err := artifact.Read(path, ix, codec); err != nil {
			return nil, errors.Errorf("failed to load index: %w", err)
		}
		if ix.Sources == nil {
			ix.Sources = make(map[string]*SourceContext)
		}
		for name, c := range ix.Sources {
			if c == nil {
				return nil, errors.Errorf("index %s has an empty entry for source '%s'", path, name)
			}
			if c.TargetBytes == nil {
				c.TargetBytes = make(map[string]uint64)
			}
		}
		return ix, nil
	}
	return nil, errors.WithDetails(artifact.ErrNotFound, "dir", stateDir, "artifact", BaseName)
}

// Exists reports whether an index is present in stateDir.
func Exists(stateDir string) bool {
	for _, codec := range codecs {
		if artifact.Exists(artifact.Path(stateDir, BaseName, codec)) {
			return true
		}
	}
	return false
}

// Remove deletes the index from stateDir.
func Remove(stateDir string) error {
	for _, codec := range codecs {
		if err := artifact.Remove(artifact.Path(stateDir, BaseName, codec)); err != nil {
			return err
		}
	}
	return nil
}
