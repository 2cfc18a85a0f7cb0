package preflight

import (
	"sort"

	"github.com/paulschiretz/pgl-sortbackup/pkg/config"
	"github.com/paulschiretz/pgl-sortbackup/pkg/diskinfo"
	"github.com/paulschiretz/pgl-sortbackup/pkg/index"
	"github.com/paulschiretz/pgl-sortbackup/pkg/plog"
	"github.com/paulschiretz/pgl-sortbackup/pkg/progress"
)

// SpaceWarning classifies a target whose free space is below what the run needs.
type SpaceWarning int

const (
	SpaceOK SpaceWarning = iota
	// InsufficientFree: the volume is large enough but too full.
	InsufficientFree
	// InsufficientCapacity: the volume is smaller than the data.
	InsufficientCapacity
	// SpaceUnknown: no disk information was available.
	SpaceUnknown
)

func (w SpaceWarning) String() string {
	switch w {
	case SpaceOK:
		return "ok"
	case InsufficientFree:
		return "insufficient free space"
	case InsufficientCapacity:
		return "insufficient capacity"
	default:
		return "unknown"
	}
}

// SourceReport is the per-source part of a Report.
type SourceReport struct {
	Name      string
	Root      string
	Files     int
	Ignored   int
	Completed uint64
	Bytes     uint64
	// RemainingBytes equals Bytes unless the run resumes.
	RemainingBytes uint64
	TargetBytes    map[string]uint64
}

// TargetReport is the per-target part of a Report.
type TargetReport struct {
	Name           string
	Path           string
	Bytes          uint64
	RemainingBytes uint64
	Disk           *diskinfo.Info
	Warning        SpaceWarning
	OnSystemDisk   bool
}

// Needed is the number of bytes the run still has to write to the target.
func (t TargetReport) Needed() uint64 { return t.RemainingBytes }

// Report summarizes an index before copying. It is advisory.
type Report struct {
	Resuming       bool
	Sources        []SourceReport
	Targets        []TargetReport
	Files          int
	Bytes          uint64
	RemainingBytes uint64
}

// HasWarnings reports whether any target is short on space or likely unmounted.
func (r *Report) HasWarnings() bool {
	for _, t := range r.Targets {
		if t.Warning == InsufficientFree || t.Warning == InsufficientCapacity || t.OnSystemDisk {
			return true
		}
	}
	return false
}

// Build computes the report for ix. tracker is nil for a fresh run; when set
// the instructions it marks as done are excluded from the remaining bytes.
// Disabled sources are left out.
func Build(cfg *config.Config, ix *index.Index, tracker *progress.Tracker, disks diskinfo.Provider) *Report {
	r := &Report{Resuming: tracker != nil}
	targetBytes := make(map[string]uint64)
	targetRemaining := make(map[string]uint64)

	for _, name := range ix.SourceNames() {
		sc := ix.Sources[name]
		if sc.Disabled {
			continue
		}

		var done uint64
		if tracker != nil {
			done = tracker.Completed(name)
		}
		remaining := sc.RemainingTargetBytes(done)

		sr := SourceReport{
			Name:        name,
			Root:        sc.Root,
			Files:       len(sc.Instructions),
			Ignored:     len(sc.Ignored),
			Completed:   min(done, uint64(len(sc.Instructions))),
			Bytes:       sc.TotalBytes(),
			TargetBytes: sc.TargetBytes,
		}
		for target, b := range sc.TargetBytes {
			targetBytes[target] += b
		}
		for target, b := range remaining {
			targetRemaining[target] += b
			sr.RemainingBytes += b
		}

		r.Sources = append(r.Sources, sr)
		r.Files += sr.Files
		r.Bytes += sr.Bytes
		r.RemainingBytes += sr.RemainingBytes
	}

	names := make([]string, 0, len(targetBytes))
	for name := range targetBytes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tr := TargetReport{
			Name:           name,
			Bytes:          targetBytes[name],
			RemainingBytes: targetRemaining[name],
			Warning:        SpaceUnknown,
		}
		path, err := cfg.Target(name)
		if err != nil {
			plog.Warn("Index refers to a target that is no longer configured", "target", name)
			r.Targets = append(r.Targets, tr)
			continue
		}
		tr.Path = path

		if disks != nil {
			info, err := disks.Lookup(path)
			if err != nil {
				plog.Debug("No disk information for target", "target", name, "path", path, "error", err)
			} else {
				tr.Disk = info
				tr.Warning = classify(info, tr.Needed())
			}
		}
		if onSys, err := OnSystemDisk(path); err == nil {
			tr.OnSystemDisk = onSys
		}
		r.Targets = append(r.Targets, tr)
	}
	return r
}

func classify(info *diskinfo.Info, needed uint64) SpaceWarning {
	switch {
	case info.Available >= needed:
		return SpaceOK
	case info.Total >= needed:
		return InsufficientFree
	default:
		return InsufficientCapacity
	}
}

// Log writes the report through plog, using format for byte counts.
func (r *Report) Log(format func(uint64) string) {
	for _, s := range r.Sources {
		args := []any{"source", s.Name, "files", s.Files, "ignored", s.Ignored, "bytes", format(s.Bytes)}
		if r.Resuming {
			args = append(args, "completed", s.Completed, "remaining", format(s.RemainingBytes))
		}
		plog.Info("Source summary", args...)
		for target, b := range s.TargetBytes {
			plog.Debug("Source target breakdown", "source", s.Name, "target", target, "bytes", format(b))
		}
	}

	for _, t := range r.Targets {
		args := []any{"target", t.Name, "path", t.Path, "bytes", format(t.Bytes)}
		if r.Resuming {
			args = append(args, "remaining", format(t.RemainingBytes))
		}
		if t.Disk != nil {
			args = append(args, "available", format(t.Disk.Available), "total", format(t.Disk.Total))
			if t.Disk.MountPoint != "" {
				args = append(args, "mount_point", t.Disk.MountPoint)
			}
		}
		plog.Info("Target summary", args...)

		switch t.Warning {
		case InsufficientFree:
			plog.Warn("Target does not have enough free space, but the disk is large enough",
				"target", t.Name, "needed", format(t.Needed()), "available", format(t.Disk.Available))
		case InsufficientCapacity:
			plog.Warn("Target disk is too small for the data to copy",
				"target", t.Name, "needed", format(t.Needed()), "total", format(t.Disk.Total))
		}
		if t.OnSystemDisk {
			plog.Warn("Target is on the system disk, make sure the intended drive is mounted",
				"target", t.Name, "path", t.Path)
		}
	}

	args := []any{"files", r.Files, "bytes", format(r.Bytes)}
	if r.Resuming {
		args = append(args, "remaining", format(r.RemainingBytes))
	}
	plog.Notice("Preflight summary", args...)
}
