package cmd

import (
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/preflight"
)

// reportTables lays out a preflight report as a source table and a target table.
func reportTables(r *preflight.Report, format func(uint64) string) (sources, targets pterm.TableData) {
	sourceHeader := []string{"Source", "Root", "Files", "Ignored", "Size"}
	targetHeader := []string{"Target", "Path", "Size"}
	if r.Resuming {
		sourceHeader = append(sourceHeader, "Completed", "Remaining")
		targetHeader = append(targetHeader, "Remaining")
	}
	targetHeader = append(targetHeader, "Free", "Capacity", "Warning")

	sources = pterm.TableData{sourceHeader}
	for _, s := range r.Sources {
		row := []string{s.Name, s.Root, strconv.Itoa(s.Files), strconv.Itoa(s.Ignored), format(s.Bytes)}
		if r.Resuming {
			row = append(row, strconv.FormatUint(s.Completed, 10), format(s.RemainingBytes))
		}
		sources = append(sources, row)
	}

	targets = pterm.TableData{targetHeader}
	for _, t := range r.Targets {
		row := []string{t.Name, t.Path, format(t.Bytes)}
		if r.Resuming {
			row = append(row, format(t.RemainingBytes))
		}
		free, capacity := "-", "-"
		if t.Disk != nil {
			free, capacity = format(t.Disk.Available), format(t.Disk.Total)
		}
		row = append(row, free, capacity, targetWarning(t))
		targets = append(targets, row)
	}
	return sources, targets
}

func targetWarning(t preflight.TargetReport) string {
	var warnings []string
	switch t.Warning {
	case preflight.InsufficientFree, preflight.InsufficientCapacity:
		warnings = append(warnings, t.Warning.String())
	}
	if t.OnSystemDisk {
		warnings = append(warnings, "on system disk")
	}
	return strings.Join(warnings, ", ")
}

// renderReport prints the report tables to stdout.
func renderReport(r *preflight.Report, format func(uint64) string) error {
	sources, targets := reportTables(r, format)
	if err := pterm.DefaultTable.WithHasHeader().WithData(sources).Render(); err != nil {
		return errors.Errorf("failed to render source table: %w", err)
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(targets).Render(); err != nil {
		return errors.Errorf("failed to render target table: %w", err)
	}
	total := "Total: " + strconv.Itoa(r.Files) + " files, " + format(r.Bytes)
	if r.Resuming {
		total += ", " + format(r.RemainingBytes) + " remaining"
	}
	pterm.Println(total)
	return nil
}
