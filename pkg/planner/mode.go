package planner

import (
	"fmt"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/util"
)

// Mode selects how far a run goes.
type Mode int

const (
	// Copy indexes, reports and copies.
	Copy Mode = iota
	// DryRun indexes and reports. Nothing is written to targets or the state directory.
	DryRun
)

var modeToString = map[Mode]string{
	Copy:   "copy",
	DryRun: "dry-run",
}
var stringToMode = map[string]Mode{}

func init() {
	stringToMode = util.InvertMap(modeToString)
}

// String returns the string representation of a Mode.
func (m Mode) String() string {
	if str, ok := modeToString[m]; ok {
		return str
	}
	return fmt.Sprintf("unknown_run_mode(%d)", m)
}

// ParseMode parses a string and returns the corresponding Mode.
func ParseMode(s string) (Mode, error) {
	if mode, ok := stringToMode[s]; ok {
		return mode, nil
	}
	return 0, errors.Errorf("invalid run mode: %q. Must be 'copy' or 'dry-run'", s)
}
