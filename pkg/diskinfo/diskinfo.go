// Package diskinfo reports free and total space of the volume holding a path.
package diskinfo

import (
	"os"
	"path/filepath"

	"gitlab.com/tozd/go/errors"
)

// ErrUnsupported is returned on platforms without a disk space query.
var ErrUnsupported = errors.Base("disk info is not supported on this platform")

// Info describes the volume a path resides on.
type Info struct {
	Available  uint64 // bytes available to the calling user
	Total      uint64
	MountPoint string
}

// Provider looks up disk info for a path.
type Provider interface {
	Lookup(path string) (*Info, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(path string) (*Info, error)

func (f ProviderFunc) Lookup(path string) (*Info, error) { return f(path) }

// System queries the operating system.
type System struct{}

// NewSystem returns the default Provider.
func NewSystem() *System { return &System{} }

// Lookup reports the volume of path. Targets are usually created by the copy
// itself, so a missing path is resolved to its nearest existing ancestor.
func (System) Lookup(path string) (*Info, error) {
	existing, err := nearestExisting(path)
	if err != nil {
		return nil, err
	}
	return lookup(existing)
}

func nearestExisting(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Errorf("failed to resolve %s: %w", path, err)
	}
	for {
		if _, err := os.Stat(abs); err == nil {
			return abs, nil
		} else if !os.IsNotExist(err) {
			return "", errors.Errorf("failed to stat %s: %w", abs, err)
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", errors.Errorf("no existing ancestor for %s", path)
		}
		abs = parent
	}
}
