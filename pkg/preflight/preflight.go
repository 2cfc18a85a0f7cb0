// Package preflight checks sources and targets before a run and summarizes
// what the run is going to copy. Nothing here changes the filesystem except
// CheckTargetWritable.
package preflight

import (
	"os"
	"path/filepath"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/util"
)

// CheckSourceAccessible validates that the source path exists and is a directory.
func CheckSourceAccessible(srcPath string) error {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Errorf("source directory %s does not exist", srcPath)
		}
		return errors.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}
	if !srcInfo.IsDir() {
		return errors.Errorf("source path %s is not a directory", srcPath)
	}
	return nil
}

// CheckTargetAccessible ensures a target base can be used without creating it:
// its volume must exist, an existing target must be a directory, and the
// deepest existing ancestor of a missing target must be accessible.
func CheckTargetAccessible(targetPath string) error {
	if isUnsafeRoot(targetPath) {
		return errors.Errorf("target path cannot be the current directory or a bare drive: %s", targetPath)
	}
	if err := checkVolumeExists(targetPath); err != nil {
		return err
	}

	info, err := os.Stat(targetPath)
	if os.IsNotExist(err) {
		ancestor := filepath.Dir(targetPath)
		for {
			_, err := os.Stat(ancestor)
			if err == nil {
				return nil
			}
			if !os.IsNotExist(err) {
				return errors.Errorf("cannot access ancestor directory %s: %w", ancestor, err)
			}
			parent := filepath.Dir(ancestor)
			if parent == ancestor {
				return errors.Errorf("no existing ancestor for target path %s", targetPath)
			}
			ancestor = parent
		}
	} else if err != nil {
		return errors.Errorf("cannot access target path: %w", err)
	}

	if !info.IsDir() {
		return errors.Errorf("target path exists but is not a directory: %s", targetPath)
	}
	return nil
}

// CheckTargetWritable creates the target directory if needed and verifies a
// file can be written into it.
func CheckTargetWritable(targetPath string) error {
	if err := os.MkdirAll(targetPath, util.UserWritableDirPerms); err != nil {
		return errors.Errorf("failed to create target directory %s: %w", targetPath, err)
	}

	tempFile := filepath.Join(targetPath, ".pgl-sortbackup-writetest.tmp")
	f, err := os.Create(tempFile)
	if err != nil {
		return errors.Errorf("target directory %s is not writable: %w", targetPath, err)
	}
	f.Close()
	_ = os.Remove(tempFile)
	return nil
}
