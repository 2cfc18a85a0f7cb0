// Package artifact persists run state as JSON files in the state directory.
//
// Writes are atomic: content goes to a temp file in the same directory which
// is synced and renamed over the destination, so a crash mid-write leaves the
// previous artifact intact.
package artifact

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/plog"
	"github.com/paulschiretz/pgl-sortbackup/pkg/util"
)

// ErrNotFound is returned by Read when the artifact does not exist.
var ErrNotFound = errors.Base("artifact not found")

// Path returns the on-disk path of the artifact base (e.g. "index.json") in dir.
func Path(dir, base string, codec Codec) string {
	return filepath.Join(dir, base+codec.Extension())
}

// Write atomically encodes v as JSON into absPath using codec.
func Write(absPath string, v any, codec Codec) (err error) {
	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
		return errors.Errorf("failed to create state directory %s: %w", dir, err)
	}

	tmpF, err := os.CreateTemp(dir, filepath.Base(absPath)+".*.tmp")
	if err != nil {
		return errors.Errorf("failed to create temp file for %s: %w", absPath, err)
	}
	defer func() {
		if rmErr := os.Remove(tmpF.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
			plog.Warn("Failed to remove temporary artifact", "path", tmpF.Name(), "error", rmErr)
		}
	}()

	if err := encode(tmpF, v, codec); err != nil {
		tmpF.Close()
		return errors.Errorf("failed to encode %s: %w", absPath, err)
	}
	if err := tmpF.Sync(); err != nil {
		tmpF.Close()
		return errors.Errorf("failed to sync %s: %w", tmpF.Name(), err)
	}
	if err := tmpF.Close(); err != nil {
		return errors.Errorf("failed to close %s: %w", tmpF.Name(), err)
	}
	if err := os.Rename(tmpF.Name(), absPath); err != nil {
		return errors.Errorf("failed to move artifact into place at %s: %w", absPath, err)
	}
	return nil
}

func encode(f *os.File, v any, codec Codec) error {
	bufWriter := bufio.NewWriter(f)
	cw, err := codec.newWriter(bufWriter)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(cw).Encode(v); err != nil {
		cw.Close()
		return err
	}
	if err := cw.Close(); err != nil {
		return err
	}
	return bufWriter.Flush()
}

// Read decodes the artifact at absPath into v. A missing file yields ErrNotFound.
func Read(absPath string, v any, codec Codec) error {
	f, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.WithDetails(ErrNotFound, "path", absPath)
		}
		return errors.Errorf("failed to open %s: %w", absPath, err)
	}
	defer f.Close()

	cr, err := codec.newReader(bufio.NewReader(f))
	if err != nil {
		return errors.Errorf("failed to read %s: %w", absPath, err)
	}
	defer cr.Close()

	if err := json.NewDecoder(cr).Decode(v); err != nil {
		return errors.Errorf("could not parse %s, it may be corrupt: %w", absPath, err)
	}
	return nil
}

// Remove deletes the artifact. A missing file is not an error.
func Remove(absPath string) error {
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return errors.Errorf("failed to remove %s: %w", absPath, err)
	}
	return nil
}

// Exists reports whether the artifact is present.
func Exists(absPath string) bool {
	_, err := os.Stat(absPath)
	return err == nil
}
