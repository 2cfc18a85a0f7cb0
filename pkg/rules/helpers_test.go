package rules

import (
	"os"
	"path/filepath"
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/entry"
	"github.com/paulschiretz/pgl-sortbackup/pkg/imagemeta"
)

type fakeEntry struct {
	dir   bool
	size  int64
	meta  *entry.FsMetadata
	image *imagemeta.Metadata
}

// newEntry builds a FilePath below /src from a forward-slash relative path
// with canned metadata.
func newEntry(rel string, fake fakeEntry) *entry.FilePath {
	return entry.New(filepath.FromSlash("/src"), filepath.FromSlash(rel), &entry.Inspector{
		Stat: func(string) (*entry.FsMetadata, error) {
			if fake.meta != nil {
				return fake.meta, nil
			}
			mode := os.FileMode(0o644)
			if fake.dir {
				mode = os.ModeDir | 0o755
			}
			return &entry.FsMetadata{Size: fake.size, Mode: mode, ModTime: time.Now()}, nil
		},
		Images: imagemeta.ProviderFunc(func(string) (*imagemeta.Metadata, error) {
			if fake.image == nil {
				return nil, errors.New("no exif")
			}
			return fake.image, nil
		}),
	})
}

func file(rel string) *entry.FilePath { return newEntry(rel, fakeEntry{}) }
func dir(rel string) *entry.FilePath  { return newEntry(rel, fakeEntry{dir: true}) }

func u32(v uint32) *uint32 { return &v }
