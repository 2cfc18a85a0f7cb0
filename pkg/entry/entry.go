// Package entry models one file or directory met during a source walk, with
// lazily read filesystem and image metadata.
package entry

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/imagemeta"
	"github.com/paulschiretz/pgl-sortbackup/pkg/util"
)

// FsMetadata is the filesystem metadata of an entry, captured once.
type FsMetadata struct {
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
	// AccessTime and CreatedTime are nil where the platform or filesystem
	// does not record them.
	AccessTime  *time.Time
	CreatedTime *time.Time
}

func (m *FsMetadata) IsDir() bool     { return m.Mode.IsDir() }
func (m *FsMetadata) IsRegular() bool { return m.Mode.IsRegular() }

// ReadFsMetadata stats absPath, following symlinks.
func ReadFsMetadata(absPath string) (*FsMetadata, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, errors.Errorf("stat %s: %w", absPath, err)
	}
	atime, btime := platformTimes(absPath, info)
	return &FsMetadata{
		Size:        info.Size(),
		Mode:        info.Mode(),
		ModTime:     info.ModTime(),
		AccessTime:  atime,
		CreatedTime: btime,
	}, nil
}

// Inspector supplies the metadata collaborators of a FilePath.
type Inspector struct {
	Stat   func(absPath string) (*FsMetadata, error)
	Images imagemeta.Provider
}

// DefaultInspector reads the real filesystem and EXIF data.
func DefaultInspector() *Inspector {
	return &Inspector{Stat: ReadFsMetadata, Images: imagemeta.NewExifProvider()}
}

type slot uint8

const (
	unresolved slot = iota
	present
	absent
)

// FilePath is an entry below a source root. RelPath uses host separators and
// is never empty.
//
// Each metadata accessor consults its collaborator at most once; both success
// and failure are remembered. A FilePath is owned by the goroutine walking its
// source and is not safe for concurrent use.
type FilePath struct {
	SourceRoot string
	RelPath    string
	AbsPath    string

	inspector *Inspector

	fsState slot
	fs      *FsMetadata

	imgState slot
	img      *imagemeta.Metadata
}

// New creates a FilePath for rel below root. A nil inspector uses DefaultInspector.
func New(root, rel string, inspector *Inspector) *FilePath {
	if inspector == nil {
		inspector = DefaultInspector()
	}
	return &FilePath{
		SourceRoot: root,
		RelPath:    rel,
		AbsPath:    filepath.Join(root, rel),
		inspector:  inspector,
	}
}

// Metadata returns the filesystem metadata, reading it on first use.
func (fp *FilePath) Metadata() (*FsMetadata, bool) {
	if fp.fsState == unresolved {
		fp.fsState = absent
		if fp.inspector.Stat != nil {
			if m, err := fp.inspector.Stat(fp.AbsPath); err == nil && m != nil {
				fp.fs, fp.fsState = m, present
			}
		}
	}
	return fp.fs, fp.fsState == present
}

// ImageMetadata returns the image metadata, reading it on first use.
func (fp *FilePath) ImageMetadata() (*imagemeta.Metadata, bool) {
	if fp.imgState == unresolved {
		fp.imgState = absent
		if fp.inspector.Images != nil {
			if m, err := fp.inspector.Images.Read(fp.AbsPath); err == nil && m != nil {
				fp.img, fp.imgState = m, present
			}
		}
	}
	return fp.img, fp.imgState == present
}

// IsDir reports whether the entry is a directory. Unknown counts as false.
func (fp *FilePath) IsDir() bool {
	m, ok := fp.Metadata()
	return ok && m.IsDir()
}

// IsFile reports whether the entry is a regular file. Unknown counts as false.
func (fp *FilePath) IsFile() bool {
	m, ok := fp.Metadata()
	return ok && m.IsRegular()
}

// Size is the recorded length, 0 when metadata is absent.
func (fp *FilePath) Size() int64 {
	if m, ok := fp.Metadata(); ok {
		return m.Size
	}
	return 0
}

// Name is the final path component.
func (fp *FilePath) Name() string {
	return filepath.Base(fp.RelPath)
}

// Parent is the relative path of the containing directory, "" at top level.
func (fp *FilePath) Parent() string {
	dir := filepath.Dir(fp.RelPath)
	if dir == "." {
		return ""
	}
	return dir
}

// SlashPath is RelPath with forward slashes, for pattern matching.
func (fp *FilePath) SlashPath() string {
	return util.NormalizePath(fp.RelPath)
}

// Ext returns the text after the final dot of Name. Names without a dot,
// and names whose only dot is the leading one, have no extension.
func (fp *FilePath) Ext() (string, bool) {
	_, ext, ok := splitExt(fp.Name())
	return ext, ok
}

// Stem returns Name without its extension.
func (fp *FilePath) Stem() string {
	stem, _, _ := splitExt(fp.Name())
	return stem
}

func splitExt(name string) (stem, ext string, ok bool) {
	if name == ".." {
		return name, "", false
	}
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 {
		return name, "", false
	}
	return name[:idx], name[idx+1:], true
}
