package entry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-sortbackup/pkg/imagemeta"
)

type countingInspector struct {
	statCalls  int
	imageCalls int
	statErr    error
	imageErr   error
}

func (c *countingInspector) inspector() *Inspector {
	return &Inspector{
		Stat: func(string) (*FsMetadata, error) {
			c.statCalls++
			if c.statErr != nil {
				return nil, c.statErr
			}
			return &FsMetadata{Size: 42, Mode: 0o644}, nil
		},
		Images: imagemeta.ProviderFunc(func(string) (*imagemeta.Metadata, error) {
			c.imageCalls++
			if c.imageErr != nil {
				return nil, c.imageErr
			}
			return &imagemeta.Metadata{Dimensions: &imagemeta.Dimensions{Width: 10, Height: 20}}, nil
		}),
	}
}

func TestLazyMetadata(t *testing.T) {
	t.Run("Happy Path - evaluated once and cached", func(t *testing.T) {
		c := &countingInspector{}
		fp := New("/src", "a.jpg", c.inspector())

		for range 3 {
			m, ok := fp.Metadata()
			require.True(t, ok)
			assert.Equal(t, int64(42), m.Size)
			_, ok = fp.ImageMetadata()
			require.True(t, ok)
		}
		assert.Equal(t, 1, c.statCalls)
		assert.Equal(t, 1, c.imageCalls)
	})

	t.Run("Failure cached as absent", func(t *testing.T) {
		c := &countingInspector{statErr: errors.New("boom"), imageErr: errors.New("no exif")}
		fp := New("/src", "a.jpg", c.inspector())

		for range 3 {
			_, ok := fp.Metadata()
			assert.False(t, ok)
			_, ok = fp.ImageMetadata()
			assert.False(t, ok)
		}
		assert.Equal(t, 1, c.statCalls)
		assert.Equal(t, 1, c.imageCalls)
		assert.Equal(t, int64(0), fp.Size())
		assert.False(t, fp.IsFile())
		assert.False(t, fp.IsDir())
	})

	t.Run("Never consulted when not asked", func(t *testing.T) {
		c := &countingInspector{}
		fp := New("/src", "a.jpg", c.inspector())
		_ = fp.Name()
		assert.Zero(t, c.statCalls)
		assert.Zero(t, c.imageCalls)
	})
}

func TestPathParts(t *testing.T) {
	testCases := []struct {
		rel    string
		name   string
		parent string
		ext    string
		hasExt bool
		stem   string
	}{
		{rel: "photo.JPG", name: "photo.JPG", parent: "", ext: "JPG", hasExt: true, stem: "photo"},
		{rel: filepath.Join("a", "b", "archive.tar.gz"), name: "archive.tar.gz", parent: filepath.Join("a", "b"), ext: "gz", hasExt: true, stem: "archive.tar"},
		{rel: filepath.Join("cfg", ".bashrc"), name: ".bashrc", parent: "cfg", hasExt: false, stem: ".bashrc"},
		{rel: "README", name: "README", parent: "", hasExt: false, stem: "README"},
		{rel: "trailing.", name: "trailing.", parent: "", ext: "", hasExt: true, stem: "trailing"},
	}
	for _, tc := range testCases {
		t.Run(tc.rel, func(t *testing.T) {
			fp := New("/src", tc.rel, &Inspector{})
			assert.Equal(t, tc.name, fp.Name())
			assert.Equal(t, tc.parent, fp.Parent())
			ext, ok := fp.Ext()
			assert.Equal(t, tc.hasExt, ok)
			assert.Equal(t, tc.ext, ext)
			assert.Equal(t, tc.stem, fp.Stem())
		})
	}
}

func TestReadFsMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	mtime := time.Date(2020, 3, 4, 5, 6, 7, 0, time.Local)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	m, err := ReadFsMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), m.Size)
	assert.True(t, m.IsRegular())
	assert.True(t, m.ModTime.Equal(mtime))

	fp := New(dir, "f.txt", nil)
	assert.True(t, fp.IsFile())
	assert.Equal(t, int64(5), fp.Size())

	_, err = ReadFsMetadata(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
