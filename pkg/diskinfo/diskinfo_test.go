//go:build linux || darwin || freebsd || windows

package diskinfo

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemLookup(t *testing.T) {
	dir := t.TempDir()

	t.Run("Happy Path - existing directory", func(t *testing.T) {
		info, err := NewSystem().Lookup(dir)
		require.NoError(t, err)
		assert.Greater(t, info.Total, uint64(0))
		assert.LessOrEqual(t, info.Available, info.Total)
		assert.NotEmpty(t, info.MountPoint)
		assert.True(t, strings.HasPrefix(dir, strings.TrimSuffix(info.MountPoint, string(filepath.Separator))) ||
			info.MountPoint == string(filepath.Separator), "mount point %q should contain %q", info.MountPoint, dir)
	})

	t.Run("Missing target resolves to ancestor", func(t *testing.T) {
		want, err := NewSystem().Lookup(dir)
		require.NoError(t, err)
		got, err := NewSystem().Lookup(filepath.Join(dir, "not", "yet", "created"))
		require.NoError(t, err)
		assert.Equal(t, want.MountPoint, got.MountPoint)
		assert.Equal(t, want.Total, got.Total)
	})
}

func TestProviderFunc(t *testing.T) {
	p := ProviderFunc(func(path string) (*Info, error) {
		return &Info{Available: 1, Total: 2, MountPoint: path}, nil
	})
	info, err := p.Lookup("/x")
	require.NoError(t, err)
	assert.Equal(t, "/x", info.MountPoint)
}
