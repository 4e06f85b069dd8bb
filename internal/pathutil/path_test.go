package pathutil

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveEmptyDirs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	root := "/export"

	// root/a/b/c, all empty
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, fsys.MkdirAll(nested, 0o755))

	RemoveEmptyDirs(fsys, root, nested)

	for _, dir := range []string{"a", "a/b", "a/b/c"} {
		exists, err := afero.DirExists(fsys, filepath.Join(root, dir))
		require.NoError(t, err)
		assert.False(t, exists, "expected %s to be removed", dir)
	}
	exists, err := afero.DirExists(fsys, root)
	require.NoError(t, err)
	assert.True(t, exists, "root must survive")

	// root/x/y/z with root/x/keep.yaml
	zDir := filepath.Join(root, "x", "y", "z")
	require.NoError(t, fsys.MkdirAll(zDir, 0o755))
	keep := filepath.Join(root, "x", "keep.yaml")
	require.NoError(t, afero.WriteFile(fsys, keep, []byte("keep"), 0o644))

	RemoveEmptyDirs(fsys, root, zDir)

	exists, _ = afero.DirExists(fsys, filepath.Join(root, "x", "y"))
	assert.False(t, exists)
	exists, _ = afero.DirExists(fsys, filepath.Join(root, "x"))
	assert.True(t, exists, "x holds keep.yaml")
	exists, _ = afero.Exists(fsys, keep)
	assert.True(t, exists)
}

func TestRemoveEmptyDirs_OutsideRoot(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/exported/a", 0o755))

	RemoveEmptyDirs(fsys, "/export", "/exported/a")

	exists, _ := afero.DirExists(fsys, "/exported/a")
	assert.True(t, exists)
}

func TestCheckDirectoryWritable(t *testing.T) {
	fsys := afero.NewMemMapFs()

	require.NoError(t, CheckDirectoryWritable(fsys, "/data/db"))
	exists, _ := afero.DirExists(fsys, "/data/db")
	assert.True(t, exists)
	probe, _ := afero.Exists(fsys, "/data/db/"+writeProbe)
	assert.False(t, probe)

	require.NoError(t, afero.WriteFile(fsys, "/data/file", []byte("x"), 0o644))
	assert.ErrorContains(t, CheckDirectoryWritable(fsys, "/data/file"), "not a directory")
	assert.Error(t, CheckDirectoryWritable(fsys, ""))

	ro := afero.NewReadOnlyFs(fsys)
	assert.ErrorContains(t, CheckDirectoryWritable(ro, "/data/db"), "not writable")
}

func TestCheckFileDirectoryWritable(t *testing.T) {
	fsys := afero.NewMemMapFs()
	assert.NoError(t, CheckFileDirectoryWritable(fsys, "", "log"))
	assert.NoError(t, CheckFileDirectoryWritable(fsys, "/logs/nxmeta.log", "log"))

	ro := afero.NewReadOnlyFs(afero.NewMemMapFs())
	assert.ErrorContains(t, CheckFileDirectoryWritable(ro, "/logs/nxmeta.log", "log"), "log file directory")
}

func TestJoinAbsPath(t *testing.T) {
	tests := []struct {
		base, other, want string
	}{
		{"", "game.nsp", "game.nsp"},
		{"/roms", "game.nsp", "/roms/game.nsp"},
		{"/roms", "/roms/sub/game.xci", "/roms/sub/game.xci"},
		{"/roms", "/other/game.xci", "/roms/other/game.xci"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinAbsPath(tt.base, tt.other))
	}
}

func TestRelativeTo(t *testing.T) {
	assert.Equal(t, "sub/game.nsp", RelativeTo("/roms", "/roms/sub/game.nsp"))
	assert.Equal(t, "/elsewhere/game.nsp", RelativeTo("/roms", "/elsewhere/game.nsp"))
}
