package root

import (
	"io"
	"io/fs"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emunx/nxmeta/internal/container"
	"github.com/emunx/nxmeta/internal/testutil"
)

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"/roms/game.nsp", FormatNSP},
		{"/roms/game.xci", FormatXCI},
		{"game.NSP", FormatUnknown},
		{"game.Xci", FormatUnknown},
		{"game.nsz", FormatUnknown},
		{"game", FormatUnknown},
		{"nsp", FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatFromPath(tt.path))
		})
	}
}

func TestOpen_NSPAndXCI(t *testing.T) {
	fsys := afero.NewMemMapFs()
	files := []testutil.File{{Name: "a.cnmt.nca", Data: []byte("meta")}}
	require.NoError(t, afero.WriteFile(fsys, "/game.nsp", testutil.BuildPFS0(files), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/game.xci", testutil.BuildXCI([]testutil.File{
		{Name: "secure", Data: testutil.BuildHFS0(files)},
	}), 0o644))

	for _, p := range []string{"/game.nsp", "/game.xci"} {
		t.Run(p, func(t *testing.T) {
			r, err := Open(fsys, p)
			require.NoError(t, err)
			defer r.Close()

			assert.Equal(t, FormatFromPath(p), r.Format())
			e, ok := container.FindFirst(r, "*.cnmt.nca")
			require.True(t, ok)
			sr, err := r.OpenEntry(e.Name)
			require.NoError(t, err)
			data, err := io.ReadAll(sr)
			require.NoError(t, err)
			assert.Equal(t, "meta", string(data))
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/bad.nsp", []byte("garbage garbage!"), 0o644))

	_, err := Open(fsys, "/game.zip")
	assert.ErrorIs(t, err, container.ErrUnsupportedFormat)

	_, err = Open(fsys, "/missing.nsp")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = Open(fsys, "/bad.nsp")
	assert.ErrorIs(t, err, container.ErrInvalidMagic)
}

func TestClose_Idempotent(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/game.nsp", testutil.BuildPFS0(nil), 0o644))

	r, err := Open(fsys, "/game.nsp")
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.OpenEntry("x")
	assert.ErrorIs(t, err, fs.ErrClosed)
}
