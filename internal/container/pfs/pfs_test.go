package pfs

import (
	"bytes"
	"io"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emunx/nxmeta/internal/container"
	"github.com/emunx/nxmeta/internal/testutil"
)

func TestOpen_PFS0(t *testing.T) {
	img := testutil.BuildPFS0([]testutil.File{
		{Name: "a.nca", Data: []byte("first")},
		{Name: "b.cnmt.nca", Data: []byte("second entry")},
	})

	p, err := Open(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, KindPFS0, p.Kind())
	assert.Equal(t, []string{"a.nca", "b.cnmt.nca"}, p.Files())

	sr, err := p.OpenEntry("b.cnmt.nca")
	require.NoError(t, err)
	data, err := io.ReadAll(sr)
	require.NoError(t, err)
	assert.Equal(t, "second entry", string(data))

	e, ok := container.FindFirst(p, "*.cnmt.nca")
	require.True(t, ok)
	assert.Equal(t, "b.cnmt.nca", e.Name)
	assert.Equal(t, int64(len("second entry")), e.Size)
}

func TestOpen_HFS0(t *testing.T) {
	img := testutil.BuildHFS0([]testutil.File{{Name: "secure", Data: []byte("xyz")}})

	p, err := Open(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, KindHFS0, p.Kind())

	data, err := fs.ReadFile(p, "secure")
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(data))
}

func TestOpen_Empty(t *testing.T) {
	p, err := Open(bytes.NewReader(testutil.BuildPFS0(nil)))
	require.NoError(t, err)
	assert.Empty(t, p.Entries())

	_, ok := container.FindFirst(p, "*.nca")
	assert.False(t, ok)
}

func TestOpen_Errors(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		img := testutil.BuildPFS0(nil)
		copy(img, "XXXX")
		_, err := Open(bytes.NewReader(img))
		assert.ErrorIs(t, err, container.ErrInvalidMagic)
	})

	t.Run("short header", func(t *testing.T) {
		_, err := Open(bytes.NewReader([]byte("PFS0")))
		assert.ErrorIs(t, err, container.ErrTruncated)
	})

	t.Run("entry past end", func(t *testing.T) {
		img := testutil.BuildPFS0([]testutil.File{{Name: "a", Data: []byte("0123456789")}})
		_, err := Open(bytes.NewReader(img[:len(img)-4]))
		assert.ErrorIs(t, err, container.ErrTruncated)
	})
}

func TestOpenEntry_Missing(t *testing.T) {
	p, err := Open(bytes.NewReader(testutil.BuildPFS0(nil)))
	require.NoError(t, err)

	_, err = p.OpenEntry("nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestPartition_FS(t *testing.T) {
	p, err := Open(bytes.NewReader(testutil.BuildPFS0([]testutil.File{
		{Name: "one", Data: []byte("1")},
		{Name: "two", Data: []byte("22")},
	})))
	require.NoError(t, err)

	require.NoError(t, fstest.TestFS(p, "one", "two"))
}
