package nacp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emunx/nxmeta/internal/testutil"
)

func TestDecode(t *testing.T) {
	var c testutil.Control
	c.Titles[0] = testutil.ControlTitle{Name: "Super Game", Publisher: "Studio"}
	c.Titles[14] = testutil.ControlTitle{Name: "超级游戏", Publisher: "工作室"}
	c.DisplayVersion = "1.2.3"
	c.StartupUserAccount = 1

	ctrl, err := Decode(testutil.BuildNACP(c))
	require.NoError(t, err)
	assert.Equal(t, "Super Game", ctrl.Name(0))
	assert.Equal(t, "Studio", ctrl.Publisher(0))
	assert.Equal(t, "超级游戏", ctrl.Name(14))
	assert.Equal(t, "", ctrl.Name(3))
	assert.Equal(t, "1.2.3", ctrl.DisplayVersion)
	assert.Equal(t, StartupUserAccountRequired, ctrl.StartupUserAccount)
}

func TestDecode_FullWidthName(t *testing.T) {
	var c testutil.Control
	long := make([]byte, 0x1FF)
	for i := range long {
		long[i] = 'a'
	}
	c.Titles[0].Name = string(long)

	ctrl, err := Decode(testutil.BuildNACP(c))
	require.NoError(t, err)
	assert.Len(t, ctrl.Name(0), 0x1FF)
}

func TestDecode_NormalizesAndDropsInvalid(t *testing.T) {
	var c testutil.Control
	c.Titles[0].Name = "Pokémon\xff"

	ctrl, err := Decode(testutil.BuildNACP(c))
	require.NoError(t, err)
	assert.Equal(t, "Pokémon", ctrl.Name(0))
}

func TestDecode_WrongSize(t *testing.T) {
	_, err := Decode(make([]byte, Size-1))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = Decode(make([]byte, Size+1))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestTitle_OutOfRange(t *testing.T) {
	ctrl, err := Decode(make([]byte, Size))
	require.NoError(t, err)
	assert.Equal(t, Title{}, ctrl.Title(-1))
	assert.Equal(t, Title{}, ctrl.Title(TitleCount))
}
