package metadata

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emunx/nxmeta/internal/database"
)

func testTitle(romPath string) *database.Title {
	return &database.Title{
		RomPath:        romPath,
		TitleID:        "01006B601380E000",
		Format:         "nsp",
		Name:           "Test Game",
		Publisher:      "Test Publisher",
		Version:        "1.0.2",
		Icon:           []byte("\xFF\xD8\xFFicon"),
		HasIcon:        true,
		PromptsForUser: true,
		ScannedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestMetadataService_WriteReadTitle(t *testing.T) {
	fsys := afero.NewMemMapFs()
	ms := NewMetadataService(fsys, "/export")

	require.NoError(t, ms.WriteTitle(testTitle("sub/game.nsp")))

	assert.Equal(t, "/export/sub/game.yaml", ms.SidecarPath("sub/game.nsp"))
	icon, err := afero.ReadFile(fsys, "/export/sub/game.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("\xFF\xD8\xFFicon"), icon)

	sc, err := ms.ReadTitle("sub/game.nsp")
	require.NoError(t, err)
	require.NotNil(t, sc)
	assert.Equal(t, "01006B601380E000", sc.TitleID)
	assert.Equal(t, "Test Game", sc.Name)
	assert.Equal(t, "game.jpg", sc.Icon)
	assert.True(t, sc.PromptsForUser)
	assert.True(t, sc.ScannedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	missing, err := ms.ReadTitle("other.nsp")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMetadataService_WriteTitleDropsStaleIcon(t *testing.T) {
	fsys := afero.NewMemMapFs()
	ms := NewMetadataService(fsys, "/export")

	title := testTitle("game.nsp")
	require.NoError(t, ms.WriteTitle(title))

	title.Icon = nil
	require.NoError(t, ms.WriteTitle(title))

	exists, err := afero.Exists(fsys, "/export/game.jpg")
	require.NoError(t, err)
	assert.False(t, exists)

	sc, err := ms.ReadTitle("game.nsp")
	require.NoError(t, err)
	assert.Empty(t, sc.Icon)
}

func TestMetadataService_DeleteTitle(t *testing.T) {
	fsys := afero.NewMemMapFs()
	ms := NewMetadataService(fsys, "/export")

	require.NoError(t, ms.WriteTitle(testTitle("a/b/game.xci")))
	require.NoError(t, ms.DeleteTitle("a/b/game.xci"))

	exists, err := afero.DirExists(fsys, "/export/a")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = afero.DirExists(fsys, "/export")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.NoError(t, ms.DeleteTitle("never/written.nsp"))
}

func TestMetadataService_Export(t *testing.T) {
	fsys := afero.NewMemMapFs()
	ms := NewMetadataService(fsys, "/export")

	res, err := ms.Export(context.Background(), []*database.Title{
		testTitle("one.nsp"),
		testTitle("old/two.xci"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 0, res.Removed)

	res, err = ms.Export(context.Background(), []*database.Title{testTitle("one.nsp")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, 1, res.Removed)

	exists, err := afero.DirExists(fsys, "/export/old")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMetadataService_ExportReadOnly(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll("/export", 0o755))
	ms := NewMetadataService(afero.NewReadOnlyFs(base), "/export")

	_, err := ms.Export(context.Background(), []*database.Title{testTitle("one.nsp")})
	assert.Error(t, err)
}

func TestMetadataService_TruncatesLongNames(t *testing.T) {
	ms := NewMetadataService(afero.NewMemMapFs(), "/export")

	long := strings.Repeat("x", 300) + ".nsp"
	path := ms.SidecarPath(long)
	assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(path, "/export/"), ".yaml"), 250)
}
