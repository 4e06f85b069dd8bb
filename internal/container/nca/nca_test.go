package nca

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emunx/nxmeta/internal/container"
	"github.com/emunx/nxmeta/internal/keys"
	"github.com/emunx/nxmeta/internal/testutil"
)

func testKeys(t *testing.T) *keys.KeySet {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/prod.keys", []byte(testutil.ProdKeys()), 0o644))
	ks, err := keys.Load(fsys, "/prod.keys")
	require.NoError(t, err)
	return ks
}

func TestOpen_PFS0Section(t *testing.T) {
	img := testutil.BuildNCA(testutil.NCA{
		ContentType: testutil.NCAMeta,
		ProgramID:   0x0100000000001000,
		SectionType: testutil.SectionPFS0,
		Image:       testutil.BuildPFS0([]testutil.File{{Name: "Application_0100000000001000.cnmt", Data: []byte("cnmt")}}),
	})

	a, err := Open(bytes.NewReader(img), testKeys(t))
	require.NoError(t, err)

	h := a.Header()
	assert.Equal(t, ContentMeta, h.ContentType)
	assert.Equal(t, "0100000000001000", h.ProgramID.Hex())
	assert.Equal(t, 0, h.KeyGeneration)
	assert.True(t, h.RightsID.IsZero())
	assert.True(t, h.Sections[0].Present)
	assert.Equal(t, EncryptionCTR, h.Sections[0].Encryption)
	assert.False(t, h.Sections[1].Present)

	fsys, err := a.FileSystem(0)
	require.NoError(t, err)
	name, ok := container.FindFirstFile(fsys, "*.cnmt")
	require.True(t, ok)
	data, err := container.ReadFile(fsys, name)
	require.NoError(t, err)
	assert.Equal(t, "cnmt", string(data))
}

func TestOpen_RomFSSection(t *testing.T) {
	img := testutil.BuildNCA(testutil.NCA{
		ContentType: testutil.NCAControl,
		SectionType: testutil.SectionRomFS,
		Image:       testutil.BuildRomFS([]testutil.File{{Name: "control.nacp", Data: []byte("nacp-bytes")}}),
	})

	a, err := Open(bytes.NewReader(img), testKeys(t))
	require.NoError(t, err)
	assert.Equal(t, ContentControl, a.Header().ContentType)

	fsys, err := a.FileSystem(0)
	require.NoError(t, err)
	data, err := container.ReadFile(fsys, "/control.nacp")
	require.NoError(t, err)
	assert.Equal(t, "nacp-bytes", string(data))
}

func TestOpen_PlaintextSection(t *testing.T) {
	img := testutil.BuildNCA(testutil.NCA{
		SectionType: testutil.SectionPFS0,
		Image:       testutil.BuildPFS0([]testutil.File{{Name: "x", Data: []byte("plain")}}),
		Plaintext:   true,
	})

	a, err := Open(bytes.NewReader(img), testKeys(t))
	require.NoError(t, err)
	fsys, err := a.FileSystem(0)
	require.NoError(t, err)
	data, err := container.ReadFile(fsys, "x")
	require.NoError(t, err)
	assert.Equal(t, "plain", string(data))
}

func TestOpen_TitleKeyCrypto(t *testing.T) {
	title := testutil.DefaultTitle()
	rid := title.RightsID()
	img := testutil.BuildNCA(testutil.NCA{
		SectionType: testutil.SectionRomFS,
		Image:       testutil.BuildRomFS([]testutil.File{{Name: "control.nacp", Data: []byte("secret")}}),
		RightsID:    rid,
	})
	ks := testKeys(t)

	t.Run("missing title key", func(t *testing.T) {
		a, err := Open(bytes.NewReader(img), ks)
		require.NoError(t, err)
		_, err = a.FileSystem(0)
		assert.ErrorIs(t, err, keys.ErrKeyMissing)
	})

	t.Run("ticket", func(t *testing.T) {
		tik, err := ParseTicket(testutil.BuildTicket(rid))
		require.NoError(t, err)
		assert.Equal(t, keys.RightsID(rid), tik.RightsID)

		a, err := Open(bytes.NewReader(img), ks, WithTitleKeys(func(r keys.RightsID, gen int) ([]byte, error) {
			assert.Equal(t, tik.RightsID, r)
			return tik.TitleKey(ks, gen)
		}))
		require.NoError(t, err)
		assert.Equal(t, keys.RightsID(rid), a.Header().RightsID)

		fsys, err := a.FileSystem(0)
		require.NoError(t, err)
		data, err := container.ReadFile(fsys, "/control.nacp")
		require.NoError(t, err)
		assert.Equal(t, "secret", string(data))
	})
}

func TestOpen_WrongHeaderKey(t *testing.T) {
	img := testutil.BuildNCA(testutil.NCA{SectionType: testutil.SectionPFS0, Image: testutil.BuildPFS0(nil)})

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/prod.keys", []byte("header_key = "+
		"ff000000000000000000000000000000ff000000000000000000000000000000\n"), 0o644))
	ks, err := keys.Load(fsys, "/prod.keys")
	require.NoError(t, err)

	_, err = Open(bytes.NewReader(img), ks)
	assert.ErrorIs(t, err, container.ErrInvalidMagic)
}

func TestOpen_Truncated(t *testing.T) {
	_, err := Open(bytes.NewReader(make([]byte, 0x100)), testKeys(t))
	assert.ErrorIs(t, err, container.ErrTruncated)
}

func TestOpenSection_Missing(t *testing.T) {
	img := testutil.BuildNCA(testutil.NCA{SectionType: testutil.SectionPFS0, Image: testutil.BuildPFS0(nil)})
	a, err := Open(bytes.NewReader(img), testKeys(t))
	require.NoError(t, err)

	_, err = a.OpenSection(2)
	assert.ErrorIs(t, err, ErrNoSection)
	_, err = a.OpenSection(9)
	assert.ErrorIs(t, err, ErrNoSection)
}

func TestParseTicket_Errors(t *testing.T) {
	_, err := ParseTicket([]byte{1, 2})
	assert.ErrorIs(t, err, container.ErrTruncated)

	_, err = ParseTicket(make([]byte, 0x2C0))
	assert.ErrorIs(t, err, container.ErrInvalidMagic)

	tik := testutil.BuildTicket([16]byte{1})
	tik[0x281] = TitleKeyPersonalized
	parsed, err := ParseTicket(tik)
	require.NoError(t, err)
	_, err = parsed.TitleKey(nil, 0)
	assert.ErrorIs(t, err, ErrUnsupported)
}
