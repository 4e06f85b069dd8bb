package keys

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prodKeys = `; comment line
header_key = 000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f
key_area_key_application_00 = 11111111111111111111111111111111
key_area_key_application_0a = aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa
key_area_key_application_source = 7f59971e629f36a13098066f2144c30d
key_area_key_system_01 = 22222222222222222222222222222222
titlekek_00 = 33333333333333333333333333333333
eticket_rsa_kek = 19c8b4f7c2d8c6b1e0a4d1f2a3b4c5d6

master_key_00 = 44444444444444444444444444444444
`

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/keys/prod.keys", prodKeys)

	ks, err := Load(fs, "/keys/prod.keys")
	require.NoError(t, err)

	assert.Equal(t, byte(0x00), ks.HeaderKey()[0])
	assert.Equal(t, byte(0x1f), ks.HeaderKey()[31])

	k, err := ks.KeyAreaKey(KeyAreaApplication, 0)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("\x11", 16), string(k))

	k, err = ks.KeyAreaKey(KeyAreaApplication, 0x0a)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("\xaa", 16), string(k))

	_, err = ks.KeyAreaKey(KeyAreaApplication, 1)
	assert.ErrorIs(t, err, ErrKeyMissing)

	_, err = ks.KeyAreaKey(KeyAreaOcean, 0)
	assert.ErrorIs(t, err, ErrKeyMissing)

	_, err = ks.KeyAreaKey(KeyAreaSystem, 1)
	assert.NoError(t, err)

	kek, err := ks.TitleKek(0)
	require.NoError(t, err)
	assert.Len(t, kek, 16)

	_, err = ks.TitleKek(5)
	assert.ErrorIs(t, err, ErrKeyMissing)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "nonexistent")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLoad_InvalidKeys(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"zero header key", "header_key = " + strings.Repeat("00", 32)},
		{"short header key", "header_key = 0011"},
		{"not hex", "header_key = zz"},
		{"no separator", "header_key"},
		{"short key area key", "header_key = " + strings.Repeat("01", 32) + "\nkey_area_key_application_00 = 01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFile(t, fs, "prod.keys", tt.content)

			_, err := Load(fs, "prod.keys")
			assert.ErrorIs(t, err, ErrInvalidKeys)
		})
	}
}

func TestLoadTitleKeys(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "prod.keys", prodKeys)
	writeFile(t, fs, "title.keys", "0100000000001000000000000000000a = 55555555555555555555555555555555\n")

	ks, err := Load(fs, "prod.keys")
	require.NoError(t, err)

	withTitles, err := ks.LoadTitleKeys(fs, "title.keys")
	require.NoError(t, err)
	assert.Equal(t, 0, ks.TitleKeyCount(), "original key set must stay untouched")
	assert.Equal(t, 1, withTitles.TitleKeyCount())

	var rid RightsID
	rid[0], rid[6], rid[15] = 0x01, 0x10, 0x0a
	k, ok := withTitles.TitleKey(rid)
	require.True(t, ok)
	assert.Equal(t, strings.Repeat("\x55", 16), string(k))
	assert.Equal(t, "0100000000001000000000000000000a", rid.String())

	_, err = ks.LoadTitleKeys(fs, "missing.keys")
	assert.ErrorIs(t, err, ErrFileNotFound)

	writeFile(t, fs, "bad.keys", "0102 = 55555555555555555555555555555555\n")
	_, err = ks.LoadTitleKeys(fs, "bad.keys")
	assert.ErrorIs(t, err, ErrInvalidKeys)
}

func TestRightsID_IsZero(t *testing.T) {
	assert.True(t, RightsID{}.IsZero())
	assert.False(t, RightsID{1}.IsZero())
}
