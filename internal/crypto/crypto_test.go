package crypto

import (
	"bytes"
	"crypto/aes"
	"encoding/hex"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/xts"
)

func testKey(n int, seed byte) []byte {
	k := make([]byte, n)
	for i := range k {
		k[i] = seed + byte(i)
	}
	return k
}

func TestXTS_IEEEVectorSectorZero(t *testing.T) {
	c, err := NewXTS(make([]byte, 32), 32)
	require.NoError(t, err)

	ct := make([]byte, 32)
	require.NoError(t, c.Encrypt(ct, make([]byte, 32), 0))
	assert.Equal(t, "917cf69ebd68b2ec9b9fe9a3eadda692cd43d2f59598ed858c02c2652fbf922e", hex.EncodeToString(ct))
}

func TestXTS_MatchesStandardTweakAtSectorZero(t *testing.T) {
	key := testKey(32, 0x10)
	plain := testKey(0x200, 0x33)

	ours, err := NewXTS(key, 0x200)
	require.NoError(t, err)
	std, err := xts.NewCipher(aes.NewCipher, key)
	require.NoError(t, err)

	got := make([]byte, len(plain))
	want := make([]byte, len(plain))
	require.NoError(t, ours.Encrypt(got, plain, 0))
	std.Encrypt(want, plain, 0)

	assert.Equal(t, want, got)
}

func TestXTS_RoundTrip(t *testing.T) {
	key := testKey(32, 0x42)
	c, err := NewXTS(key, 0x200)
	require.NoError(t, err)

	plain := testKey(0x600, 0x01)
	enc := make([]byte, len(plain))
	require.NoError(t, c.Encrypt(enc, plain, 3))
	assert.NotEqual(t, plain, enc)

	// identical plaintext sectors must not produce identical ciphertext
	same := bytes.Repeat([]byte{0xAA}, 0x400)
	sameEnc := make([]byte, len(same))
	require.NoError(t, c.Encrypt(sameEnc, same, 0))
	assert.NotEqual(t, sameEnc[:0x200], sameEnc[0x200:])

	dec := make([]byte, len(enc))
	require.NoError(t, c.Decrypt(dec, enc, 3))
	assert.Equal(t, plain, dec)

	// wrong sector number yields garbage
	require.NoError(t, c.Decrypt(dec, enc, 4))
	assert.NotEqual(t, plain, dec)
}

func TestXTS_Errors(t *testing.T) {
	_, err := NewXTS(make([]byte, 16), 0x200)
	assert.Error(t, err)

	_, err = NewXTS(make([]byte, 32), 100)
	assert.Error(t, err)

	c, err := NewXTS(make([]byte, 32), 0x200)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Decrypt(make([]byte, 0x100), make([]byte, 0x100), 0), ErrNotBlockAligned)
}

func TestECB_RoundTrip(t *testing.T) {
	key := testKey(16, 0x07)
	plain := testKey(64, 0x90)

	enc := make([]byte, len(plain))
	require.NoError(t, EncryptECB(key, enc, plain))
	dec := make([]byte, len(plain))
	require.NoError(t, DecryptECB(key, dec, enc))
	assert.Equal(t, plain, dec)

	assert.ErrorIs(t, DecryptECB(key, dec, plain[:15]), ErrNotBlockAligned)
	assert.Error(t, DecryptECB(key[:5], dec, plain))
}

func TestCTRReaderAt_RandomAccess(t *testing.T) {
	key := testKey(16, 0x21)
	upper := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	plain := testKey(1000, 0x00)

	// CTR is symmetric: reading the plaintext through the cipher encrypts it.
	encrypter, err := NewCTRReaderAt(bytes.NewReader(plain), key, upper)
	require.NoError(t, err)
	enc := make([]byte, len(plain))
	n, err := encrypter.ReadAt(enc, 0)
	require.NoError(t, err)
	require.Equal(t, len(plain), n)
	assert.NotEqual(t, plain, enc)

	dec, err := NewCTRReaderAt(bytes.NewReader(enc), key, upper)
	require.NoError(t, err)

	for _, tc := range []struct{ off, size int }{{0, 16}, {5, 3}, {17, 100}, {990, 10}, {123, 500}} {
		buf := make([]byte, tc.size)
		n, err := dec.ReadAt(buf, int64(tc.off))
		require.NoError(t, err)
		assert.Equal(t, tc.size, n)
		assert.Equal(t, plain[tc.off:tc.off+tc.size], buf)
	}

	buf := make([]byte, 20)
	n, err = dec.ReadAt(buf, 990)
	assert.Equal(t, 10, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, plain[990:], buf[:10])
}
