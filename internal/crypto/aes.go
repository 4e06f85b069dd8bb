// Package crypto implements the AES modes used by Switch content archives:
// XTS with a big-endian sector tweak for headers, ECB for key areas and
// random-access CTR for section data.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const blockSize = aes.BlockSize

// ErrNotBlockAligned is returned when a buffer length is not a multiple of the
// cipher block or sector size.
var ErrNotBlockAligned = errors.New("crypto: input not block aligned")

// DecryptECB decrypts src into dst with AES-ECB. Both must be block aligned.
func DecryptECB(key, dst, src []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	if len(src)%blockSize != 0 || len(dst) < len(src) {
		return ErrNotBlockAligned
	}
	for i := 0; i < len(src); i += blockSize {
		block.Decrypt(dst[i:i+blockSize], src[i:i+blockSize])
	}
	return nil
}

// EncryptECB encrypts src into dst with AES-ECB. Both must be block aligned.
func EncryptECB(key, dst, src []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	if len(src)%blockSize != 0 || len(dst) < len(src) {
		return ErrNotBlockAligned
	}
	for i := 0; i < len(src); i += blockSize {
		block.Encrypt(dst[i:i+blockSize], src[i:i+blockSize])
	}
	return nil
}

// CTRReaderAt decrypts an AES-CTR stream on demand. Offsets passed to ReadAt
// are absolute within the underlying reader; the low half of the counter is
// offset/16, the high half is a fixed per-section value.
type CTRReaderAt struct {
	r     io.ReaderAt
	block cipher.Block
	upper [8]byte
}

var _ io.ReaderAt = (*CTRReaderAt)(nil)

// NewCTRReaderAt wraps r so that reads return plaintext.
func NewCTRReaderAt(r io.ReaderAt, key []byte, upper [8]byte) (*CTRReaderAt, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ctr: %w", err)
	}
	return &CTRReaderAt{r: r, block: block, upper: upper}, nil
}

// ReadAt implements io.ReaderAt.
func (c *CTRReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("ctr: negative offset %d", off)
	}
	if len(p) == 0 {
		return 0, nil
	}

	start := off &^ (blockSize - 1)
	skip := int(off - start)
	buf := make([]byte, skip+len(p))

	n, err := c.r.ReadAt(buf, start)
	if n > 0 {
		var iv [blockSize]byte
		copy(iv[:8], c.upper[:])
		binary.BigEndian.PutUint64(iv[8:], uint64(start)/blockSize)
		cipher.NewCTR(c.block, iv[:]).XORKeyStream(buf[:n], buf[:n])
	}

	got := n - skip
	if got <= 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
	copy(p, buf[skip:n])
	if got >= len(p) {
		return len(p), nil
	}
	return got, err
}
