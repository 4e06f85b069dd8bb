package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
)

// XTS is AES-128-XTS as used for content archive headers. It differs from
// IEEE 1619 only in the tweak: the sector number is encoded big-endian across
// all 16 bytes.
type XTS struct {
	data       cipher.Block
	tweak      cipher.Block
	sectorSize int
}

// NewXTS builds an XTS cipher from a 32-byte key (data key followed by tweak key).
func NewXTS(key []byte, sectorSize int) (*XTS, error) {
	if len(key) != 2*blockSize {
		return nil, fmt.Errorf("xts: key must be %d bytes, got %d", 2*blockSize, len(key))
	}
	if sectorSize <= 0 || sectorSize%blockSize != 0 {
		return nil, fmt.Errorf("xts: invalid sector size %d", sectorSize)
	}
	data, err := aes.NewCipher(key[:blockSize])
	if err != nil {
		return nil, err
	}
	tweak, err := aes.NewCipher(key[blockSize:])
	if err != nil {
		return nil, err
	}
	return &XTS{data: data, tweak: tweak, sectorSize: sectorSize}, nil
}

// Decrypt decrypts whole sectors from src into dst, numbering them from sector.
func (x *XTS) Decrypt(dst, src []byte, sector uint64) error {
	return x.crypt(dst, src, sector, x.data.Decrypt)
}

// Encrypt encrypts whole sectors from src into dst, numbering them from sector.
func (x *XTS) Encrypt(dst, src []byte, sector uint64) error {
	return x.crypt(dst, src, sector, x.data.Encrypt)
}

func (x *XTS) crypt(dst, src []byte, sector uint64, fn func(dst, src []byte)) error {
	if len(src)%x.sectorSize != 0 || len(dst) < len(src) {
		return ErrNotBlockAligned
	}

	var t, buf [blockSize]byte
	for off := 0; off < len(src); off += x.sectorSize {
		var tweak [blockSize]byte
		binary.BigEndian.PutUint64(tweak[8:], sector)
		x.tweak.Encrypt(t[:], tweak[:])

		for i := off; i < off+x.sectorSize; i += blockSize {
			for j := 0; j < blockSize; j++ {
				buf[j] = src[i+j] ^ t[j]
			}
			fn(buf[:], buf[:])
			for j := 0; j < blockSize; j++ {
				dst[i+j] = buf[j] ^ t[j]
			}
			mulAlpha(&t)
		}
		sector++
	}
	return nil
}

// mulAlpha multiplies the tweak by x in GF(2^128), little-endian byte order.
func mulAlpha(t *[blockSize]byte) {
	var carry byte
	for i := 0; i < blockSize; i++ {
		next := t[i] >> 7
		t[i] = t[i]<<1 | carry
		carry = next
	}
	if carry != 0 {
		t[0] ^= 0x87
	}
}
