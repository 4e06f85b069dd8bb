package nca

import (
	"encoding/binary"
	"fmt"

	"github.com/emunx/nxmeta/internal/container"
	"github.com/emunx/nxmeta/internal/crypto"
	"github.com/emunx/nxmeta/internal/keys"
)

// Title key types.
const (
	TitleKeyCommon       = 0
	TitleKeyPersonalized = 1
)

// signature type -> signature length plus padding
var signatureSizes = map[uint32]int{
	0x010000: 0x200 + 0x3C,
	0x010001: 0x100 + 0x3C,
	0x010002: 0x3C + 0x40,
	0x010003: 0x200 + 0x3C,
	0x010004: 0x100 + 0x3C,
	0x010005: 0x3C + 0x40,
	0x010006: 0x14 + 0x28,
}

const ticketBodySize = 0x180

// Ticket is the part of an eShop ticket needed to recover a title key.
type Ticket struct {
	RightsID          keys.RightsID
	KeyType           uint8
	MasterKeyRevision uint8

	titleKeyBlock [16]byte
}

// ParseTicket decodes a .tik file.
func ParseTicket(data []byte) (*Ticket, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("ticket: %w", container.ErrTruncated)
	}
	sigType := binary.LittleEndian.Uint32(data)
	sigSize, ok := signatureSizes[sigType]
	if !ok {
		return nil, fmt.Errorf("ticket: %w: signature type %#x", container.ErrInvalidMagic, sigType)
	}
	start := 4 + sigSize
	if len(data) < start+ticketBodySize {
		return nil, fmt.Errorf("ticket: %w", container.ErrTruncated)
	}
	body := data[start:]

	t := &Ticket{
		KeyType:           body[0x141],
		MasterKeyRevision: body[0x145],
	}
	copy(t.titleKeyBlock[:], body[0x40:0x50])
	copy(t.RightsID[:], body[0x160:0x170])
	return t, nil
}

// TitleKey decrypts the common title key with the title kek of generation.
func (t *Ticket) TitleKey(ks *keys.KeySet, generation int) ([]byte, error) {
	if t.KeyType != TitleKeyCommon {
		return nil, fmt.Errorf("%w: personalized ticket for %s", ErrUnsupported, t.RightsID)
	}
	kek, err := ks.TitleKek(generation)
	if err != nil {
		return nil, err
	}
	key := make([]byte, 16)
	if err := crypto.DecryptECB(kek, key, t.titleKeyBlock[:]); err != nil {
		return nil, fmt.Errorf("ticket: %w", err)
	}
	return key, nil
}
