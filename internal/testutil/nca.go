package testutil

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/emunx/nxmeta/internal/crypto"
)

// Test key material. None of these are real console keys.
var (
	HeaderKey      = repeat(0x10, 32)
	KeyAreaKeyApp0 = repeat(0x20, 16)
	TitleKek0      = repeat(0x30, 16)
	SectionKey     = repeat(0x40, 16)
	TitleKeyPlain  = repeat(0x50, 16)
)

func repeat(seed byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = seed + byte(i)
	}
	return out
}

// ProdKeys returns a prod.keys file for the test key material.
func ProdKeys() string {
	var b strings.Builder
	b.WriteString("; synthetic keys\n")
	fmt.Fprintf(&b, "header_key = %s\n", hex.EncodeToString(HeaderKey))
	fmt.Fprintf(&b, "key_area_key_application_00 = %s\n", hex.EncodeToString(KeyAreaKeyApp0))
	fmt.Fprintf(&b, "titlekek_00 = %s\n", hex.EncodeToString(TitleKek0))
	return b.String()
}

// Content archive section filesystem types.
const (
	SectionRomFS = 0
	SectionPFS0  = 1
)

// Content archive content types.
const (
	NCAProgram = 0
	NCAMeta    = 1
	NCAControl = 2
)

// NCA describes a synthetic single-section content archive.
type NCA struct {
	ContentType byte
	ProgramID   uint64
	SectionType int
	Image       []byte
	// RightsID switches the archive to title key crypto with TitleKeyPlain.
	RightsID [16]byte
	// Plaintext disables section encryption.
	Plaintext bool
}

const (
	ncaHeaderSize   = 0xC00
	mediaUnit       = 0x200
	sectionPadding  = 0x200
	fsHeaderOffset  = 0x400
	ctrUpperOffset  = 0x140
	hashDataOffset  = 0x8
	pfs0OffsetField = 0x38
	ivfcLevelField  = 0x88
)

// CTRUpper is the section counter stored (byte reversed) in every synthetic
// archive's section header.
var CTRUpper = [8]byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}

// BuildNCA returns an encrypted content archive.
func BuildNCA(n NCA) []byte {
	section := make([]byte, sectionPadding+len(n.Image))
	copy(section[sectionPadding:], n.Image)
	for len(section)%mediaUnit != 0 {
		section = append(section, 0)
	}

	total := ncaHeaderSize + len(section)
	header := make([]byte, ncaHeaderSize)
	copy(header[0x200:0x204], "NCA3")
	header[0x205] = n.ContentType
	binary.LittleEndian.PutUint64(header[0x208:], uint64(total))
	binary.LittleEndian.PutUint64(header[0x210:], n.ProgramID)
	copy(header[0x230:0x240], n.RightsID[:])

	binary.LittleEndian.PutUint32(header[0x240:], ncaHeaderSize/mediaUnit)
	binary.LittleEndian.PutUint32(header[0x244:], uint32(total/mediaUnit))

	fsh := header[fsHeaderOffset : fsHeaderOffset+0x200]
	binary.LittleEndian.PutUint16(fsh[0:], 2)
	hd := fsh[hashDataOffset:]
	if n.SectionType == SectionPFS0 {
		fsh[2] = SectionPFS0
		fsh[3] = 2
		binary.LittleEndian.PutUint64(hd[pfs0OffsetField:], sectionPadding)
		binary.LittleEndian.PutUint64(hd[pfs0OffsetField+8:], uint64(len(n.Image)))
	} else {
		fsh[2] = SectionRomFS
		fsh[3] = 3
		copy(hd[0:4], "IVFC")
		binary.LittleEndian.PutUint64(hd[ivfcLevelField:], sectionPadding)
		binary.LittleEndian.PutUint64(hd[ivfcLevelField+8:], uint64(len(n.Image)))
	}
	if n.Plaintext {
		fsh[4] = 1
	} else {
		fsh[4] = 3
	}
	for i := 0; i < 8; i++ {
		fsh[ctrUpperOffset+i] = CTRUpper[7-i]
	}

	key := SectionKey
	if n.RightsID != ([16]byte{}) {
		key = TitleKeyPlain
	} else {
		var area [64]byte
		copy(area[32:48], SectionKey)
		if err := crypto.EncryptECB(KeyAreaKeyApp0, header[0x300:0x340], area[:]); err != nil {
			panic(err)
		}
	}

	if !n.Plaintext {
		full := make([]byte, total)
		copy(full[ncaHeaderSize:], section)
		ctr, err := crypto.NewCTRReaderAt(bytes.NewReader(full), key, CTRUpper)
		if err != nil {
			panic(err)
		}
		if _, err := ctr.ReadAt(section, ncaHeaderSize); err != nil {
			panic(err)
		}
	}

	x, err := crypto.NewXTS(HeaderKey, mediaUnit)
	if err != nil {
		panic(err)
	}
	enc := make([]byte, ncaHeaderSize)
	if err := x.Encrypt(enc, header, 0); err != nil {
		panic(err)
	}

	return append(enc, section...)
}

// BuildTicket returns a common ticket carrying TitleKeyPlain encrypted with
// TitleKek0.
func BuildTicket(rightsID [16]byte) []byte {
	out := make([]byte, 0x2C0)
	binary.LittleEndian.PutUint32(out[0:], 0x10004)
	if err := crypto.EncryptECB(TitleKek0, out[0x180:0x190], TitleKeyPlain); err != nil {
		panic(err)
	}
	out[0x280] = 2
	out[0x281] = 0
	out[0x285] = 0
	copy(out[0x2A0:0x2B0], rightsID[:])
	return out
}

// ContentID returns a deterministic content id derived from seed.
func ContentID(seed byte) [16]byte {
	var id [16]byte
	copy(id[:], repeat(seed, 16))
	return id
}

// ContentName returns the lowercase hex file name of a content id.
func ContentName(id [16]byte, meta bool) string {
	if meta {
		return hex.EncodeToString(id[:]) + ".cnmt.nca"
	}
	return hex.EncodeToString(id[:]) + ".nca"
}
