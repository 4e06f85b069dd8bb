// Package nca decrypts content archives (NCA3) and opens the filesystems
// stored in their sections.
package nca

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/emunx/nxmeta/internal/container"
	"github.com/emunx/nxmeta/internal/container/pfs"
	"github.com/emunx/nxmeta/internal/container/romfs"
	"github.com/emunx/nxmeta/internal/crypto"
	"github.com/emunx/nxmeta/internal/keys"
	"github.com/emunx/nxmeta/internal/titleid"
)

const (
	HeaderSize  = 0xC00
	MaxSections = 4

	mediaUnit       = 0x200
	fsHeaderOffset  = 0x400
	fsHeaderSize    = 0x200
	keyAreaOffset   = 0x300
	sectionTableOff = 0x240
)

var (
	// ErrUnsupported is returned for archive versions, section encodings or
	// crypto schemes this package does not handle.
	ErrUnsupported = errors.New("nca: unsupported")
	// ErrNoSection is returned when the requested section is absent.
	ErrNoSection = errors.New("nca: section not present")
)

// ContentType is the role of a content archive within a title.
type ContentType uint8

const (
	ContentProgram ContentType = iota
	ContentMeta
	ContentControl
	ContentManual
	ContentData
	ContentPublicData
)

var contentTypeNames = [...]string{"Program", "Meta", "Control", "Manual", "Data", "PublicData"}

func (c ContentType) String() string {
	if int(c) < len(contentTypeNames) {
		return contentTypeNames[c]
	}
	return fmt.Sprintf("ContentType(%d)", uint8(c))
}

// FSType is the filesystem stored in a section.
type FSType uint8

const (
	FSRomFS FSType = 0
	FSPFS0  FSType = 1
)

// Encryption is a section's crypto scheme.
type Encryption uint8

const (
	EncryptionAuto Encryption = iota
	EncryptionNone
	EncryptionXTS
	EncryptionCTR
	EncryptionBKTR
)

const (
	hashSHA256 = 2
	hashIVFC   = 3
)

// Section describes one entry of the section table.
type Section struct {
	Present    bool
	Offset     int64 // absolute, in bytes
	Size       int64
	FSType     FSType
	HashType   uint8
	Encryption Encryption
	CTRUpper   [8]byte

	dataOffset int64 // filesystem image, relative to Offset
	dataSize   int64
}

// Header is the decrypted archive header.
type Header struct {
	Distribution  uint8
	ContentType   ContentType
	KeyGeneration int
	KeyAreaIndex  keys.KeyAreaIndex
	ContentSize   uint64
	ProgramID     titleid.ID
	ContentIndex  uint32
	RightsID      keys.RightsID
	Sections      [MaxSections]Section

	encKeyArea [4][16]byte
}

// TitleKeyFunc resolves the decrypted title key for archives that use
// title key crypto.
type TitleKeyFunc func(rid keys.RightsID, generation int) ([]byte, error)

// Option configures Open.
type Option func(*Archive)

// WithTitleKeys overrides how title keys are resolved. By default only the
// title keys loaded into the KeySet are consulted.
func WithTitleKeys(fn TitleKeyFunc) Option {
	return func(a *Archive) {
		a.titleKey = fn
	}
}

// Archive is an opened content archive.
type Archive struct {
	r        io.ReaderAt
	ks       *keys.KeySet
	header   Header
	titleKey TitleKeyFunc
}

// Open decrypts and parses the header of the content archive at the start of r.
func Open(r io.ReaderAt, ks *keys.KeySet, opts ...Option) (*Archive, error) {
	raw := make([]byte, HeaderSize)
	if err := container.ReadAtFull(r, raw, 0); err != nil {
		return nil, fmt.Errorf("nca: reading header: %w", err)
	}

	x, err := crypto.NewXTS(ks.HeaderKey(), mediaUnit)
	if err != nil {
		return nil, fmt.Errorf("nca: %w", err)
	}
	if err := x.Decrypt(raw, raw, 0); err != nil {
		return nil, fmt.Errorf("nca: decrypting header: %w", err)
	}

	switch magic := string(raw[0x200:0x204]); magic {
	case "NCA3":
	case "NCA2", "NCA0":
		return nil, fmt.Errorf("%w: archive version %s", ErrUnsupported, magic)
	default:
		return nil, fmt.Errorf("nca: %w: %q (wrong header key?)", container.ErrInvalidMagic, magic)
	}

	a := &Archive{r: r, ks: ks}
	a.titleKey = a.keySetTitleKey
	for _, opt := range opts {
		opt(a)
	}

	if err := a.parseHeader(raw); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) parseHeader(raw []byte) error {
	h := &a.header
	h.Distribution = raw[0x204]
	h.ContentType = ContentType(raw[0x205])
	gen := int(max(raw[0x206], raw[0x220]))
	if gen > 0 {
		gen--
	}
	h.KeyGeneration = gen
	h.KeyAreaIndex = keys.KeyAreaIndex(raw[0x207])
	h.ContentSize = binary.LittleEndian.Uint64(raw[0x208:])
	h.ProgramID = titleid.ID(binary.LittleEndian.Uint64(raw[0x210:]))
	h.ContentIndex = binary.LittleEndian.Uint32(raw[0x218:])
	copy(h.RightsID[:], raw[0x230:0x240])
	for i := range h.encKeyArea {
		copy(h.encKeyArea[i][:], raw[keyAreaOffset+i*16:])
	}

	total, hasSize := container.SizeOf(a.r)
	for i := 0; i < MaxSections; i++ {
		entry := raw[sectionTableOff+i*0x10:]
		start := int64(binary.LittleEndian.Uint32(entry[0:])) * mediaUnit
		end := int64(binary.LittleEndian.Uint32(entry[4:])) * mediaUnit
		if start == 0 && end == 0 {
			continue
		}
		if end < start || start < HeaderSize || (hasSize && end > total) {
			return fmt.Errorf("nca: %w: section %d spans %#x-%#x", container.ErrCorrupt, i, start, end)
		}

		fsh := raw[fsHeaderOffset+i*fsHeaderSize : fsHeaderOffset+(i+1)*fsHeaderSize]
		s := Section{
			Present:    true,
			Offset:     start,
			Size:       end - start,
			FSType:     FSType(fsh[2]),
			HashType:   fsh[3],
			Encryption: Encryption(fsh[4]),
		}
		for j := 0; j < 8; j++ {
			s.CTRUpper[j] = fsh[0x147-j]
		}

		hashData := fsh[0x8:]
		switch s.HashType {
		case hashSHA256:
			s.dataOffset = int64(binary.LittleEndian.Uint64(hashData[0x38:]))
			s.dataSize = int64(binary.LittleEndian.Uint64(hashData[0x40:]))
		case hashIVFC:
			s.dataOffset = int64(binary.LittleEndian.Uint64(hashData[0x88:]))
			s.dataSize = int64(binary.LittleEndian.Uint64(hashData[0x90:]))
		default:
			s.dataOffset, s.dataSize = 0, s.Size
		}
		if s.dataOffset < 0 || s.dataSize < 0 || s.dataOffset+s.dataSize > s.Size {
			return fmt.Errorf("nca: %w: section %d filesystem exceeds section", container.ErrCorrupt, i)
		}

		h.Sections[i] = s
	}
	return nil
}

// Header returns the decrypted header.
func (a *Archive) Header() Header {
	return a.header
}

// OpenSection returns the plaintext filesystem image of section i.
func (a *Archive) OpenSection(i int) (*io.SectionReader, error) {
	if i < 0 || i >= MaxSections || !a.header.Sections[i].Present {
		return nil, fmt.Errorf("%w: %d", ErrNoSection, i)
	}
	s := a.header.Sections[i]

	var src io.ReaderAt
	switch s.Encryption {
	case EncryptionNone:
		src = a.r
	case EncryptionCTR:
		key, err := a.sectionKey()
		if err != nil {
			return nil, err
		}
		ctr, err := crypto.NewCTRReaderAt(a.r, key, s.CTRUpper)
		if err != nil {
			return nil, fmt.Errorf("nca: %w", err)
		}
		src = ctr
	default:
		return nil, fmt.Errorf("%w: section %d encryption type %d", ErrUnsupported, i, s.Encryption)
	}

	return io.NewSectionReader(src, s.Offset+s.dataOffset, s.dataSize), nil
}

// FileSystem opens the filesystem of section i.
func (a *Archive) FileSystem(i int) (container.FileSystem, error) {
	sr, err := a.OpenSection(i)
	if err != nil {
		return nil, err
	}

	switch a.header.Sections[i].FSType {
	case FSPFS0:
		p, err := pfs.Open(sr)
		if err != nil {
			return nil, fmt.Errorf("nca: section %d: %w", i, err)
		}
		return p, nil
	case FSRomFS:
		r, err := romfs.Open(sr)
		if err != nil {
			return nil, fmt.Errorf("nca: section %d: %w", i, err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: section %d filesystem type %d", ErrUnsupported, i, a.header.Sections[i].FSType)
	}
}

func (a *Archive) sectionKey() ([]byte, error) {
	h := a.header
	if !h.RightsID.IsZero() {
		key, err := a.titleKey(h.RightsID, h.KeyGeneration)
		if err != nil {
			return nil, fmt.Errorf("nca: title key for %s: %w", h.RightsID, err)
		}
		return key, nil
	}

	kak, err := a.ks.KeyAreaKey(h.KeyAreaIndex, h.KeyGeneration)
	if err != nil {
		return nil, fmt.Errorf("nca: %w", err)
	}
	key := make([]byte, 16)
	if err := crypto.DecryptECB(kak, key, h.encKeyArea[2][:]); err != nil {
		return nil, fmt.Errorf("nca: decrypting key area: %w", err)
	}
	return key, nil
}

func (a *Archive) keySetTitleKey(rid keys.RightsID, _ int) ([]byte, error) {
	if key, ok := a.ks.TitleKey(rid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: title key %s", keys.ErrKeyMissing, rid)
}
