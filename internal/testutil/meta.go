package testutil

import (
	"encoding/binary"
)

// Content types as stored in content-meta records.
const (
	ContentTypeMeta    = 0
	ContentTypeProgram = 1
	ContentTypeData    = 2
	ContentTypeControl = 3
)

// ContentRecord is one content entry of a synthetic content-meta record.
type ContentRecord struct {
	ID   [16]byte
	Size uint64
	Type byte
}

// BuildCNMT returns an application content-meta record.
func BuildCNMT(titleID uint64, version uint32, contents []ContentRecord) []byte {
	const extSize = 0x10

	out := make([]byte, 0x20+extSize+len(contents)*0x38)
	binary.LittleEndian.PutUint64(out[0:], titleID)
	binary.LittleEndian.PutUint32(out[8:], version)
	out[0xC] = 0x80 // application
	binary.LittleEndian.PutUint16(out[0xE:], extSize)
	binary.LittleEndian.PutUint16(out[0x10:], uint16(len(contents)))
	// patch id in the extended header
	binary.LittleEndian.PutUint64(out[0x20:], titleID|0x800)

	for i, c := range contents {
		e := out[0x20+extSize+i*0x38:]
		copy(e[0x20:0x30], c.ID[:])
		var size [8]byte
		binary.LittleEndian.PutUint64(size[:], c.Size)
		copy(e[0x30:0x36], size[:6])
		e[0x36] = c.Type
	}
	return out
}

// ControlTitle is one language slot of a synthetic control property record.
type ControlTitle struct {
	Name      string
	Publisher string
}

// Control describes a synthetic control property record.
type Control struct {
	Titles             [16]ControlTitle
	DisplayVersion     string
	StartupUserAccount byte
}

// BuildNACP returns a 0x4000 byte control property record.
func BuildNACP(c Control) []byte {
	out := make([]byte, 0x4000)
	for i, t := range c.Titles {
		e := out[i*0x300:]
		copy(e[:0x1FF], t.Name)
		copy(e[0x200:0x2FF], t.Publisher)
	}
	out[0x3025] = c.StartupUserAccount
	copy(out[0x3060:0x306F], c.DisplayVersion)
	return out
}
