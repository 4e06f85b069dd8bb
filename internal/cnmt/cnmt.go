// Package cnmt decodes content-meta records, which list the content archives
// that make up a title.
package cnmt

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/emunx/nxmeta/internal/titleid"
)

const (
	headerSize      = 0x20
	contentInfoSize = 0x38
)

// ErrMalformed is returned for records that cannot be decoded.
var ErrMalformed = errors.New("cnmt: malformed record")

// ContentType is the role of one content of a title.
type ContentType uint8

const (
	ContentTypeMeta ContentType = iota
	ContentTypeProgram
	ContentTypeData
	ContentTypeControl
	ContentTypeHtmlDocument
	ContentTypeLegalInformation
	ContentTypeDeltaFragment
)

var contentTypeNames = [...]string{"Meta", "Program", "Data", "Control", "HtmlDocument", "LegalInformation", "DeltaFragment"}

func (c ContentType) String() string {
	if int(c) < len(contentTypeNames) {
		return contentTypeNames[c]
	}
	return fmt.Sprintf("ContentType(%d)", uint8(c))
}

// MetaType is the kind of title a record describes.
type MetaType uint8

const (
	MetaApplication MetaType = 0x80
	MetaPatch       MetaType = 0x81
	MetaAddOn       MetaType = 0x82
	MetaDelta       MetaType = 0x83
)

func (m MetaType) String() string {
	switch m {
	case MetaApplication:
		return "Application"
	case MetaPatch:
		return "Patch"
	case MetaAddOn:
		return "AddOnContent"
	case MetaDelta:
		return "Delta"
	default:
		return fmt.Sprintf("MetaType(%#x)", uint8(m))
	}
}

// ContentID names a content archive ("<id>.nca" in lowercase hex).
type ContentID [16]byte

func (c ContentID) String() string {
	return hex.EncodeToString(c[:])
}

// Content is one entry of the content list.
type Content struct {
	ID   ContentID
	Size uint64
	Type ContentType
}

// ContentMeta is a decoded record.
type ContentMeta struct {
	TitleID  titleid.ID
	Version  uint32
	Type     MetaType
	Contents []Content
}

// Decode parses a record from its raw bytes.
func Decode(data []byte) (*ContentMeta, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d byte header", ErrMalformed, len(data))
	}

	m := &ContentMeta{
		TitleID: titleid.ID(binary.LittleEndian.Uint64(data[0:])),
		Version: binary.LittleEndian.Uint32(data[8:]),
		Type:    MetaType(data[0xC]),
	}
	extSize := int(binary.LittleEndian.Uint16(data[0xE:]))
	count := int(binary.LittleEndian.Uint16(data[0x10:]))

	start := headerSize + extSize
	if len(data) < start+count*contentInfoSize {
		return nil, fmt.Errorf("%w: %d contents do not fit in %d bytes", ErrMalformed, count, len(data))
	}

	m.Contents = make([]Content, count)
	for i := range m.Contents {
		e := data[start+i*contentInfoSize:]
		var size [8]byte
		copy(size[:6], e[0x30:0x36])

		c := &m.Contents[i]
		copy(c.ID[:], e[0x20:0x30])
		c.Size = binary.LittleEndian.Uint64(size[:])
		c.Type = ContentType(e[0x36])
	}
	return m, nil
}

// ContentByType returns the first content of type t.
func (m *ContentMeta) ContentByType(t ContentType) (Content, bool) {
	for _, c := range m.Contents {
		if c.Type == t {
			return c, true
		}
	}
	return Content{}, false
}

// ControlID returns the lowercase hex content id of the control archive.
func (m *ContentMeta) ControlID() (string, bool) {
	c, ok := m.ContentByType(ContentTypeControl)
	if !ok {
		return "", false
	}
	return c.ID.String(), true
}
