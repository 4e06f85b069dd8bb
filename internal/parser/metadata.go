package parser

import (
	"github.com/emunx/nxmeta/internal/titleid"
)

// RomMetadata is what the parser produces for one ROM. Icon is an owned copy
// that outlives the parser's containers.
type RomMetadata struct {
	Name           string
	Publisher      string
	ID             titleid.ID
	Version        string
	Icon           []byte
	PromptsForUser bool
}

// HasIcon reports whether an icon was extracted.
func (m RomMetadata) HasIcon() bool {
	return len(m.Icon) > 0
}

// Clone returns a deep copy.
func (m RomMetadata) Clone() RomMetadata {
	if m.Icon != nil {
		m.Icon = append([]byte(nil), m.Icon...)
	}
	return m
}
