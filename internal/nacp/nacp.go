// Package nacp decodes the application control property record (control.nacp).
package nacp

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// Size is the exact length of a control property record.
	Size = 0x4000
	// TitleCount is the number of language slots in the title table.
	TitleCount = 16

	titleEntrySize          = 0x300
	nameSize                = 0x200
	publisherSize           = 0x100
	startupUserAccountField = 0x3025
	displayVersionField     = 0x3060
	displayVersionSize      = 0x10
)

// ErrMalformed is returned for records of the wrong size.
var ErrMalformed = errors.New("nacp: malformed record")

// Title is one language slot of the title table.
type Title struct {
	Name      string
	Publisher string
}

// StartupUserAccount controls whether the title asks for a user on boot.
type StartupUserAccount uint8

const (
	StartupUserAccountNone StartupUserAccount = iota
	StartupUserAccountRequired
	StartupUserAccountRequiredWithNetworkServiceAccountAvailable
)

// Control is a decoded record.
type Control struct {
	Titles             [TitleCount]Title
	DisplayVersion     string
	StartupUserAccount StartupUserAccount
}

// Decode parses exactly Size bytes.
func Decode(data []byte) (*Control, error) {
	if len(data) != Size {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformed, Size, len(data))
	}

	c := &Control{
		DisplayVersion:     cString(data[displayVersionField : displayVersionField+displayVersionSize]),
		StartupUserAccount: StartupUserAccount(data[startupUserAccountField]),
	}
	for i := range c.Titles {
		e := data[i*titleEntrySize : (i+1)*titleEntrySize]
		c.Titles[i] = Title{
			Name:      cString(e[:nameSize]),
			Publisher: cString(e[nameSize : nameSize+publisherSize]),
		}
	}
	return c, nil
}

// Title returns the title slot at index, or the zero Title when index is out
// of range.
func (c *Control) Title(index int) Title {
	if index < 0 || index >= TitleCount {
		return Title{}
	}
	return c.Titles[index]
}

// Name returns the name stored at index.
func (c *Control) Name(index int) string {
	return c.Title(index).Name
}

// Publisher returns the publisher stored at index.
func (c *Control) Publisher(index int) string {
	return c.Title(index).Publisher
}

// cString decodes a NUL-terminated UTF-8 field, dropping invalid sequences.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	s := string(b)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return norm.NFC.String(s)
}
