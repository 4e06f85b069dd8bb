// Package titleid provides the 64-bit application identifier used by Switch titles.
package titleid

import (
	"fmt"
	"strconv"
	"strings"
)

// ID stores a title identifier like 01006B601380E000.
type ID uint64

// ParseHex parses exactly 16 hexadecimal digits (case-insensitive).
func ParseHex(hex string) (ID, error) {
	if len(hex) != 16 {
		return 0, fmt.Errorf("title id %q: expected 16 hex digits, got %d", hex, len(hex))
	}

	n, err := strconv.ParseUint(strings.ToUpper(hex), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("title id %q: %w", hex, err)
	}

	return ID(n), nil
}

// Hex renders the id as 16 uppercase hex digits.
func (id ID) Hex() string {
	return fmt.Sprintf("%016X", uint64(id))
}

func (id ID) String() string {
	return id.Hex()
}

// IsZero reports whether no id has been assigned.
func (id ID) IsZero() bool {
	return id == 0
}
