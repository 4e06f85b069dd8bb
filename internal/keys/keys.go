// Package keys loads console key material from prod.keys / title.keys files.
//
// A KeySet is immutable once loaded and may be shared read-only by any number
// of parsers.
package keys

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// MaxGenerations is the number of master key revisions a key file can describe.
const MaxGenerations = 0x20

var (
	// ErrFileNotFound is returned when the key file does not exist.
	ErrFileNotFound = errors.New("keys: file not found")
	// ErrInvalidKeys is returned when the key file is unusable.
	ErrInvalidKeys = errors.New("keys: invalid key material")
	// ErrKeyMissing is returned when a specific key needed for decryption is absent.
	ErrKeyMissing = errors.New("keys: key missing")
)

// KeyAreaIndex selects which family of key area keys protects a content archive.
type KeyAreaIndex uint8

const (
	KeyAreaApplication KeyAreaIndex = iota
	KeyAreaOcean
	KeyAreaSystem
)

var keyAreaNames = [...]string{"application", "ocean", "system"}

func (k KeyAreaIndex) String() string {
	if int(k) < len(keyAreaNames) {
		return keyAreaNames[k]
	}
	return "unknown(" + strconv.Itoa(int(k)) + ")"
}

// RightsID identifies a title key.
type RightsID [16]byte

func (r RightsID) String() string {
	return hex.EncodeToString(r[:])
}

// IsZero reports whether the rights id is empty, meaning the content is
// protected by its key area instead of a title key.
func (r RightsID) IsZero() bool {
	return r == RightsID{}
}

type key16 struct {
	value [16]byte
	ok    bool
}

// KeySet holds the keys needed to decrypt content archives.
type KeySet struct {
	headerKey   [32]byte
	keyAreaKeys [len(keyAreaNames)][MaxGenerations]key16
	titleKeks   [MaxGenerations]key16
	titleKeys   map[RightsID][16]byte
}

// Load reads a prod.keys style file ("name = hex" per line).
func Load(fsys afero.Fs, path string) (*KeySet, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("keys: reading %s: %w", path, err)
	}

	ks := &KeySet{titleKeys: map[RightsID][16]byte{}}
	if err := ks.parseProd(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := ks.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return ks, nil
}

// LoadTitleKeys returns a copy of ks extended with the decrypted title keys
// listed in a title.keys file ("rightsid = titlekey" per line).
func (ks *KeySet) LoadTitleKeys(fsys afero.Fs, path string) (*KeySet, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("keys: reading %s: %w", path, err)
	}

	out := ks.clone()
	err = eachEntry(data, func(line int, name string, value []byte) error {
		rid, err := hex.DecodeString(name)
		if err != nil || len(rid) != 16 {
			return fmt.Errorf("%w: line %d: bad rights id %q", ErrInvalidKeys, line, name)
		}
		if len(value) != 16 {
			return fmt.Errorf("%w: line %d: title key must be 16 bytes", ErrInvalidKeys, line)
		}
		var r RightsID
		var k [16]byte
		copy(r[:], rid)
		copy(k[:], value)
		out.titleKeys[r] = k
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return out, nil
}

// Validate rejects trivially empty key material.
func (ks *KeySet) Validate() error {
	if ks.headerKey == [32]byte{} {
		return fmt.Errorf("%w: header_key is missing or all zero", ErrInvalidKeys)
	}
	return nil
}

// HeaderKey returns the 32-byte XTS key for content archive headers.
func (ks *KeySet) HeaderKey() []byte {
	k := ks.headerKey
	return k[:]
}

// KeyAreaKey returns the key area key for the given family and master key revision.
func (ks *KeySet) KeyAreaKey(index KeyAreaIndex, generation int) ([]byte, error) {
	if int(index) >= len(keyAreaNames) || generation < 0 || generation >= MaxGenerations {
		return nil, fmt.Errorf("%w: key_area_key_%s_%02x", ErrKeyMissing, index, generation)
	}
	k := ks.keyAreaKeys[index][generation]
	if !k.ok {
		return nil, fmt.Errorf("%w: key_area_key_%s_%02x", ErrKeyMissing, index, generation)
	}
	return k.value[:], nil
}

// TitleKek returns the title key encryption key for a master key revision.
func (ks *KeySet) TitleKek(generation int) ([]byte, error) {
	if generation < 0 || generation >= MaxGenerations || !ks.titleKeks[generation].ok {
		return nil, fmt.Errorf("%w: titlekek_%02x", ErrKeyMissing, generation)
	}
	k := ks.titleKeks[generation].value
	return k[:], nil
}

// TitleKey returns a decrypted title key from title.keys.
func (ks *KeySet) TitleKey(rid RightsID) ([]byte, bool) {
	k, ok := ks.titleKeys[rid]
	if !ok {
		return nil, false
	}
	return k[:], true
}

// TitleKeyCount returns the number of title keys loaded.
func (ks *KeySet) TitleKeyCount() int {
	return len(ks.titleKeys)
}

func (ks *KeySet) clone() *KeySet {
	out := *ks
	out.titleKeys = make(map[RightsID][16]byte, len(ks.titleKeys))
	for k, v := range ks.titleKeys {
		out.titleKeys[k] = v
	}
	return &out
}

func (ks *KeySet) parseProd(data []byte) error {
	return eachEntry(data, func(line int, name string, value []byte) error {
		switch {
		case name == "header_key":
			if len(value) != 32 {
				return fmt.Errorf("%w: line %d: header_key must be 32 bytes", ErrInvalidKeys, line)
			}
			copy(ks.headerKey[:], value)
		case strings.HasPrefix(name, "key_area_key_"):
			rest := strings.TrimPrefix(name, "key_area_key_")
			for i, family := range keyAreaNames {
				if gen, ok := generationSuffix(rest, family+"_"); ok {
					return set16(&ks.keyAreaKeys[i][gen], value, name, line)
				}
			}
		case strings.HasPrefix(name, "titlekek_"):
			if gen, ok := generationSuffix(name, "titlekek_"); ok {
				return set16(&ks.titleKeks[gen], value, name, line)
			}
		}
		return nil
	})
}

func set16(dst *key16, value []byte, name string, line int) error {
	if len(value) != 16 {
		return fmt.Errorf("%w: line %d: %s must be 16 bytes", ErrInvalidKeys, line, name)
	}
	copy(dst.value[:], value)
	dst.ok = true
	return nil
}

func generationSuffix(name, prefix string) (int, bool) {
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	gen, err := strconv.ParseUint(strings.TrimPrefix(name, prefix), 16, 8)
	if err != nil || gen >= MaxGenerations {
		return 0, false
	}
	return int(gen), true
}

// eachEntry walks "name = hexvalue" lines, skipping blanks and comments.
func eachEntry(data []byte, fn func(line int, name string, value []byte) error) error {
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == ';' || text[0] == '#' || text[0] == '[' {
			continue
		}

		name, value, ok := strings.Cut(text, "=")
		if !ok {
			return fmt.Errorf("%w: line %d: expected name = value", ErrInvalidKeys, line)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		raw, err := hex.DecodeString(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: line %d: %s is not hex", ErrInvalidKeys, line, name)
		}
		if err := fn(line, name, raw); err != nil {
			return err
		}
	}
	return sc.Err()
}
