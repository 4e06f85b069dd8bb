// Package xci opens gamecard images and exposes their secure partition.
package xci

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"

	"github.com/emunx/nxmeta/internal/container"
	"github.com/emunx/nxmeta/internal/container/pfs"
)

const (
	magicOffset      = 0x100
	rootOffsetField  = 0x130
	rootSizeField    = 0x138
	cardHeaderLength = 0x200

	// SecurePartition holds the title's content archives.
	SecurePartition = "secure"
)

// Image is an opened gamecard image.
type Image struct {
	root   *pfs.Partition
	secure *pfs.Partition
}

// Open reads the card header, the root HFS0 and its secure partition.
func Open(r io.ReaderAt) (*Image, error) {
	var hdr [cardHeaderLength]byte
	if err := container.ReadAtFull(r, hdr[:], 0); err != nil {
		return nil, fmt.Errorf("xci: reading card header: %w", err)
	}
	if string(hdr[magicOffset:magicOffset+4]) != "HEAD" {
		return nil, fmt.Errorf("xci: %w: %q", container.ErrInvalidMagic, hdr[magicOffset:magicOffset+4])
	}

	rootOffset := int64(binary.LittleEndian.Uint64(hdr[rootOffsetField:]))
	if rootOffset < cardHeaderLength {
		return nil, fmt.Errorf("xci: %w: root partition offset %#x", container.ErrCorrupt, rootOffset)
	}

	size := int64(1<<63 - 1)
	if total, ok := container.SizeOf(r); ok {
		if rootOffset >= total {
			return nil, fmt.Errorf("xci: %w: root partition offset %#x", container.ErrTruncated, rootOffset)
		}
		size = total
	}

	root, err := pfs.Open(io.NewSectionReader(r, rootOffset, size-rootOffset))
	if err != nil {
		return nil, fmt.Errorf("xci: root partition: %w", err)
	}

	sr, err := root.OpenEntry(SecurePartition)
	if err != nil {
		return nil, fmt.Errorf("xci: %w", err)
	}
	secure, err := pfs.Open(sr)
	if err != nil {
		return nil, fmt.Errorf("xci: secure partition: %w", err)
	}

	return &Image{root: root, secure: secure}, nil
}

// Partitions lists the names of the root partitions (update, normal, secure...).
func (img *Image) Partitions() []string {
	return img.root.Files()
}

// Secure returns the secure partition.
func (img *Image) Secure() *pfs.Partition {
	return img.secure
}

// Entries implements container.Archive over the secure partition.
func (img *Image) Entries() []container.Entry {
	return img.secure.Entries()
}

// OpenEntry implements container.Archive over the secure partition.
func (img *Image) OpenEntry(name string) (*io.SectionReader, error) {
	return img.secure.OpenEntry(name)
}

// Files implements container.FileSystem over the secure partition.
func (img *Image) Files() []string {
	return img.secure.Files()
}

// Open implements fs.FS over the secure partition.
func (img *Image) Open(name string) (fs.File, error) {
	return img.secure.Open(name)
}
