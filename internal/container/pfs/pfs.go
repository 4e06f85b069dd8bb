// Package pfs reads PFS0 and HFS0 partition filesystems: the flat archive
// format of NSP files and of the partitions inside XCI gamecard images.
package pfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"

	"github.com/emunx/nxmeta/internal/container"
)

const (
	headerSize     = 0x10
	pfs0EntrySize  = 0x18
	hfs0EntrySize  = 0x40
	maxEntries     = 0x10000
	maxStringTable = 0x100000
)

// Kind distinguishes the two partition flavours.
type Kind int

const (
	KindPFS0 Kind = iota
	KindHFS0
)

func (k Kind) String() string {
	if k == KindHFS0 {
		return "HFS0"
	}
	return "PFS0"
}

var (
	_ container.Archive    = (*Partition)(nil)
	_ container.FileSystem = (*Partition)(nil)
)

// Partition is an opened PFS0/HFS0 partition.
type Partition struct {
	r       io.ReaderAt
	kind    Kind
	entries []container.Entry
	index   map[string]int
}

// Open parses the partition header at the start of r. Entry offsets are
// relative to r.
func Open(r io.ReaderAt) (*Partition, error) {
	var hdr [headerSize]byte
	if err := container.ReadAtFull(r, hdr[:], 0); err != nil {
		return nil, fmt.Errorf("pfs: reading header: %w", err)
	}

	var kind Kind
	var entrySize int
	switch string(hdr[0:4]) {
	case "PFS0":
		kind, entrySize = KindPFS0, pfs0EntrySize
	case "HFS0":
		kind, entrySize = KindHFS0, hfs0EntrySize
	default:
		return nil, fmt.Errorf("pfs: %w: %q", container.ErrInvalidMagic, hdr[0:4])
	}

	count := binary.LittleEndian.Uint32(hdr[4:8])
	strSize := binary.LittleEndian.Uint32(hdr[8:12])
	if count > maxEntries || strSize > maxStringTable {
		return nil, fmt.Errorf("pfs: %w: %d entries, %d byte string table", container.ErrCorrupt, count, strSize)
	}

	table := make([]byte, int(count)*entrySize+int(strSize))
	if err := container.ReadAtFull(r, table, headerSize); err != nil {
		return nil, fmt.Errorf("pfs: reading entry table: %w", err)
	}
	strTable := table[int(count)*entrySize:]
	dataStart := int64(headerSize + len(table))

	total, hasSize := container.SizeOf(r)

	p := &Partition{
		r:       r,
		kind:    kind,
		entries: make([]container.Entry, 0, count),
		index:   make(map[string]int, count),
	}
	for i := 0; i < int(count); i++ {
		raw := table[i*entrySize : (i+1)*entrySize]
		offset := binary.LittleEndian.Uint64(raw[0:8])
		size := binary.LittleEndian.Uint64(raw[8:16])
		nameOff := binary.LittleEndian.Uint32(raw[16:20])

		if nameOff >= uint32(len(strTable)) {
			return nil, fmt.Errorf("pfs: %w: entry %d name offset %#x", container.ErrCorrupt, i, nameOff)
		}
		name := strTable[nameOff:]
		if end := bytes.IndexByte(name, 0); end >= 0 {
			name = name[:end]
		}
		if len(name) == 0 {
			return nil, fmt.Errorf("pfs: %w: entry %d has an empty name", container.ErrCorrupt, i)
		}

		e := container.Entry{
			Name:   string(name),
			Offset: dataStart + int64(offset),
			Size:   int64(size),
		}
		if e.Offset < dataStart || e.Size < 0 || (hasSize && e.Offset+e.Size > total) {
			return nil, fmt.Errorf("pfs: %w: entry %q exceeds partition", container.ErrTruncated, e.Name)
		}

		if _, dup := p.index[e.Name]; !dup {
			p.index[e.Name] = len(p.entries)
		}
		p.entries = append(p.entries, e)
	}

	return p, nil
}

// Kind reports whether the partition is PFS0 or HFS0.
func (p *Partition) Kind() Kind {
	return p.kind
}

// Entries returns the entries in archive order.
func (p *Partition) Entries() []container.Entry {
	out := make([]container.Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// OpenEntry returns a stream over the named entry.
func (p *Partition) OpenEntry(name string) (*io.SectionReader, error) {
	i, ok := p.index[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	e := p.entries[i]
	return io.NewSectionReader(p.r, e.Offset, e.Size), nil
}

// Files implements container.FileSystem.
func (p *Partition) Files() []string {
	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = e.Name
	}
	return names
}

// Open implements fs.FS.
func (p *Partition) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		return container.OpenDir(".", p.Files(), p.sizeOf)
	}
	sr, err := p.OpenEntry(name)
	if err != nil {
		return nil, err
	}
	return container.NewFile(name, sr), nil
}

func (p *Partition) sizeOf(name string) int64 {
	if i, ok := p.index[name]; ok {
		return p.entries[i].Size
	}
	return 0
}
