// Package romfs reads RomFS images, the hierarchical read-only filesystem
// stored in content archive sections.
package romfs

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/emunx/nxmeta/internal/container"
)

const (
	headerSize    = 0x50
	dirEntrySize  = 0x18
	fileEntrySize = 0x20
	emptyEntry    = 0xFFFFFFFF
	maxMetaSize   = 64 << 20
)

var _ container.FileSystem = (*FS)(nil)

type header struct {
	headerSize     uint64
	dirHashOffset  uint64
	dirHashSize    uint64
	dirMetaOffset  uint64
	dirMetaSize    uint64
	fileHashOffset uint64
	fileHashSize   uint64
	fileMetaOffset uint64
	fileMetaSize   uint64
	dataOffset     uint64
}

type file struct {
	offset int64
	size   int64
}

// FS is an opened RomFS image.
type FS struct {
	r     io.ReaderAt
	order []string
	files map[string]file
}

// Open walks the directory tree of the RomFS image at the start of r.
func Open(r io.ReaderAt) (*FS, error) {
	var raw [headerSize]byte
	if err := container.ReadAtFull(r, raw[:], 0); err != nil {
		return nil, fmt.Errorf("romfs: reading header: %w", err)
	}

	var h header
	fields := []*uint64{
		&h.headerSize, &h.dirHashOffset, &h.dirHashSize, &h.dirMetaOffset, &h.dirMetaSize,
		&h.fileHashOffset, &h.fileHashSize, &h.fileMetaOffset, &h.fileMetaSize, &h.dataOffset,
	}
	for i, f := range fields {
		*f = binary.LittleEndian.Uint64(raw[i*8:])
	}
	if h.headerSize != headerSize {
		return nil, fmt.Errorf("romfs: %w: header size %#x", container.ErrInvalidMagic, h.headerSize)
	}
	if h.dirMetaSize < dirEntrySize || h.dirMetaSize > maxMetaSize || h.fileMetaSize > maxMetaSize {
		return nil, fmt.Errorf("romfs: %w: metadata table sizes %#x/%#x", container.ErrCorrupt, h.dirMetaSize, h.fileMetaSize)
	}

	dirMeta := make([]byte, h.dirMetaSize)
	if err := container.ReadAtFull(r, dirMeta, int64(h.dirMetaOffset)); err != nil {
		return nil, fmt.Errorf("romfs: reading directory table: %w", err)
	}
	fileMeta := make([]byte, h.fileMetaSize)
	if err := container.ReadAtFull(r, fileMeta, int64(h.fileMetaOffset)); err != nil {
		return nil, fmt.Errorf("romfs: reading file table: %w", err)
	}

	total, hasSize := container.SizeOf(r)

	w := &walker{
		total:      total,
		hasSize:    hasSize,
		dirMeta:    dirMeta,
		fileMeta:   fileMeta,
		dataOffset: int64(h.dataOffset),
		fs:         &FS{r: r, files: map[string]file{}},
		visited:    map[uint32]bool{},
	}
	if err := w.dir(0, ""); err != nil {
		return nil, fmt.Errorf("romfs: %w", err)
	}
	return w.fs, nil
}

type walker struct {
	total      int64
	hasSize    bool
	dirMeta    []byte
	fileMeta   []byte
	dataOffset int64
	fs         *FS
	visited    map[uint32]bool
}

func (w *walker) dir(off uint32, prefix string) error {
	if w.visited[off] {
		return fmt.Errorf("%w: directory loop at %#x", container.ErrCorrupt, off)
	}
	w.visited[off] = true

	if uint64(off)+dirEntrySize > uint64(len(w.dirMeta)) {
		return fmt.Errorf("%w: directory entry %#x", container.ErrCorrupt, off)
	}
	e := w.dirMeta[off:]
	childDir := binary.LittleEndian.Uint32(e[8:])
	childFile := binary.LittleEndian.Uint32(e[12:])

	for fo, n := childFile, 0; fo != emptyEntry; n++ {
		if n > len(w.fileMeta)/fileEntrySize {
			return fmt.Errorf("%w: file list loop in %q", container.ErrCorrupt, prefix)
		}
		next, err := w.file(fo, prefix)
		if err != nil {
			return err
		}
		fo = next
	}

	for do := childDir; do != emptyEntry; {
		if uint64(do)+dirEntrySize > uint64(len(w.dirMeta)) {
			return fmt.Errorf("%w: directory entry %#x", container.ErrCorrupt, do)
		}
		d := w.dirMeta[do:]
		name, err := entryName(d, 0x14, dirEntrySize)
		if err != nil {
			return err
		}
		if err := w.dir(do, prefix+name+"/"); err != nil {
			return err
		}
		do = binary.LittleEndian.Uint32(d[4:])
	}
	return nil
}

func (w *walker) file(off uint32, prefix string) (uint32, error) {
	if uint64(off)+fileEntrySize > uint64(len(w.fileMeta)) {
		return 0, fmt.Errorf("%w: file entry %#x", container.ErrCorrupt, off)
	}
	e := w.fileMeta[off:]
	name, err := entryName(e, 0x1C, fileEntrySize)
	if err != nil {
		return 0, err
	}

	p := prefix + name
	fe := file{
		offset: w.dataOffset + int64(binary.LittleEndian.Uint64(e[8:])),
		size:   int64(binary.LittleEndian.Uint64(e[16:])),
	}
	if fe.offset < w.dataOffset || fe.size < 0 || (w.hasSize && (fe.offset > w.total || fe.size > w.total-fe.offset)) {
		return 0, fmt.Errorf("%w: file %q exceeds image", container.ErrCorrupt, p)
	}
	if _, dup := w.fs.files[p]; !dup {
		w.fs.order = append(w.fs.order, p)
		w.fs.files[p] = fe
	}
	return binary.LittleEndian.Uint32(e[4:]), nil
}

func entryName(e []byte, lenField, nameStart int) (string, error) {
	n := int(binary.LittleEndian.Uint32(e[lenField:]))
	if n == 0 || n > len(e)-nameStart {
		return "", fmt.Errorf("%w: bad entry name length %d", container.ErrCorrupt, n)
	}
	name := string(e[nameStart : nameStart+n])
	if strings.Contains(name, "/") {
		return "", fmt.Errorf("%w: entry name %q", container.ErrCorrupt, name)
	}
	return name, nil
}

// Files returns every file path in directory-walk order.
func (f *FS) Files() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Open implements fs.FS.
func (f *FS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if fe, ok := f.files[name]; ok {
		return container.NewFile(name, io.NewSectionReader(f.r, fe.offset, fe.size)), nil
	}
	return container.OpenDir(name, f.order, f.sizeOf)
}

func (f *FS) sizeOf(name string) int64 {
	return f.files[name].size
}
