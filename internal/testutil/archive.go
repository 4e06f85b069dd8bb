// Package testutil builds small synthetic Switch archives for tests: partition
// filesystems, gamecard images, RomFS images, content-meta and control
// property records, and encrypted content archives.
package testutil

import (
	"encoding/binary"
	"sort"
	"strings"
)

// File is one named blob placed in a synthetic archive.
type File struct {
	Name string
	Data []byte
}

// BuildPFS0 returns a PFS0 partition holding files in the given order.
func BuildPFS0(files []File) []byte {
	return buildPartition("PFS0", 0x18, files)
}

// BuildHFS0 returns an HFS0 partition holding files in the given order.
func BuildHFS0(files []File) []byte {
	return buildPartition("HFS0", 0x40, files)
}

func buildPartition(magic string, entrySize int, files []File) []byte {
	var names []byte
	nameOffsets := make([]int, len(files))
	for i, f := range files {
		nameOffsets[i] = len(names)
		names = append(names, f.Name...)
		names = append(names, 0)
	}
	for len(names)%0x10 != 0 {
		names = append(names, 0)
	}

	header := make([]byte, 0x10+len(files)*entrySize)
	copy(header[0:4], magic)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(files)))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(names)))

	var data []byte
	for i, f := range files {
		e := header[0x10+i*entrySize:]
		binary.LittleEndian.PutUint64(e[0:8], uint64(len(data)))
		binary.LittleEndian.PutUint64(e[8:16], uint64(len(f.Data)))
		binary.LittleEndian.PutUint32(e[16:20], uint32(nameOffsets[i]))
		data = append(data, f.Data...)
	}

	out := append(header, names...)
	return append(out, data...)
}

// XCI layout used by BuildXCI.
const (
	XCIRootOffset = 0x200
)

// BuildXCI returns a gamecard image whose root HFS0 holds the given
// partitions (usually "update", "normal" and "secure", each an HFS0 image).
func BuildXCI(partitions []File) []byte {
	root := BuildHFS0(partitions)

	header := make([]byte, XCIRootOffset)
	copy(header[0x100:0x104], "HEAD")
	binary.LittleEndian.PutUint64(header[0x130:0x138], XCIRootOffset)
	binary.LittleEndian.PutUint64(header[0x138:0x140], uint64(hfsHeaderSize(root)))

	return append(header, root...)
}

func hfsHeaderSize(p []byte) int {
	count := int(binary.LittleEndian.Uint32(p[4:8]))
	strSize := int(binary.LittleEndian.Uint32(p[8:12]))
	return 0x10 + count*0x40 + strSize
}

// BuildRomFS returns a RomFS image holding files. Names may contain "/" to
// place files in sub directories.
func BuildRomFS(files []File) []byte {
	const empty = 0xFFFFFFFF

	type dirNode struct {
		name     string
		parent   int
		children []int
		files    []int
		offset   uint32
	}

	dirs := []*dirNode{{name: "", parent: 0}}
	dirIndex := map[string]int{"": 0}
	fileParent := make([]int, len(files))
	fileNames := make([]string, len(files))

	for i, f := range files {
		parts := strings.Split(strings.TrimPrefix(f.Name, "/"), "/")
		cur := 0
		key := ""
		for _, part := range parts[:len(parts)-1] {
			key += "/" + part
			idx, ok := dirIndex[key]
			if !ok {
				idx = len(dirs)
				dirs = append(dirs, &dirNode{name: part, parent: cur})
				dirIndex[key] = idx
				dirs[cur].children = append(dirs[cur].children, idx)
			}
			cur = idx
		}
		fileParent[i] = cur
		fileNames[i] = parts[len(parts)-1]
		dirs[cur].files = append(dirs[cur].files, i)
	}

	// dir offsets in preorder
	var order []int
	var walk func(int)
	walk = func(d int) {
		order = append(order, d)
		children := append([]int(nil), dirs[d].children...)
		sort.Ints(children)
		for _, c := range children {
			walk(c)
		}
	}
	walk(0)

	var off uint32
	for _, d := range order {
		dirs[d].offset = off
		off += 0x18 + align4(len(dirs[d].name))
	}
	dirMeta := make([]byte, off)

	fileOffsets := make([]uint32, len(files))
	off = 0
	var fileOrder []int
	for _, d := range order {
		for _, fi := range dirs[d].files {
			fileOffsets[fi] = off
			off += 0x20 + align4(len(fileNames[fi]))
			fileOrder = append(fileOrder, fi)
		}
	}
	fileMeta := make([]byte, off)

	for _, d := range order {
		n := dirs[d]
		e := dirMeta[n.offset:]
		binary.LittleEndian.PutUint32(e[0:], dirs[n.parent].offset)
		binary.LittleEndian.PutUint32(e[4:], empty)
		binary.LittleEndian.PutUint32(e[8:], empty)
		binary.LittleEndian.PutUint32(e[12:], empty)
		binary.LittleEndian.PutUint32(e[16:], empty)
		binary.LittleEndian.PutUint32(e[20:], uint32(len(n.name)))
		copy(e[24:], n.name)

		if len(n.children) > 0 {
			binary.LittleEndian.PutUint32(e[8:], dirs[n.children[0]].offset)
			for i := 0; i+1 < len(n.children); i++ {
				c := dirMeta[dirs[n.children[i]].offset:]
				binary.LittleEndian.PutUint32(c[4:], dirs[n.children[i+1]].offset)
			}
		}
		if len(n.files) > 0 {
			binary.LittleEndian.PutUint32(e[12:], fileOffsets[n.files[0]])
		}
	}

	var data []byte
	for _, fi := range fileOrder {
		d := dirs[fileParent[fi]]
		e := fileMeta[fileOffsets[fi]:]
		binary.LittleEndian.PutUint32(e[0:], d.offset)
		binary.LittleEndian.PutUint32(e[4:], empty)
		for i, sib := range d.files {
			if sib == fi && i+1 < len(d.files) {
				binary.LittleEndian.PutUint32(e[4:], fileOffsets[d.files[i+1]])
			}
		}
		binary.LittleEndian.PutUint64(e[8:], uint64(len(data)))
		binary.LittleEndian.PutUint64(e[16:], uint64(len(files[fi].Data)))
		binary.LittleEndian.PutUint32(e[24:], empty)
		binary.LittleEndian.PutUint32(e[28:], uint32(len(fileNames[fi])))
		copy(e[32:], fileNames[fi])

		data = append(data, files[fi].Data...)
		for len(data)%0x10 != 0 {
			data = append(data, 0)
		}
	}

	hashBucket := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	header := make([]byte, 0x50)
	pos := uint64(0x50)
	put := func(i int, v uint64) { binary.LittleEndian.PutUint64(header[i*8:], v) }
	put(0, 0x50)
	put(1, pos)
	put(2, 4)
	pos += 4
	put(3, pos)
	put(4, uint64(len(dirMeta)))
	pos += uint64(len(dirMeta))
	put(5, pos)
	put(6, 4)
	pos += 4
	put(7, pos)
	put(8, uint64(len(fileMeta)))
	pos += uint64(len(fileMeta))
	dataOffset := (pos + 0xF) &^ 0xF
	put(9, dataOffset)

	out := append(header, hashBucket...)
	out = append(out, dirMeta...)
	out = append(out, hashBucket...)
	out = append(out, fileMeta...)
	for uint64(len(out)) < dataOffset {
		out = append(out, 0)
	}
	return append(out, data...)
}

func align4(n int) uint32 {
	return uint32((n + 3) &^ 3)
}

// SetRomFSFileSize overwrites the size field of the named top-level file in a
// RomFS image built by BuildRomFS.
func SetRomFSFileSize(img []byte, name string, size uint64) []byte {
	out := append([]byte(nil), img...)
	metaOff := binary.LittleEndian.Uint64(out[0x38:])
	metaSize := binary.LittleEndian.Uint64(out[0x40:])
	table := out[metaOff : metaOff+metaSize]

	for off := 0; off+0x20 <= len(table); {
		n := int(binary.LittleEndian.Uint32(table[off+0x1C:]))
		if string(table[off+0x20:off+0x20+n]) == name {
			binary.LittleEndian.PutUint64(table[off+0x10:], size)
			return out
		}
		off += 0x20 + int(align4(n))
	}
	panic("testutil: romfs file " + name + " not found")
}
