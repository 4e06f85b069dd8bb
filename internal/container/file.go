package container

import (
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// Compile-time interface checks
var (
	_ fs.File        = (*File)(nil)
	_ io.ReaderAt    = (*File)(nil)
	_ io.Seeker      = (*File)(nil)
	_ fs.ReadDirFile = (*dirFile)(nil)
)

// File is a read-only fs.File backed by a section of an archive.
type File struct {
	*io.SectionReader
	name   string
	closed bool
}

// NewFile wraps a section reader as an fs.File named name.
func NewFile(name string, sr *io.SectionReader) *File {
	return &File{SectionReader: sr, name: name}
}

func (f *File) Stat() (fs.FileInfo, error) {
	return fileInfo{name: path.Base(f.name), size: f.Size()}, nil
}

func (f *File) Read(p []byte) (int, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	return f.SectionReader.Read(p)
}

func (f *File) Close() error {
	f.closed = true
	return nil
}

type fileInfo struct {
	name string
	size int64
	dir  bool
}

func (fi fileInfo) Name() string { return fi.name }
func (fi fileInfo) Size() int64  { return fi.size }
func (fi fileInfo) Mode() fs.FileMode {
	if fi.dir {
		return fs.ModeDir | 0o555
	}
	return 0o444
}
func (fi fileInfo) ModTime() time.Time         { return time.Time{} }
func (fi fileInfo) IsDir() bool                { return fi.dir }
func (fi fileInfo) Sys() any                   { return nil }
func (fi fileInfo) Type() fs.FileMode          { return fi.Mode().Type() }
func (fi fileInfo) Info() (fs.FileInfo, error) { return fi, nil }

// dirFile lists the immediate children of a directory built from a flat list
// of file paths.
type dirFile struct {
	name    string
	entries []fs.DirEntry
	offset  int
}

// OpenDir builds a directory handle for dir (fs.FS form, "." for the root)
// out of a flat file listing. sizes maps each file path to its length.
func OpenDir(dir string, files []string, sizes func(string) int64) (fs.File, error) {
	prefix := ""
	if dir != "." {
		prefix = dir + "/"
	}

	seen := map[string]bool{}
	var entries []fs.DirEntry
	for _, f := range files {
		if !strings.HasPrefix(f, prefix) {
			continue
		}
		rest := strings.TrimPrefix(f, prefix)
		child, _, isDir := strings.Cut(rest, "/")
		if seen[child] {
			continue
		}
		seen[child] = true
		if isDir {
			entries = append(entries, fileInfo{name: child, dir: true})
		} else {
			entries = append(entries, fileInfo{name: child, size: sizes(f)})
		}
	}

	if dir != "." && len(entries) == 0 {
		return nil, &fs.PathError{Op: "open", Path: dir, Err: fs.ErrNotExist}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return &dirFile{name: dir, entries: entries}, nil
}

func (d *dirFile) Stat() (fs.FileInfo, error) {
	return fileInfo{name: path.Base(d.name), dir: true}, nil
}

func (d *dirFile) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *dirFile) Close() error { return nil }

func (d *dirFile) ReadDir(n int) ([]fs.DirEntry, error) {
	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if n > len(rest) {
		n = len(rest)
	}
	d.offset += n
	return rest[:n], nil
}
