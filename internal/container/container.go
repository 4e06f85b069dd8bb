// Package container defines the read-only archive abstractions shared by the
// root container formats (NSP, XCI) and the filesystems found inside content
// archives (PFS0, RomFS).
package container

import (
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for ROM paths whose extension is not recognized.
	ErrUnsupportedFormat = errors.New("container: unsupported format")
	// ErrInvalidMagic is returned when a structure does not start with its expected signature.
	ErrInvalidMagic = errors.New("container: invalid magic")
	// ErrTruncated is returned when a structure extends past the available data.
	ErrTruncated = errors.New("container: truncated data")
	// ErrCorrupt is returned when a structure is internally inconsistent.
	ErrCorrupt = errors.New("container: corrupt structure")
)

// Entry is one file of a flat archive listing.
type Entry struct {
	Name   string
	Offset int64 // relative to the reader the archive was opened from
	Size   int64
}

// Archive is a flat, ordered, read-only listing of named entries.
type Archive interface {
	// Entries returns the entries in archive order.
	Entries() []Entry
	// OpenEntry returns a stream over one entry.
	OpenEntry(name string) (*io.SectionReader, error)
}

// FileSystem is the decoded inner filesystem of a content archive.
type FileSystem interface {
	fs.FS
	// Files returns every regular file path (slash separated, no leading
	// slash) in archive order.
	Files() []string
}

// FindFirst returns the first entry whose name matches the glob pattern,
// in archive order.
func FindFirst(a Archive, pattern string) (Entry, bool) {
	for _, e := range a.Entries() {
		if ok, _ := path.Match(pattern, e.Name); ok {
			return e, true
		}
	}
	return Entry{}, false
}

// FindFirstFile returns the first file of fsys whose base name matches the
// glob pattern, in archive order.
func FindFirstFile(fsys FileSystem, pattern string) (string, bool) {
	for _, name := range fsys.Files() {
		if ok, _ := path.Match(pattern, path.Base(name)); ok {
			return name, true
		}
	}
	return "", false
}

// CleanPath converts an archive path such as "/control.nacp" into the form
// accepted by fs.FS.
func CleanPath(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		return "."
	}
	return p
}

// ReadFile opens p (leading slash allowed) in fsys and reads it whole into an
// owned buffer.
func ReadFile(fsys fs.FS, p string) ([]byte, error) {
	return fs.ReadFile(fsys, CleanPath(p))
}

// sizer is implemented by readers that know their length.
type sizer interface {
	Size() int64
}

// SizeOf returns the size of r when it can be determined.
func SizeOf(r io.ReaderAt) (int64, bool) {
	if s, ok := r.(sizer); ok {
		return s.Size(), true
	}
	return 0, false
}

// ReadAtFull reads exactly len(p) bytes at off, translating short reads into
// ErrTruncated.
func ReadAtFull(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}
