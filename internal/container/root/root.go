// Package root opens the outermost container of a ROM file (NSP or XCI) and
// exposes its content archives as a flat listing.
package root

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/emunx/nxmeta/internal/container"
	"github.com/emunx/nxmeta/internal/container/pfs"
	"github.com/emunx/nxmeta/internal/container/xci"
)

// Format identifies the root container of a ROM file.
type Format int

const (
	FormatUnknown Format = iota
	// FormatNSP is a PFS0 package whose root holds the content archives.
	FormatNSP
	// FormatXCI is a gamecard image whose secure partition holds the content archives.
	FormatXCI
)

func (f Format) String() string {
	switch f {
	case FormatNSP:
		return "nsp"
	case FormatXCI:
		return "xci"
	default:
		return "unknown"
	}
}

// FormatFromPath selects the container format from the file extension.
// Matching is exact and case-sensitive.
func FormatFromPath(path string) Format {
	switch filepath.Ext(path) {
	case ".nsp":
		return FormatNSP
	case ".xci":
		return FormatXCI
	default:
		return FormatUnknown
	}
}

var _ container.Archive = (*Root)(nil)

// Root is an opened ROM file.
type Root struct {
	format  Format
	path    string
	file    afero.File
	archive container.Archive
	closed  bool
}

// Open opens path on fsys and parses its root container.
func Open(fsys afero.Fs, path string) (*Root, error) {
	format := FormatFromPath(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: %s", container.ErrUnsupportedFormat, path)
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, &fs.PathError{Op: "open", Path: path, Err: errors.New("is a directory")}
	}
	r := io.NewSectionReader(f, 0, info.Size())

	var archive container.Archive
	switch format {
	case FormatNSP:
		archive, err = pfs.Open(r)
	case FormatXCI:
		archive, err = xci.Open(r)
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Root{format: format, path: path, file: f, archive: archive}, nil
}

// Format reports the container format.
func (r *Root) Format() Format {
	return r.format
}

// Path returns the path the ROM was opened from.
func (r *Root) Path() string {
	return r.path
}

// Entries returns the content archives in container order.
func (r *Root) Entries() []container.Entry {
	return r.archive.Entries()
}

// OpenEntry returns a stream over one content archive.
func (r *Root) OpenEntry(name string) (*io.SectionReader, error) {
	if r.closed {
		return nil, fs.ErrClosed
	}
	return r.archive.OpenEntry(name)
}

// Close releases the underlying file. It is safe to call more than once.
func (r *Root) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}
