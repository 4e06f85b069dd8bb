// Package metadata writes catalogued titles as YAML sidecar files next to an
// exported copy of their icon.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/emunx/nxmeta/internal/database"
	"github.com/emunx/nxmeta/internal/pathutil"
)

const (
	sidecarExt = ".yaml"
	iconExt    = ".jpg"
)

// Sidecar is the YAML document written for each title.
type Sidecar struct {
	TitleID        string    `yaml:"title_id"`
	Name           string    `yaml:"name"`
	Publisher      string    `yaml:"publisher,omitempty"`
	Version        string    `yaml:"version,omitempty"`
	Format         string    `yaml:"format"`
	RomPath        string    `yaml:"rom_path"`
	PromptsForUser bool      `yaml:"prompts_for_user"`
	Icon           string    `yaml:"icon,omitempty"`
	ScannedAt      time.Time `yaml:"scanned_at"`
}

// MetadataService provides read/write operations for sidecar files
type MetadataService struct {
	fs       afero.Fs
	rootPath string
}

// NewMetadataService creates a new metadata service
func NewMetadataService(fsys afero.Fs, rootPath string) *MetadataService {
	return &MetadataService{
		fs:       fsys,
		rootPath: filepath.Clean(rootPath),
	}
}

// truncateFilename keeps the sidecar name under common filesystem limits.
func (ms *MetadataService) truncateFilename(filename string) string {
	const maxLen = 250

	if len(filename) <= maxLen {
		return filename
	}
	return filename[:maxLen]
}

// SidecarPath returns where the sidecar of a ROM is written.
func (ms *MetadataService) SidecarPath(romPath string) string {
	return ms.basePath(romPath) + sidecarExt
}

// IconPath returns where the icon of a ROM is written.
func (ms *MetadataService) IconPath(romPath string) string {
	return ms.basePath(romPath) + iconExt
}

func (ms *MetadataService) basePath(romPath string) string {
	romPath = filepath.FromSlash(romPath)
	name := strings.TrimSuffix(filepath.Base(romPath), filepath.Ext(romPath))
	return filepath.Join(ms.rootPath, filepath.Dir(romPath), ms.truncateFilename(name))
}

// WriteTitle writes the sidecar and icon of t. A stale icon is removed when
// the title no longer has one.
func (ms *MetadataService) WriteTitle(t *database.Title) error {
	sidecarPath := ms.SidecarPath(t.RomPath)
	if err := ms.fs.MkdirAll(filepath.Dir(sidecarPath), 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	sc := Sidecar{
		TitleID:        t.TitleID,
		Name:           t.Name,
		Publisher:      t.Publisher,
		Version:        t.Version,
		Format:         t.Format,
		RomPath:        t.RomPath,
		PromptsForUser: t.PromptsForUser,
		ScannedAt:      t.ScannedAt.UTC(),
	}

	iconPath := ms.IconPath(t.RomPath)
	if len(t.Icon) > 0 {
		if err := afero.WriteFile(ms.fs, iconPath, t.Icon, 0644); err != nil {
			return fmt.Errorf("failed to write icon file: %w", err)
		}
		sc.Icon = filepath.Base(iconPath)
	} else if err := ms.fs.Remove(iconPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to remove stale icon", "path", iconPath, "error", err)
	}

	data, err := yaml.Marshal(&sc)
	if err != nil {
		return fmt.Errorf("failed to marshal sidecar: %w", err)
	}
	if err := afero.WriteFile(ms.fs, sidecarPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write sidecar file: %w", err)
	}
	return nil
}

// ReadTitle reads the sidecar of a ROM. It returns nil when none exists.
func (ms *MetadataService) ReadTitle(romPath string) (*Sidecar, error) {
	data, err := afero.ReadFile(ms.fs, ms.SidecarPath(romPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sidecar file: %w", err)
	}

	var sc Sidecar
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sidecar: %w", err)
	}
	return &sc, nil
}

// DeleteTitle removes the sidecar and icon of a ROM and prunes directories
// left empty.
func (ms *MetadataService) DeleteTitle(romPath string) error {
	for _, p := range []string{ms.SidecarPath(romPath), ms.IconPath(romPath)} {
		if err := ms.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}
	pathutil.RemoveEmptyDirs(ms.fs, ms.rootPath, filepath.Dir(ms.SidecarPath(romPath)))
	return nil
}

// ExportResult counts what Export did.
type ExportResult struct {
	Written int
	Removed int
}

// Export writes every title and removes sidecars of ROMs that are no longer
// catalogued.
func (ms *MetadataService) Export(ctx context.Context, titles []*database.Title) (*ExportResult, error) {
	if err := ms.fs.MkdirAll(ms.rootPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export root: %w", err)
	}
	if err := pathutil.CheckDirectoryWritable(ms.fs, ms.rootPath); err != nil {
		return nil, err
	}

	res := &ExportResult{}
	keep := make(map[string]struct{}, len(titles))
	for _, t := range titles {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := ms.WriteTitle(t); err != nil {
			return res, fmt.Errorf("export %s: %w", t.RomPath, err)
		}
		keep[ms.SidecarPath(t.RomPath)] = struct{}{}
		res.Written++
	}

	var stale []string
	err := afero.Walk(ms.fs, ms.rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != sidecarExt {
			return nil
		}
		if _, ok := keep[path]; !ok {
			stale = append(stale, path)
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("failed to walk export root: %w", err)
	}

	for _, path := range stale {
		base := strings.TrimSuffix(path, sidecarExt)
		for _, p := range []string{path, base + iconExt} {
			if err := ms.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.WarnContext(ctx, "Failed to remove stale export", "path", p, "error", err)
			}
		}
		pathutil.RemoveEmptyDirs(ms.fs, ms.rootPath, filepath.Dir(path))
		res.Removed++
	}

	slog.InfoContext(ctx, "Export finished", "root", ms.rootPath, "written", res.Written, "removed", res.Removed)
	return res, nil
}
