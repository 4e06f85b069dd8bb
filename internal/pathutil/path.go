// Package pathutil provides path helpers shared by the catalog, export and
// logging setup.
package pathutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const writeProbe = ".nxmeta-write-test"

// CheckDirectoryWritable checks that path is a writable directory on fsys,
// creating it when missing.
func CheckDirectoryWritable(fsys afero.Fs, path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	info, err := fsys.Stat(absPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := fsys.MkdirAll(absPath, 0o755); err != nil {
			return fmt.Errorf("directory %s does not exist and cannot be created: %w", absPath, err)
		}
	case err != nil:
		return fmt.Errorf("cannot access directory %s: %w", absPath, err)
	case !info.IsDir():
		return fmt.Errorf("path %s exists but is not a directory", absPath)
	}

	probe := filepath.Join(absPath, writeProbe)
	if err := afero.WriteFile(fsys, probe, []byte("test"), 0o644); err != nil {
		return fmt.Errorf("directory %s is not writable: %w", absPath, err)
	}
	_ = fsys.Remove(probe)

	return nil
}

// CheckFileDirectoryWritable checks the directory that will hold filePath.
// An empty filePath is accepted.
func CheckFileDirectoryWritable(fsys afero.Fs, filePath, fileType string) error {
	if filePath == "" {
		return nil
	}

	dir := filepath.Dir(filePath)
	if dir == "" || dir == "." {
		dir = "./"
	}

	if err := CheckDirectoryWritable(fsys, dir); err != nil {
		return fmt.Errorf("%s file directory check failed: %w", fileType, err)
	}
	return nil
}

// RemoveEmptyDirs removes path and then its parents while they are empty,
// stopping before root.
func RemoveEmptyDirs(fsys afero.Fs, root, path string) {
	if root == "" || path == "" {
		return
	}

	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if path == root || !strings.HasPrefix(path, root+string(os.PathSeparator)) {
		return
	}

	entries, err := afero.ReadDir(fsys, path)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := fsys.Remove(path); err != nil {
		return
	}

	RemoveEmptyDirs(fsys, root, filepath.Dir(path))
}

// JoinAbsPath joins otherPath onto basePath unless otherPath is already an
// absolute path inside basePath.
func JoinAbsPath(basePath, otherPath string) string {
	if basePath == "" {
		return otherPath
	}

	cleanBase := strings.TrimSuffix(filepath.ToSlash(basePath), "/")
	cleanOther := filepath.ToSlash(otherPath)

	if filepath.IsAbs(cleanOther) && (cleanOther == cleanBase || strings.HasPrefix(cleanOther, cleanBase+"/")) {
		return filepath.FromSlash(cleanOther)
	}

	relOther := strings.TrimPrefix(cleanOther, "/")
	return filepath.Join(basePath, filepath.FromSlash(relOther))
}

// RelativeTo returns path relative to root in slash form, or path unchanged
// when it is not below root.
func RelativeTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
