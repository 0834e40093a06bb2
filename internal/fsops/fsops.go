// Package fsops wraps the filesystem calls the engine performs with error
// classification and the two-step rename needed for case-only changes on
// case-insensitive filesystems. The afero seam keeps the executor and
// scanner testable against an in-memory filesystem.
package fsops

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nametidy/nametidy/internal/core"
	"github.com/spf13/afero"
)

// FS bundles the afero filesystem with knowledge of its case sensitivity.
type FS struct {
	fs              afero.Fs
	caseInsensitive bool
}

// New wraps fs. Case sensitivity is probed lazily per directory when a
// rename needs it; caseInsensitive forces the answer for tests.
func New(fs afero.Fs) *FS {
	return &FS{fs: fs}
}

// NewCaseInsensitive wraps fs and treats every rename as running on a
// case-insensitive filesystem.
func NewCaseInsensitive(fs afero.Fs) *FS {
	return &FS{fs: fs, caseInsensitive: true}
}

// OS returns an FS over the real filesystem.
func OS() *FS {
	return &FS{fs: afero.NewOsFs()}
}

// Raw exposes the underlying afero filesystem.
func (f *FS) Raw() afero.Fs { return f.fs }

// Stat stats path, classifying failures.
func (f *FS) Stat(path string) (os.FileInfo, error) {
	info, err := f.fs.Stat(path)
	if err != nil {
		return nil, core.NewFSError(path, err)
	}
	return info, nil
}

// Exists reports whether path exists. Errors other than not-found are
// treated as existence, so callers never overwrite a path they cannot
// inspect.
func (f *FS) Exists(path string) bool {
	_, err := f.fs.Stat(path)
	if err == nil {
		return true
	}
	return !os.IsNotExist(err)
}

// List returns the entries of dir sorted lexicographically by name.
func (f *FS) List(dir string) ([]os.FileInfo, error) {
	entries, err := afero.ReadDir(f.fs, dir)
	if err != nil {
		return nil, core.NewFSError(dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// Rename renames oldPath to newPath, classifying failures. It refuses to
// overwrite an existing file unless the rename is a case-only change of the
// same entry.
func (f *FS) Rename(oldPath, newPath string) error {
	if oldPath == newPath {
		return nil
	}
	if f.isCaseOnlyChange(oldPath, newPath) {
		return f.twoStepRename(oldPath, newPath)
	}
	if f.Exists(newPath) {
		return &core.FileSystemError{
			Kind: core.FSInvalidPath,
			Path: newPath,
			Err:  fmt.Errorf("destination already exists"),
		}
	}
	if err := f.fs.Rename(oldPath, newPath); err != nil {
		return core.NewFSError(oldPath, err)
	}
	return nil
}

// RenameOverwrite renames without the destination-exists guard. Case-only
// changes still take the two-step route. The destination is removed first
// because not every backend renames over an existing entry.
func (f *FS) RenameOverwrite(oldPath, newPath string) error {
	if oldPath == newPath {
		return nil
	}
	if f.isCaseOnlyChange(oldPath, newPath) {
		return f.twoStepRename(oldPath, newPath)
	}
	if f.Exists(newPath) {
		if err := f.fs.Remove(newPath); err != nil {
			return core.NewFSError(newPath, err)
		}
	}
	if err := f.fs.Rename(oldPath, newPath); err != nil {
		return core.NewFSError(oldPath, err)
	}
	return nil
}

// isCaseOnlyChange reports whether the rename stays in the same directory
// and only changes letter case, on a filesystem where that matters.
func (f *FS) isCaseOnlyChange(oldPath, newPath string) bool {
	if filepath.Dir(oldPath) != filepath.Dir(newPath) {
		return false
	}
	oldName := filepath.Base(oldPath)
	newName := filepath.Base(newPath)
	if oldName == newName || !strings.EqualFold(oldName, newName) {
		return false
	}
	return f.caseInsensitive || f.probeCaseInsensitive(filepath.Dir(oldPath))
}

// probeCaseInsensitive checks whether dir resolves names case-insensitively
// by statting an existing entry under a flipped-case alias.
func (f *FS) probeCaseInsensitive(dir string) bool {
	entries, err := afero.ReadDir(f.fs, dir)
	if err != nil || len(entries) == 0 {
		return false
	}
	name := entries[0].Name()
	flipped := flipCase(name)
	if flipped == name {
		return false
	}
	_, err = f.fs.Stat(filepath.Join(dir, flipped))
	return err == nil
}

func flipCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r - 'A' + 'a')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// twoStepRename routes a case-only rename through a temporary name so the
// filesystem never sees a rename onto "itself".
func (f *FS) twoStepRename(oldPath, newPath string) error {
	dir := filepath.Dir(oldPath)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.casefix.tmp", filepath.Base(oldPath)))
	for i := 0; f.Exists(tmp); i++ {
		tmp = filepath.Join(dir, fmt.Sprintf(".%s.casefix.%d.tmp", filepath.Base(oldPath), i))
	}
	if err := f.fs.Rename(oldPath, tmp); err != nil {
		return core.NewFSError(oldPath, err)
	}
	if err := f.fs.Rename(tmp, newPath); err != nil {
		// Put the original name back so a failed second hop loses nothing.
		if restoreErr := f.fs.Rename(tmp, oldPath); restoreErr != nil {
			return core.NewFSError(oldPath, fmt.Errorf("case rename failed (%v) and restore failed: %w", err, restoreErr))
		}
		return core.NewFSError(newPath, err)
	}
	return nil
}
