package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sokinpui/sitepatch/internal/patcher"
	"github.com/sokinpui/sitepatch/model"
)

// StateDirName holds history and logs inside a project directory.
const StateDirName = ".sitepatch"

const (
	ActionCreate = "create"
	ActionModify = "modify"
)

// ErrPathOutsideProject is returned for paths that would resolve outside the
// project root or into the state directory.
var ErrPathOutsideProject = errors.New("path outside project")

var skipDirs = map[string]bool{
	StateDirName:   true,
	".git":         true,
	"node_modules": true,
}

// Load reads the project file set under dir. Paths are slash separated and
// relative to dir. Non-UTF-8 files are left out. The index page comes first,
// the rest sorted by path.
func Load(dir string) ([]model.File, error) {
	var files []model.File
	err := filepath.WalkDir(dir, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if !utf8.Valid(data) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, model.File{Path: filepath.ToSlash(rel), Content: string(data)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", dir, err)
	}

	sort.SliceStable(files, func(i, j int) bool {
		ii, ji := patcher.IsIndexPage(files[i].Path), patcher.IsIndexPage(files[j].Path)
		if ii != ji {
			return ii
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// Resolve joins a slash-separated project path onto root.
func Resolve(root, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(rel, "/")))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", rel, ErrPathOutsideProject)
	}
	first, _, _ := strings.Cut(filepath.ToSlash(clean), "/")
	if first == StateDirName {
		return "", fmt.Errorf("%q: %w", rel, ErrPathOutsideProject)
	}
	return filepath.Join(root, clean), nil
}

// FileActions classifies each project path as a create or modify and lists
// the directories that must exist before writing.
func FileActions(root string, paths []string) (map[string]string, map[string]struct{}) {
	actions := make(map[string]string, len(paths))
	dirs := make(map[string]struct{})

	for _, p := range paths {
		abs, err := Resolve(root, p)
		if err != nil {
			continue
		}
		if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
			actions[p] = ActionCreate
			dir := filepath.Dir(abs)
			if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
				dirs[dir] = struct{}{}
			}
		} else {
			actions[p] = ActionModify
		}
	}
	return actions, dirs
}

// CreateDirs creates every directory in dirs, shortest path first.
func CreateDirs(dirs map[string]struct{}) error {
	sorted := make([]string, 0, len(dirs))
	for d := range dirs {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)
	for _, d := range sorted {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	return nil
}

// Writer persists file sets under a project root.
type Writer struct {
	Root string
}

// NewWriter returns a Writer rooted at root.
func NewWriter(root string) *Writer {
	return &Writer{Root: root}
}

// Apply writes files to disk. Files that could not be written are listed in
// failed and their errors joined into err.
func (w *Writer) Apply(files []model.File) (written, failed []string, err error) {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	_, dirs := FileActions(w.Root, paths)
	if err := CreateDirs(dirs); err != nil {
		return nil, paths, err
	}

	var errs []error
	for _, f := range files {
		if werr := w.Write(f.Path, f.Content); werr != nil {
			failed = append(failed, f.Path)
			errs = append(errs, werr)
			continue
		}
		written = append(written, f.Path)
	}
	return written, failed, errors.Join(errs...)
}

// Write stores content at the project path rel.
func (w *Writer) Write(rel, content string) error {
	abs, err := Resolve(w.Root, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// Remove deletes the project path rel and any parent directories it leaves
// empty, up to the root. A missing file is not an error.
func (w *Writer) Remove(rel string) error {
	abs, err := Resolve(w.Root, rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", rel, err)
	}

	root := filepath.Clean(w.Root)
	for dir := filepath.Dir(abs); dir != root && strings.HasPrefix(dir, root); dir = filepath.Dir(dir) {
		if empty, _ := IsEmpty(dir); !empty {
			break
		}
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

// Hash returns the hex SHA-256 of the project path rel, or ErrNotExist.
func (w *Writer) Hash(rel string) (string, error) {
	abs, err := Resolve(w.Root, rel)
	if err != nil {
		return "", err
	}
	return FileSHA256(abs)
}

// SHA256 returns the hex SHA-256 of content.
func SHA256(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// FileSHA256 returns the hex SHA-256 of the file at path.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsEmpty reports whether dir has no entries.
func IsEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if _, err := f.Readdirnames(1); errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
