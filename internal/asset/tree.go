package asset

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// Tree is a read/write view of a directory tree addressed with slash
// separated relative paths.
type Tree struct {
	fs billy.Filesystem
}

// NewTree wraps an existing billy filesystem.
func NewTree(fsys billy.Filesystem) *Tree {
	return &Tree{fs: fsys}
}

// OpenTree returns a Tree rooted at dir on the local disk.
func OpenTree(dir string) *Tree {
	return NewTree(osfs.New(dir))
}

// Root returns the absolute location of the tree on disk.
func (t *Tree) Root() string {
	return t.fs.Root()
}

// ReadFile returns the contents of p.
func (t *Tree) ReadFile(p string) ([]byte, error) {
	return util.ReadFile(t.fs, filepath.FromSlash(p))
}

// WriteFile writes data to p, creating parent directories.
func (t *Tree) WriteFile(p string, data []byte) error {
	name := filepath.FromSlash(p)
	if dir := filepath.Dir(name); dir != "." {
		if err := t.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return util.WriteFile(t.fs, name, data, 0o644)
}

// Exists reports whether p names a regular file.
func (t *Tree) Exists(p string) bool {
	fi, err := t.fs.Stat(filepath.FromSlash(p))
	return err == nil && fi.Mode().IsRegular()
}

// RemoveAll deletes p and everything below it. A missing p is not an error.
func (t *Tree) RemoveAll(p string) error {
	return util.RemoveAll(t.fs, filepath.FromSlash(p))
}

// Remove deletes a single file.
func (t *Tree) Remove(p string) error {
	err := t.fs.Remove(filepath.FromSlash(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// MkdirAll creates p and its parents.
func (t *Tree) MkdirAll(p string) error {
	return t.fs.MkdirAll(filepath.FromSlash(p), 0o755)
}

// Glob returns the sorted regular files matching a doublestar pattern.
// A missing base directory yields no matches.
func (t *Tree) Glob(pattern string) ([]string, error) {
	base, _ := doublestar.SplitPattern(pattern)
	var out []string
	err := t.walk(base, func(rel string) error {
		if ok, merr := doublestar.Match(pattern, rel); merr != nil {
			return merr
		} else if ok {
			out = append(out, rel)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// Enumerate returns the sorted source files selected by spec.
func (t *Tree) Enumerate(spec Spec) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, pattern := range spec.Include {
		matches, err := t.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup || !spec.Matches(m) {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// walk visits every regular file below dir, passing slash separated paths
// relative to the tree root.
func (t *Tree) walk(dir string, fn func(rel string) error) error {
	entries, err := t.fs.ReadDir(filepath.FromSlash(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		rel := e.Name()
		if dir != "." && dir != "" {
			rel = path.Join(dir, e.Name())
		}
		switch {
		case e.IsDir():
			if err := t.walk(rel, fn); err != nil {
				return err
			}
		case e.Mode().IsRegular():
			if err := fn(rel); err != nil {
				return err
			}
		}
	}
	return nil
}
