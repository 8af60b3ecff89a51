// Package storage provides sandboxed local file operations and the object
// stores that uploads, inbox listings and shipped logs are written to.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// ErrPathEscapesSandbox is returned when a path would resolve outside the sandbox.
var ErrPathEscapesSandbox = errors.New("path escapes sandbox")

// Sandbox confines file operations to a single directory tree.
type Sandbox struct {
	root string
}

// NewSandbox roots a Sandbox at dir, creating it when missing.
func NewSandbox(dir string) (*Sandbox, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating %s: %w", root, err)
	}
	return &Sandbox{root: root}, nil
}

// BaseDir is the absolute sandbox root.
func (s *Sandbox) BaseDir() string {
	return s.root
}

// ResolvePath maps rel to an absolute path under the root.
func (s *Sandbox) ResolvePath(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s is absolute", ErrPathEscapesSandbox, rel)
	}
	abs := filepath.Join(s.root, filepath.Clean(rel))
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesSandbox, rel)
	}
	return abs, nil
}

// Exists reports whether rel is present.
func (s *Sandbox) Exists(rel string) (bool, error) {
	abs, err := s.ResolvePath(rel)
	if err != nil {
		return false, err
	}
	switch _, err := os.Stat(abs); {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", rel, err)
	}
}

// Open opens rel for reading.
func (s *Sandbox) Open(rel string) (*os.File, error) {
	abs, err := s.ResolvePath(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", rel, err)
	}
	return f, nil
}

// Remove deletes the file at rel, then removes any parent directories the
// deletion left empty, stopping at the root.
func (s *Sandbox) Remove(rel string) error {
	abs, err := s.ResolvePath(rel)
	if err != nil {
		return err
	}
	if abs == s.root {
		return fmt.Errorf("%w: refusing to remove root", ErrPathEscapesSandbox)
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("removing %s: %w", rel, err)
	}
	for dir := filepath.Dir(abs); dir != s.root && strings.HasPrefix(dir, s.root); dir = filepath.Dir(dir) {
		// Fails on the first non-empty directory.
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// AtomicWriteReader streams r into rel. Concurrent readers see either the
// previous file or the complete new one.
func (s *Sandbox) AtomicWriteReader(rel string, r io.Reader) error {
	abs, err := s.ResolvePath(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return fmt.Errorf("creating parent of %s: %w", rel, err)
	}

	pending, err := renameio.NewPendingFile(abs, renameio.WithPermissions(0o640))
	if err != nil {
		return fmt.Errorf("staging %s: %w", rel, err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := io.Copy(pending, r); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing %s: %w", rel, err)
	}
	return nil
}

// WalkFiles calls fn for every regular file under rel with its slash-separated
// path relative to the root. Dotfiles, which include in-flight atomic writes,
// are skipped. A missing rel yields no calls.
func (s *Sandbox) WalkFiles(rel string, fn func(rel string, info fs.FileInfo) error) error {
	start, err := s.ResolvePath(rel)
	if err != nil {
		return err
	}

	err = filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == start && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(relPath), info)
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", rel, err)
	}
	return nil
}
