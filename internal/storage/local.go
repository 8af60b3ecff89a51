package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore is an ObjectStore backed by a directory on the local filesystem.
type LocalStore struct {
	sandbox *Sandbox
}

// NewLocalStore creates a LocalStore rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("local object store requires a directory")
	}
	sb, err := NewSandbox(dir)
	if err != nil {
		return nil, err
	}
	return &LocalStore{sandbox: sb}, nil
}

// Root returns the absolute directory backing the store.
func (s *LocalStore) Root() string {
	return s.sandbox.BaseDir()
}

// Put writes r to key atomically.
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKey(key); err != nil {
		return err
	}
	return s.sandbox.AtomicWriteReader(filepath.FromSlash(key), r)
}

// Get opens key for reading.
func (s *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.sandbox.Open(filepath.FromSlash(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// List walks the store and returns objects whose key starts with prefix, sorted by key.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Walk from the deepest directory fully named by the prefix.
	root := "."
	if i := strings.LastIndex(prefix, "/"); i > 0 {
		root = filepath.FromSlash(prefix[:i])
	}

	var objects []ObjectInfo
	err := s.sandbox.WalkFiles(root, func(rel string, info fs.FileInfo) error {
		if strings.HasPrefix(rel, prefix) {
			objects = append(objects, ObjectInfo{Key: rel, Size: info.Size(), ModTime: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Delete removes key; a missing key is ignored.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKey(key); err != nil {
		return err
	}
	err := s.sandbox.Remove(filepath.FromSlash(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether key is present.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.sandbox.Exists(filepath.FromSlash(key))
}

// URI returns a file:// URI for key.
func (s *LocalStore) URI(key string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(s.sandbox.BaseDir(), filepath.FromSlash(key)))}
	return u.String()
}

// Backend returns "local".
func (s *LocalStore) Backend() string { return BackendLocal }

// Close is a no-op.
func (s *LocalStore) Close() error { return nil }

func validKey(key string) error {
	if key == "" || strings.HasSuffix(key, "/") {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}
