package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jmylchreest/vidbrief/internal/config"
)

// Supported object store backends.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
	BackendS3    = "s3"
)

// ErrObjectNotFound is returned when a key does not exist in the store.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mod_time"`
	ContentType string    `json:"content_type,omitempty"`
}

// ObjectStore is a flat key/value blob store. Keys use forward slashes.
type ObjectStore interface {
	// Put writes r to key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	// Get opens the object at key. A missing key returns ErrObjectNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the objects whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// URI returns a backend-qualified reference such as gs://bucket/key.
	URI(key string) string
	Backend() string
	Close() error
}

// NewObjectStore builds the store described by cfg. localRoot is used by the
// local backend when cfg.Local.Dir is empty.
func NewObjectStore(ctx context.Context, cfg config.UploadConfig, localRoot string) (ObjectStore, error) {
	switch cfg.Backend {
	case BackendLocal, "":
		dir := cfg.Local.Dir
		if dir == "" {
			dir = localRoot
		}
		return NewLocalStore(dir)
	case BackendGCS:
		return NewGCSStore(ctx, cfg.Bucket, cfg.GCS.CredentialsFile)
	case BackendS3:
		return NewS3Store(ctx, cfg.Bucket, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported object store backend %q", cfg.Backend)
	}
}

// JoinKey joins key segments with forward slashes, ignoring empty segments.
func JoinKey(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) == 0 {
		return ""
	}
	return path.Join(nonEmpty...)
}

// DetectContentType sniffs the MIME type of a local file.
func DetectContentType(filePath string) (string, error) {
	mt, err := mimetype.DetectFile(filePath)
	if err != nil {
		return "", fmt.Errorf("detecting content type of %s: %w", filePath, err)
	}
	return mt.String(), nil
}

// PutFile uploads a local file to key, sniffing its content type.
func PutFile(ctx context.Context, store ObjectStore, key, filePath string) error {
	contentType, err := DetectContentType(filePath)
	if err != nil {
		return err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", filePath, err)
	}
	defer f.Close()

	if err := store.Put(ctx, key, f, contentType); err != nil {
		return fmt.Errorf("uploading %s to %s: %w", filePath, store.URI(key), err)
	}
	return nil
}

// FetchFile downloads key into a local file at destPath.
func FetchFile(ctx context.Context, store ObjectStore, key, destPath string) (int64, error) {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", destPath, err)
	}
	n, err := io.Copy(f, rc)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("downloading %s: %w", store.URI(key), err)
	}
	return n, nil
}

// Copy duplicates the object at src to dst within the same store.
func Copy(ctx context.Context, store ObjectStore, src, dst string) error {
	rc, err := store.Get(ctx, src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	defer rc.Close()

	if err := store.Put(ctx, dst, rc, ""); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}
