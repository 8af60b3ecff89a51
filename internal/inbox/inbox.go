// Package inbox lists, fetches and removes the videos waiting to be processed.
package inbox

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/httpclient"
	"github.com/jmylchreest/vidbrief/internal/storage"
)

// Supported inbox backends.
const (
	BackendLocal   = "local"
	BackendGCS     = "gcs"
	BackendDropbox = "dropbox"
)

// Item is a file waiting in the inbox.
type Item struct {
	// ID is the backend handle used to fetch and delete the item.
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// BaseName returns the final path element of the item name.
func (i Item) BaseName() string {
	return path.Base(i.Name)
}

// Source is an inbox backend.
type Source interface {
	// List returns every file in the inbox. Callers filter with IsMedia.
	List(ctx context.Context) ([]Item, error)
	// Fetch downloads item to destPath.
	Fetch(ctx context.Context, item Item, destPath string) error
	// Delete removes item from the inbox.
	Delete(ctx context.Context, item Item) error
	// Describe names the backend and location for logs.
	Describe() string
}

// IsMedia reports whether name ends in one of exts, ignoring case. An empty
// exts uses config.DefaultMediaExtensions.
func IsMedia(name string, exts []string) bool {
	if len(exts) == 0 {
		exts = config.DefaultMediaExtensions
	}
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return false
	}
	return slices.ContainsFunc(exts, func(e string) bool {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		return e == ext
	})
}

// FilterMedia keeps the items whose names pass IsMedia.
func FilterMedia(items []Item, exts []string) []Item {
	var media []Item
	for _, item := range items {
		if IsMedia(item.Name, exts) {
			media = append(media, item)
		}
	}
	return media
}

// NewSource builds the inbox described by cfg. Relative local paths are
// resolved against baseDir.
func NewSource(ctx context.Context, cfg config.InboxConfig, baseDir string, client *httpclient.Client) (Source, error) {
	switch cfg.Backend {
	case BackendLocal, "":
		dir := cfg.Path
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(baseDir, dir)
		}
		store, err := storage.NewLocalStore(dir)
		if err != nil {
			return nil, fmt.Errorf("opening local inbox: %w", err)
		}
		return NewStoreSource(store, ""), nil
	case BackendGCS:
		store, err := storage.NewGCSStore(ctx, cfg.Bucket, "")
		if err != nil {
			return nil, fmt.Errorf("opening gcs inbox: %w", err)
		}
		return NewStoreSource(store, cfg.Path), nil
	case BackendDropbox:
		return NewDropboxSource(ctx, cfg.Path, cfg.Dropbox, client)
	default:
		return nil, fmt.Errorf("unsupported inbox backend %q", cfg.Backend)
	}
}
