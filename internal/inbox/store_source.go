package inbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmylchreest/vidbrief/internal/storage"
)

// StoreSource serves an inbox from an object store prefix.
type StoreSource struct {
	store  storage.ObjectStore
	prefix string
}

// NewStoreSource creates a source listing keys under prefix. A non-empty
// prefix is treated as a folder.
func NewStoreSource(store storage.ObjectStore, prefix string) *StoreSource {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &StoreSource{store: store, prefix: prefix}
}

// List returns the objects under the prefix.
func (s *StoreSource) List(ctx context.Context) ([]Item, error) {
	objects, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("listing inbox: %w", err)
	}

	items := make([]Item, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		items = append(items, Item{
			ID:      obj.Key,
			Name:    strings.TrimPrefix(obj.Key, s.prefix),
			Size:    obj.Size,
			ModTime: obj.ModTime,
		})
	}
	return items, nil
}

// Fetch downloads the object to destPath.
func (s *StoreSource) Fetch(ctx context.Context, item Item, destPath string) error {
	if _, err := storage.FetchFile(ctx, s.store, item.ID, destPath); err != nil {
		return fmt.Errorf("fetching %s: %w", item.Name, err)
	}
	return nil
}

// Delete removes the object.
func (s *StoreSource) Delete(ctx context.Context, item Item) error {
	if err := s.store.Delete(ctx, item.ID); err != nil {
		return fmt.Errorf("deleting %s: %w", item.Name, err)
	}
	return nil
}

// Describe returns the store URI of the prefix.
func (s *StoreSource) Describe() string {
	return s.store.URI(s.prefix)
}
