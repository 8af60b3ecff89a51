package inbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/storage"
)

func TestIsMedia(t *testing.T) {
	tests := []struct {
		name string
		exts []string
		want bool
	}{
		{"clip.mp4", nil, true},
		{"/Camera Uploads/CLIP.MOV", nil, true},
		{"song.mp3", nil, true},
		{"notes.txt", nil, false},
		{"clip.mp4.part", nil, false},
		{"my.mp4.notes.txt", nil, false},
		{"README", nil, false},
		{"clip.webm", []string{"webm", ".MP4"}, true},
		{"clip.mp4", []string{"webm", ".MP4"}, true},
		{"clip.mov", []string{"webm"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMedia(tt.name, tt.exts))
		})
	}
}

func TestFilterMedia(t *testing.T) {
	items := []Item{{Name: "a.mp4"}, {Name: "b.txt"}, {Name: "c.mkv"}}
	got := FilterMedia(items, nil)
	require.Len(t, got, 2)
	assert.Equal(t, "a.mp4", got[0].Name)
	assert.Equal(t, "c.mkv", got[1].Name)
}

func TestItem_BaseName(t *testing.T) {
	assert.Equal(t, "clip.mp4", Item{Name: "/Uploads/2024/clip.mp4"}.BaseName())
	assert.Equal(t, "clip.mp4", Item{Name: "clip.mp4"}.BaseName())
}

func TestStoreSource(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"incoming/a.mp4", "incoming/nested/b.mov", "elsewhere/c.mp4"} {
		require.NoError(t, store.Put(ctx, key, strings.NewReader("data:"+key), ""))
	}

	src := NewStoreSource(store, "incoming")
	items, err := src.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, Item{ID: "incoming/a.mp4", Name: "a.mp4", Size: int64(len("data:incoming/a.mp4")), ModTime: items[0].ModTime}, items[0])
	assert.Equal(t, "nested/b.mov", items[1].Name)

	dest := filepath.Join(t.TempDir(), "a.mp4")
	require.NoError(t, src.Fetch(ctx, items[0], dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "data:incoming/a.mp4", string(data))

	require.NoError(t, src.Delete(ctx, items[0]))
	items, err = src.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	assert.Error(t, src.Fetch(ctx, Item{ID: "incoming/gone.mp4", Name: "gone.mp4"}, dest))
	assert.Contains(t, src.Describe(), "incoming")
}

func TestNewSource(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()

	src, err := NewSource(ctx, config.InboxConfig{Backend: "local", Path: "inbox"}, base, nil)
	require.NoError(t, err)
	assert.IsType(t, &StoreSource{}, src)
	_, err = os.Stat(filepath.Join(base, "inbox"))
	assert.NoError(t, err, "relative local inbox is created under the base dir")

	_, err = NewSource(ctx, config.InboxConfig{Backend: "dropbox"}, base, nil)
	assert.Error(t, err, "dropbox needs credentials")

	_, err = NewSource(ctx, config.InboxConfig{Backend: "ftp"}, base, nil)
	assert.Error(t, err)
}
