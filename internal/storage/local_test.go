package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vidbrief/internal/config"
)

func newTestLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func readObject(t *testing.T, store ObjectStore, key string) string {
	t.Helper()
	rc, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestLocalStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store := newTestLocalStore(t)

	require.NoError(t, store.Put(ctx, "uploads/clip.mp4", strings.NewReader("video"), "video/mp4"))
	assert.Equal(t, "video", readObject(t, store, "uploads/clip.mp4"))

	_, err := store.Get(ctx, "uploads/missing.mp4")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	assert.Error(t, store.Put(ctx, "", strings.NewReader("x"), ""))
	assert.Error(t, store.Put(ctx, "dir/", strings.NewReader("x"), ""))
	assert.Error(t, store.Put(ctx, "../escape", strings.NewReader("x"), ""))
}

func TestLocalStore_List(t *testing.T) {
	ctx := context.Background()
	store := newTestLocalStore(t)

	for _, key := range []string{"inbox/b.mov", "inbox/a.mp4", "inbox/sub/c.mkv", "other/d.mp4", "inboxed.txt"} {
		require.NoError(t, store.Put(ctx, key, strings.NewReader(key), ""))
	}

	objects, err := store.List(ctx, "inbox/")
	require.NoError(t, err)
	var keys []string
	for _, o := range objects {
		keys = append(keys, o.Key)
		assert.Equal(t, int64(len(o.Key)), o.Size)
		assert.False(t, o.ModTime.IsZero())
	}
	assert.Equal(t, []string{"inbox/a.mp4", "inbox/b.mov", "inbox/sub/c.mkv"}, keys)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 5)

	partial, err := store.List(ctx, "inbox")
	require.NoError(t, err)
	assert.Len(t, partial, 4, "a bare prefix matches key text, not directories")

	none, err := store.List(ctx, "nothing/here/")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLocalStore_DeleteAndExists(t *testing.T) {
	ctx := context.Background()
	store := newTestLocalStore(t)
	require.NoError(t, store.Put(ctx, "a/b.mp4", strings.NewReader("x"), ""))

	ok, err := store.Exists(ctx, "a/b.mp4")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, "a/b.mp4"))
	require.NoError(t, store.Delete(ctx, "a/b.mp4"), "deleting twice is not an error")

	ok, err = store.Exists(ctx, "a/b.mp4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStore_URIAndBackend(t *testing.T) {
	store := newTestLocalStore(t)
	assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(store.Root(), "x", "y.mp4")), store.URI("x/y.mp4"))
	assert.Equal(t, BackendLocal, store.Backend())
	assert.NoError(t, store.Close())
}

func TestLocalStore_CanceledContext(t *testing.T) {
	store := newTestLocalStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Put(ctx, "k", strings.NewReader("x"), ""), context.Canceled)
	_, err := store.List(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPutFileAndFetchFile(t *testing.T) {
	ctx := context.Background()
	store := newTestLocalStore(t)

	src := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(src, []byte("plain text body"), 0o600))
	require.NoError(t, PutFile(ctx, store, "docs/note.txt", src))

	dest := filepath.Join(t.TempDir(), "copy.txt")
	n, err := FetchFile(ctx, store, "docs/note.txt", dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len("plain text body")), n)

	contentType, err := DetectContentType(dest)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(contentType, "text/plain"))

	_, err = FetchFile(ctx, store, "docs/missing.txt", dest)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestNewObjectStore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	store, err := NewObjectStore(ctx, config.UploadConfig{Backend: "local"}, root)
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, store.Backend())
	assert.Equal(t, root, store.(*LocalStore).Root())

	explicit := filepath.Join(t.TempDir(), "explicit")
	store, err = NewObjectStore(ctx, config.UploadConfig{Backend: "local", Local: config.LocalConfig{Dir: explicit}}, root)
	require.NoError(t, err)
	assert.Equal(t, explicit, store.(*LocalStore).Root())

	_, err = NewObjectStore(ctx, config.UploadConfig{Backend: "ftp"}, root)
	assert.Error(t, err)

	_, err = NewObjectStore(ctx, config.UploadConfig{Backend: "s3"}, root)
	assert.Error(t, err, "s3 needs a bucket")
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "uploads/clip.mp4", JoinKey("uploads", "clip.mp4"))
	assert.Equal(t, "clip.mp4", JoinKey("", "clip.mp4"))
	assert.Equal(t, "a/b/c", JoinKey("a/", "/b", "c"))
	assert.Equal(t, "", JoinKey("", ""))
}
