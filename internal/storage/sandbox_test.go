package storage

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSandbox(t *testing.T) *Sandbox {
	t.Helper()
	sb, err := NewSandbox(t.TempDir())
	require.NoError(t, err)
	return sb
}

func TestNewSandbox_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "root")
	sb, err := NewSandbox(dir)
	require.NoError(t, err)

	info, err := os.Stat(sb.BaseDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSandbox_ResolvePath(t *testing.T) {
	sb := newTestSandbox(t)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"simple file", "a.txt", false},
		{"nested", "a/b/c.txt", false},
		{"dot", ".", false},
		{"inner parent stays inside", "a/../b.txt", false},
		{"parent escape", "../outside.txt", true},
		{"deep escape", "a/../../outside.txt", true},
		{"absolute", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := sb.ResolvePath(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPathEscapesSandbox)
				return
			}
			require.NoError(t, err)
			rel, err := filepath.Rel(sb.BaseDir(), resolved)
			require.NoError(t, err)
			assert.NotContains(t, rel, "..")
		})
	}
}

func writeFile(t *testing.T, sb *Sandbox, rel, content string) {
	t.Helper()
	require.NoError(t, sb.AtomicWriteReader(rel, strings.NewReader(content)))
}

func TestSandbox_AtomicWriteReader(t *testing.T) {
	sb := newTestSandbox(t)

	writeFile(t, sb, "dir/file.txt", "first")
	writeFile(t, sb, "dir/file.txt", "second")

	data, err := os.ReadFile(filepath.Join(sb.BaseDir(), "dir", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Join(sb.BaseDir(), "dir"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files should be left behind")

	assert.ErrorIs(t, sb.AtomicWriteReader("../escape.txt", strings.NewReader("x")), ErrPathEscapesSandbox)
}

func TestSandbox_Open(t *testing.T) {
	sb := newTestSandbox(t)
	writeFile(t, sb, "clip.mp4", "frames")

	f, err := sb.Open("clip.mp4")
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(6), info.Size())

	_, err = sb.Open("missing.mp4")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestSandbox_ExistsAndRemove(t *testing.T) {
	sb := newTestSandbox(t)

	exists, err := sb.Exists("missing.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	writeFile(t, sb, "present.txt", "x")
	exists, err = sb.Exists("present.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, sb.Remove("present.txt"))
	exists, err = sb.Exists("present.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, sb.Remove("present.txt"), fs.ErrNotExist)
	assert.ErrorIs(t, sb.Remove("."), ErrPathEscapesSandbox)
}

func TestSandbox_RemovePrunesEmptyParents(t *testing.T) {
	sb := newTestSandbox(t)
	writeFile(t, sb, "a/b/c/one.mp4", "1")
	writeFile(t, sb, "a/two.mp4", "2")

	require.NoError(t, sb.Remove("a/b/c/one.mp4"))

	exists, err := sb.Exists("a/b")
	require.NoError(t, err)
	assert.False(t, exists, "emptied directories are removed")

	exists, err = sb.Exists("a/two.mp4")
	require.NoError(t, err)
	assert.True(t, exists, "non-empty parent is kept")

	require.NoError(t, sb.Remove("a/two.mp4"))
	_, err = os.Stat(sb.BaseDir())
	assert.NoError(t, err, "root survives")
}

func TestSandbox_WalkFiles(t *testing.T) {
	sb := newTestSandbox(t)
	writeFile(t, sb, "a/one.mp4", "1")
	writeFile(t, sb, "a/b/two.mp4", "22")
	writeFile(t, sb, "a/.hidden", "h")
	require.NoError(t, os.MkdirAll(filepath.Join(sb.BaseDir(), "a", "empty"), 0o750))

	seen := map[string]int64{}
	require.NoError(t, sb.WalkFiles("a", func(rel string, info fs.FileInfo) error {
		seen[rel] = info.Size()
		return nil
	}))
	assert.Equal(t, map[string]int64{"a/one.mp4": 1, "a/b/two.mp4": 2}, seen)

	require.NoError(t, sb.WalkFiles("does-not-exist", func(string, fs.FileInfo) error {
		t.Fatal("callback should not run")
		return nil
	}))
}
