package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves the handful of path-style S3 operations S3Store uses.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	if (path == f.bucket || path == f.bucket+"/") && r.Method == http.MethodGet {
		f.list(w, r.URL.Query().Get("prefix"))
		return
	}
	key, ok := strings.CutPrefix(path, f.bucket+"/")
	if !ok {
		http.Error(w, "unknown bucket", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[key] = data
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, found := f.objects[key]
		if !found {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message><Key>%s</Key></Error>`, key)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		_, _ = w.Write(data)
	case http.MethodHead:
		data, found := f.objects[key]
		if !found {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) list(w http.ResponseWriter, prefix string) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	fmt.Fprintf(&b, "<Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><IsTruncated>false</IsTruncated>", f.bucket, prefix, len(keys))
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-05-01T10:00:00.000Z</LastModified></Contents>", k, len(f.objects[k]))
	}
	b.WriteString("</ListBucketResult>")

	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(b.String()))
}

func newFakeS3Store(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{bucket: "media", objects: map[string][]byte{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(server.URL),
		UsePathStyle:               true,
		Credentials:                aws.AnonymousCredentials{},
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
	return NewS3StoreWithClient(client, "media"), fake
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	store, fake := newFakeS3Store(t)

	require.NoError(t, store.Put(ctx, "uploads/a.mp4", strings.NewReader("aaa"), "video/mp4"))
	// A non-seekable reader goes through the spool file.
	require.NoError(t, store.Put(ctx, "uploads/b.mp4", io.MultiReader(strings.NewReader("bb")), ""))
	require.NoError(t, store.Put(ctx, "logs/run.log", strings.NewReader("log"), "text/plain"))
	assert.Equal(t, []byte("bb"), fake.objects["uploads/b.mp4"])

	assert.Equal(t, "aaa", readObject(t, store, "uploads/a.mp4"))

	_, err := store.Get(ctx, "uploads/missing.mp4")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	ok, err := store.Exists(ctx, "uploads/a.mp4")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Exists(ctx, "uploads/missing.mp4")
	require.NoError(t, err)
	assert.False(t, ok)

	objects, err := store.List(ctx, "uploads/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "uploads/a.mp4", objects[0].Key)
	assert.Equal(t, int64(3), objects[0].Size)
	assert.Equal(t, 2024, objects[0].ModTime.Year())

	require.NoError(t, store.Delete(ctx, "uploads/a.mp4"))
	ok, err = store.Exists(ctx, "uploads/a.mp4")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, "s3://media/logs/run.log", store.URI("logs/run.log"))
	assert.Equal(t, BackendS3, store.Backend())
}

func TestS3Store_PutWithBackup(t *testing.T) {
	ctx := context.Background()
	store, fake := newFakeS3Store(t)
	fake.objects["logs/vidbrief.log"] = []byte("previous")

	outcome, err := PutWithBackup(ctx, store, "logs/vidbrief.log", strings.NewReader("current"), "text/plain", "20240501", BackupStrategyFile)
	require.NoError(t, err)
	assert.True(t, outcome.BackedUp)
	assert.Equal(t, []byte("previous"), fake.objects["logs/vidbrief_20240501.log"])
	assert.Equal(t, []byte("current"), fake.objects["logs/vidbrief.log"])
}
