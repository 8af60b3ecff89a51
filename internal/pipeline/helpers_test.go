package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/inbox"
	"github.com/jmylchreest/vidbrief/internal/repository"
	"github.com/jmylchreest/vidbrief/internal/storage"
	"github.com/jmylchreest/vidbrief/internal/summary"
	"github.com/jmylchreest/vidbrief/internal/testutil"
	"github.com/jmylchreest/vidbrief/internal/transcode"
)

const taggedResponse = `<TITLE>Quarterly demo</TITLE>
<KEYPOINTS>- new dashboard
- faster exports</KEYPOINTS>
<SUMMARY>A walkthrough of the release.</SUMMARY>
<TAGS>demo, release</TAGS>`

type fakeTranscoder struct {
	mu       sync.Mutex
	requests []transcode.Request
	// outputSize is the size of the file written on success.
	outputSize int
	err        error
}

func (f *fakeTranscoder) Transcode(_ context.Context, req transcode.Request) (*transcode.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	result := &transcode.Result{
		InputPath: req.InputPath,
		CeilingKB: req.CeilingKB,
		Attempts:  []transcode.Attempt{{Number: 1}, {Number: 2}},
	}
	if f.err != nil {
		return result, f.err
	}

	out := filepath.Join(req.WorkDir, "compressed.mp4")
	if err := os.WriteFile(out, make([]byte, f.outputSize), 0o644); err != nil {
		return result, err
	}
	result.Succeeded = true
	result.OutputPath = out
	result.OutputSize = int64(f.outputSize)
	return result, nil
}

func (f *fakeTranscoder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeSummarizer struct {
	mu       sync.Mutex
	refs     []summary.VideoRef
	response string
	// failFor makes Summarize fail for videos with this name.
	failFor string
}

func (f *fakeSummarizer) Summarize(_ context.Context, video summary.VideoRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, video)
	if f.failFor != "" && video.Name == f.failFor {
		return "", errors.New("model unavailable")
	}
	return f.response, nil
}

type notification struct {
	title   string
	message string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{title: title, message: message})
	return f.err
}

type fakeShipper struct {
	content []byte
	started time.Time
}

func (f *fakeShipper) Ship(_ context.Context, content []byte, runStarted time.Time) (storage.BackupOutcome, error) {
	f.content = append([]byte(nil), content...)
	f.started = runStarted
	return storage.BackupOutcome{}, nil
}

type harness struct {
	inboxStore  *storage.LocalStore
	uploadStore *storage.LocalStore
	transcoder  *fakeTranscoder
	summarizer  *fakeSummarizer
	notifier    *fakeNotifier
	summaries   repository.SummaryRepository
	runs        repository.RunRepository
	scratch     string
	freeSpace   uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()

	inboxStore, err := storage.NewLocalStore(filepath.Join(root, "inbox"))
	require.NoError(t, err)
	uploadStore, err := storage.NewLocalStore(filepath.Join(root, "uploads"))
	require.NoError(t, err)

	db := testutil.NewTestDB(t)

	return &harness{
		inboxStore:  inboxStore,
		uploadStore: uploadStore,
		transcoder:  &fakeTranscoder{outputSize: 512},
		summarizer:  &fakeSummarizer{response: taggedResponse},
		notifier:    &fakeNotifier{},
		summaries:   repository.NewSummaryRepository(db.DB),
		runs:        repository.NewRunRepository(db.DB),
		scratch:     filepath.Join(root, "scratch"),
		freeSpace:   1 << 40,
	}
}

func (h *harness) addInboxFile(t *testing.T, name string, size int) {
	t.Helper()
	content := strings.Repeat("v", size)
	require.NoError(t, h.inboxStore.Put(context.Background(), "incoming/"+name, strings.NewReader(content), ""))
}

func (h *harness) options() Options {
	return Options{
		CeilingBytes:       1024,
		FailurePolicy:      config.FailurePolicySkip,
		ScratchDir:         h.scratch,
		UploadPrefix:       "videos",
		Extensions:         config.DefaultMediaExtensions,
		DeleteAfterProcess: true,
	}
}

func (h *harness) orchestrator(opts Options) *Orchestrator {
	return NewOrchestrator(Deps{
		Inbox:      inbox.NewStoreSource(h.inboxStore, "incoming"),
		Transcoder: h.transcoder,
		Store:      h.uploadStore,
		Summarizer: h.summarizer,
		Summaries:  h.summaries,
		Runs:       h.runs,
		Notifier:   h.notifier,
		DiskFree: func(context.Context, string) (uint64, error) {
			return h.freeSpace, nil
		},
	}, opts)
}

func (h *harness) inboxHas(t *testing.T, name string) bool {
	t.Helper()
	ok, err := h.inboxStore.Exists(context.Background(), "incoming/"+name)
	require.NoError(t, err)
	return ok
}

func (h *harness) uploaded(t *testing.T, key string) bool {
	t.Helper()
	ok, err := h.uploadStore.Exists(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func jobDirs(t *testing.T, scratch string) []string {
	t.Helper()
	entries, err := os.ReadDir(scratch)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), JobDirPrefix) {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs
}

func mb(n float64) int64 {
	return int64(n * 1024 * 1024)
}

