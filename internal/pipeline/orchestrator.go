// Package pipeline processes the inbox: each media item is fetched, brought
// under the size ceiling, uploaded, summarized, recorded and announced.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/inbox"
	"github.com/jmylchreest/vidbrief/internal/models"
	"github.com/jmylchreest/vidbrief/internal/notify"
	"github.com/jmylchreest/vidbrief/internal/observability"
	"github.com/jmylchreest/vidbrief/internal/repository"
	"github.com/jmylchreest/vidbrief/internal/storage"
	"github.com/jmylchreest/vidbrief/internal/summary"
	"github.com/jmylchreest/vidbrief/internal/transcode"
	"github.com/jmylchreest/vidbrief/pkg/format"
)

// JobDirPrefix names the per-run scratch directory.
const JobDirPrefix = "vidbrief-job-"

// Transcoder compresses a file under a size ceiling.
type Transcoder interface {
	Transcode(ctx context.Context, req transcode.Request) (*transcode.Result, error)
}

// LogShipper uploads a run's captured log.
type LogShipper interface {
	Ship(ctx context.Context, content []byte, runStarted time.Time) (storage.BackupOutcome, error)
}

// Deps are the collaborators of an Orchestrator. Shipper, Capture and
// DiskFree are optional.
type Deps struct {
	Inbox      inbox.Source
	Transcoder Transcoder
	Store      storage.ObjectStore
	Summarizer summary.Summarizer
	Summaries  repository.SummaryRepository
	Runs       repository.RunRepository
	Notifier   notify.Notifier
	Shipper    LogShipper
	Capture    *observability.CaptureBuffer
	// DiskFree reports free bytes on the filesystem holding path.
	DiskFree func(ctx context.Context, path string) (uint64, error)
}

// ItemReport describes what happened to one inbox item.
type ItemReport struct {
	Name         string                 `json:"name"`
	Outcome      models.ItemOutcome     `json:"outcome"`
	Transcode    models.TranscodeAction `json:"transcode"`
	Attempts     int                    `json:"attempts"`
	OriginalSize int64                  `json:"original_size"`
	FinalSize    int64                  `json:"final_size"`
	ObjectURI    string                 `json:"object_uri,omitempty"`
	SummaryID    *models.ULID           `json:"summary_id,omitempty"`
	Title        string                 `json:"title,omitempty"`
	Warnings     []string               `json:"warnings,omitempty"`
	ErrorKind    string                 `json:"error_kind,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Duration     time.Duration          `json:"duration"`
}

// RunReport summarizes one pass over the inbox.
type RunReport struct {
	RunID          models.ULID       `json:"run_id"`
	Trigger        models.RunTrigger `json:"trigger"`
	Status         models.RunStatus  `json:"status"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	ItemsFound     int               `json:"items_found"`
	ItemsProcessed int               `json:"items_processed"`
	ItemsSkipped   int               `json:"items_skipped"`
	ItemsFailed    int               `json:"items_failed"`
	Items          []ItemReport      `json:"items"`
	Error          string            `json:"error,omitempty"`
}

// Orchestrator runs the inbox pipeline. Items are processed one at a time.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = notify.Noop{}
	}
	if deps.DiskFree == nil {
		deps.DiskFree = DiskFree
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = config.FailurePolicySkip
	}
	return &Orchestrator{deps: deps, opts: opts, logger: slog.Default(), now: time.Now}
}

// WithLogger sets the logger.
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	o.logger = logger
	return o
}

// Run makes one pass over the inbox. The returned report is non-nil once the
// run record exists; err is set when the run aborted before or while listing.
func (o *Orchestrator) Run(ctx context.Context, trigger models.RunTrigger) (*RunReport, error) {
	if o.deps.Capture != nil {
		o.deps.Capture.Reset()
	}

	run := &models.PipelineRun{Trigger: trigger, Status: models.RunStatusRunning, StartedAt: o.now()}
	if err := o.deps.Runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("creating run record: %w", err)
	}

	logger := observability.WithRunID(o.logger, run.ID.String())
	ctx = observability.ContextWithRunID(ctx, run.ID.String())
	logger.InfoContext(ctx, "pipeline run started",
		slog.String("trigger", string(trigger)),
		slog.String("inbox", o.deps.Inbox.Describe()))

	report := &RunReport{RunID: run.ID, Trigger: trigger, StartedAt: run.StartedAt}
	runErr := o.execute(ctx, logger, run, report)
	if runErr != nil {
		run.Error = runErr.Error()
		report.Error = run.Error
	}

	o.finish(ctx, logger, run, report)
	return report, runErr
}

func (o *Orchestrator) execute(ctx context.Context, logger *slog.Logger, run *models.PipelineRun, report *RunReport) error {
	if err := os.MkdirAll(o.opts.ScratchDir, 0750); err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}
	if err := o.preflight(ctx); err != nil {
		return err
	}

	jobDir := filepath.Join(o.opts.ScratchDir, JobDirPrefix+run.ID.String())
	if err := os.MkdirAll(jobDir, 0750); err != nil {
		return fmt.Errorf("creating job directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(jobDir); err != nil {
			logger.Warn("failed to remove job directory", slog.String("path", jobDir), slog.String("error", err.Error()))
		}
	}()

	listed, err := o.deps.Inbox.List(ctx)
	if err != nil {
		return fmt.Errorf("listing inbox: %w", err)
	}
	items := inbox.FilterMedia(listed, o.opts.Extensions)
	if len(items) > o.opts.MaxItemsPerRun && o.opts.MaxItemsPerRun > 0 {
		logger.Info("inbox has more items than one run processes",
			slog.Int("found", len(items)),
			slog.Int("max_items_per_run", o.opts.MaxItemsPerRun))
		items = items[:o.opts.MaxItemsPerRun]
	}
	run.ItemsFound = len(items)
	report.ItemsFound = len(items)
	logger.InfoContext(ctx, "inbox listed", slog.Int("files", len(listed)), slog.Int("media", len(items)))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run canceled after %d of %d items: %w", i, len(items), err)
		}

		itemDir := filepath.Join(jobDir, fmt.Sprintf("item-%03d", i+1))
		rep := o.processItem(ctx, logger, run.ID, item, itemDir)
		_ = os.RemoveAll(itemDir)

		report.Items = append(report.Items, rep)
		switch rep.Outcome {
		case models.ItemOutcomeProcessed:
			run.ItemsProcessed++
		case models.ItemOutcomeSkipped:
			run.ItemsSkipped++
		default:
			run.ItemsFailed++
		}
		o.recordItem(ctx, logger, run.ID, rep)
	}
	return nil
}

// preflight refuses to start when the scratch filesystem is nearly full.
func (o *Orchestrator) preflight(ctx context.Context) error {
	if o.opts.MinFreeSpace <= 0 {
		return nil
	}
	free, err := o.deps.DiskFree(ctx, o.opts.ScratchDir)
	if err != nil {
		return fmt.Errorf("checking free space: %w", err)
	}
	if free < uint64(o.opts.MinFreeSpace) {
		return fmt.Errorf("%w: %s free, %s required", ErrInsufficientSpace,
			format.Bytes(int64(free)), format.Bytes(o.opts.MinFreeSpace))
	}
	return nil
}

func (o *Orchestrator) processItem(ctx context.Context, logger *slog.Logger, runID models.ULID, item inbox.Item, dir string) ItemReport {
	start := o.now()
	rep := ItemReport{Name: item.Name, Transcode: models.TranscodeActionNone}
	logger = logger.With(slog.String("item", item.Name))

	fail := func(stage string, err error) ItemReport {
		rep.Outcome = models.ItemOutcomeFailed
		rep.Error = (&ItemError{Item: item.Name, Stage: stage, Err: err}).Error()
		if kind := transcode.KindName(err); kind != "" && kind != "unknown" {
			rep.ErrorKind = kind
		} else {
			rep.ErrorKind = stage
		}
		rep.Duration = o.now().Sub(start)
		observability.WithError(logger, err).ErrorContext(ctx, "item failed", slog.String("stage", stage))
		return rep
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fail(StageFetch, err)
	}
	sourcePath := filepath.Join(dir, safeBaseName(item.BaseName()))
	if err := o.deps.Inbox.Fetch(ctx, item, sourcePath); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			rep.Outcome = models.ItemOutcomeSkipped
			rep.Error = "item disappeared from the inbox before it could be fetched"
			rep.Duration = o.now().Sub(start)
			logger.WarnContext(ctx, "item vanished from inbox")
			return rep
		}
		return fail(StageFetch, err)
	}
	info, err := os.Stat(sourcePath)
	if err != nil {
		return fail(StageFetch, err)
	}
	rep.OriginalSize = info.Size()
	rep.FinalSize = info.Size()

	finalPath := sourcePath
	uploadName := safeBaseName(item.BaseName())

	if info.Size() > o.opts.CeilingBytes {
		result, err := o.transcode(ctx, logger, transcode.Request{
			InputPath: sourcePath,
			CeilingKB: float64(o.opts.CeilingBytes) / 1024,
			TwoPass:   o.opts.TwoPass,
			WorkDir:   dir,
		})
		if result != nil {
			rep.Attempts = len(result.Attempts)
			rep.Warnings = result.Warnings
		}
		switch {
		case err == nil:
			rep.Transcode = models.TranscodeActionCompressed
			finalPath = result.OutputPath
			rep.FinalSize = result.OutputSize
			uploadName = strings.TrimSuffix(uploadName, filepath.Ext(uploadName)) + ".mp4"
			logger.InfoContext(ctx, "video compressed",
				slog.String("from", format.Bytes(rep.OriginalSize)),
				slog.String("to", format.Bytes(rep.FinalSize)),
				slog.String("reduction", format.Percentage(1-float64(rep.FinalSize)/float64(rep.OriginalSize), 1)),
				slog.Int("attempts", rep.Attempts))
		case ctx.Err() != nil:
			return fail(StageTranscode, err)
		case o.opts.FailurePolicy == config.FailurePolicyUploadOriginal:
			rep.Transcode = models.TranscodeActionOriginal
			rep.ErrorKind = transcode.KindName(err)
			observability.WithError(logger, err).WarnContext(ctx, "compression failed, uploading original")
		default:
			rep.Transcode = models.TranscodeActionFailed
			o.notify(ctx, logger, "Video compression failed: "+item.BaseName(), err.Error())
			return fail(StageTranscode, err)
		}
	} else {
		logger.InfoContext(ctx, "video already under the size ceiling",
			slog.String("size", format.Bytes(info.Size())),
			slog.String("ceiling", format.Bytes(o.opts.CeilingBytes)))
	}

	contentType, err := storage.DetectContentType(finalPath)
	if err != nil {
		return fail(StageUpload, err)
	}
	key := storage.JoinKey(o.opts.UploadPrefix, uploadName)
	if err := storage.PutFile(ctx, o.deps.Store, key, finalPath); err != nil {
		return fail(StageUpload, err)
	}
	rep.ObjectURI = o.deps.Store.URI(key)

	raw, err := o.summarize(ctx, logger, summary.VideoRef{
		Name:      item.BaseName(),
		URI:       rep.ObjectURI,
		LocalPath: finalPath,
		MimeType:  contentType,
	})
	if err != nil {
		return fail(StageSummarize, err)
	}
	parsed := summary.Parse(raw)
	if parsed.IsEmpty() {
		logger.WarnContext(ctx, "summary response contained no tagged sections")
	}

	record := &models.VideoSummary{
		RunID:        runID,
		SourceName:   item.Name,
		ObjectURI:    rep.ObjectURI,
		Title:        parsed.Title,
		KeyPoints:    parsed.KeyPoints,
		Summary:      parsed.Summary,
		RawResponse:  raw,
		MimeType:     contentType,
		Transcoded:   rep.Transcode == models.TranscodeActionCompressed,
		OriginalSize: rep.OriginalSize,
		FinalSize:    rep.FinalSize,
	}
	record.SetTags(parsed.Tags)
	if err := o.deps.Summaries.Create(ctx, record); err != nil {
		return fail(StageSave, err)
	}
	rep.SummaryID = &record.ID
	rep.Title = parsed.Title

	title := parsed.Title
	if title == "" {
		title = item.BaseName()
	}
	message := parsed.KeyPoints
	if message == "" {
		message = title
	}
	o.notify(ctx, logger, "Video summary: "+title, message)

	if o.opts.DeleteAfterProcess {
		if err := o.deps.Inbox.Delete(ctx, item); err != nil {
			// The summary exists; a leftover inbox file is reprocessed next run.
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("removing from inbox: %v", err))
			observability.WithError(logger, err).WarnContext(ctx, "failed to remove item from inbox")
		}
	}

	rep.Outcome = models.ItemOutcomeProcessed
	rep.Duration = o.now().Sub(start)
	logger.InfoContext(ctx, "item processed",
		slog.String("title", parsed.Title),
		slog.String("uri", rep.ObjectURI),
		slog.Duration("duration", rep.Duration))
	return rep
}

// transcode and summarize are the slow stages of an item; both log their duration.
func (o *Orchestrator) transcode(ctx context.Context, logger *slog.Logger, req transcode.Request) (result *transcode.Result, err error) {
	done := observability.TimedOperationWithError(ctx, logger, StageTranscode, &err)
	defer done()
	return o.deps.Transcoder.Transcode(ctx, req)
}

func (o *Orchestrator) summarize(ctx context.Context, logger *slog.Logger, video summary.VideoRef) (raw string, err error) {
	done := observability.TimedOperationWithError(ctx, logger, StageSummarize, &err)
	defer done()
	return o.deps.Summarizer.Summarize(ctx, video)
}

func (o *Orchestrator) notify(ctx context.Context, logger *slog.Logger, title, message string) {
	if err := o.deps.Notifier.Notify(ctx, title, message); err != nil {
		observability.WithError(logger, err).WarnContext(ctx, "notification failed")
	}
}

func (o *Orchestrator) recordItem(ctx context.Context, logger *slog.Logger, runID models.ULID, rep ItemReport) {
	item := &models.RunItem{
		RunID:        runID,
		Name:         rep.Name,
		Outcome:      rep.Outcome,
		Transcode:    rep.Transcode,
		Attempts:     rep.Attempts,
		OriginalSize: rep.OriginalSize,
		FinalSize:    rep.FinalSize,
		SummaryID:    rep.SummaryID,
		ErrorKind:    rep.ErrorKind,
		Error:        rep.Error,
		DurationMs:   rep.Duration.Milliseconds(),
	}
	if err := o.deps.Runs.AddItem(ctx, item); err != nil {
		logger.ErrorContext(ctx, "failed to record run item", slog.String("item", rep.Name), slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, run *models.PipelineRun, report *RunReport) {
	run.Finish(o.now())
	report.Status = run.Status
	report.FinishedAt = *run.FinishedAt
	report.ItemsProcessed = run.ItemsProcessed
	report.ItemsSkipped = run.ItemsSkipped
	report.ItemsFailed = run.ItemsFailed

	// The run record must be closed even when the trigger context is gone.
	saveCtx := context.WithoutCancel(ctx)
	if err := o.deps.Runs.Update(saveCtx, run); err != nil {
		logger.ErrorContext(ctx, "failed to update run record", slog.String("error", err.Error()))
	}

	logger.InfoContext(ctx, "pipeline run finished",
		slog.String("status", string(run.Status)),
		slog.Int("found", run.ItemsFound),
		slog.Int("processed", run.ItemsProcessed),
		slog.Int("skipped", run.ItemsSkipped),
		slog.Int("failed", run.ItemsFailed),
		slog.Duration("duration", run.Duration()))

	if o.deps.Shipper != nil && o.deps.Capture != nil {
		if o.deps.Capture.Truncated() {
			logger.WarnContext(ctx, "run log exceeded capture limit, shipping the head only")
		}
		if _, err := o.deps.Shipper.Ship(saveCtx, o.deps.Capture.Bytes(), run.StartedAt); err != nil {
			logger.ErrorContext(ctx, "failed to ship run log", slog.String("error", err.Error()))
		}
	}
}

// safeBaseName strips anything that could escape the item directory.
func safeBaseName(name string) string {
	name = filepath.Base(filepath.FromSlash(name))
	if name == "." || name == string(filepath.Separator) || name == ".." || name == "" {
		return "video"
	}
	return name
}
