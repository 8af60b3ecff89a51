package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/database"
	"github.com/jmylchreest/vidbrief/internal/ffmpeg"
	"github.com/jmylchreest/vidbrief/internal/httpclient"
	"github.com/jmylchreest/vidbrief/internal/inbox"
	"github.com/jmylchreest/vidbrief/internal/logship"
	"github.com/jmylchreest/vidbrief/internal/notify"
	"github.com/jmylchreest/vidbrief/internal/observability"
	"github.com/jmylchreest/vidbrief/internal/pipeline"
	"github.com/jmylchreest/vidbrief/internal/repository"
	"github.com/jmylchreest/vidbrief/internal/startup"
	"github.com/jmylchreest/vidbrief/internal/storage"
	"github.com/jmylchreest/vidbrief/internal/summary"
	"github.com/jmylchreest/vidbrief/internal/transcode"
)

// app holds the collaborators shared by the run and serve commands.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	db           *database.DB
	runs         repository.RunRepository
	summaries    repository.SummaryRepository
	orchestrator *pipeline.Orchestrator
	closers      []io.Closer
}

// newApp opens the database and builds the pipeline described by cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: slog.Default()}

	var capture *observability.CaptureBuffer
	if cfg.LogShip.Enabled {
		capture = observability.NewCaptureBuffer(0)
		a.logger = newLogger(io.MultiWriter(os.Stderr, capture))
		observability.SetDefault(a.logger)
	}

	if err := os.MkdirAll(cfg.Storage.ScratchPath(), 0o750); err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	orphans, err := startup.CleanupOrphanedScratchDirs(a.logger, cfg.Storage.ScratchPath(), cfg.Pipeline.OrphanMaxAge)
	if err != nil {
		a.logger.Warn("failed to clean orphaned scratch directories", slog.String("error", err.Error()))
	} else if orphans > 0 {
		a.logger.Info("cleaned orphaned scratch directories", slog.Int("removed_count", orphans))
	}

	db, err := database.New(cfg.Database, a.logger, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db)
	if err := db.Migrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	a.runs = repository.NewRunRepository(db.DB)
	a.summaries = repository.NewSummaryRepository(db.DB)

	a.orchestrator, err = a.buildPipeline(ctx, capture)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) buildPipeline(ctx context.Context, capture *observability.CaptureBuffer) (*pipeline.Orchestrator, error) {
	cfg := a.cfg

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Logger = a.logger
	client := httpclient.New(httpCfg)

	transcoder, err := newTranscoder(ctx, cfg, a.logger)
	if err != nil {
		return nil, err
	}

	source, err := inbox.NewSource(ctx, cfg.Inbox, cfg.Storage.BaseDir, client)
	if err != nil {
		return nil, fmt.Errorf("initializing inbox: %w", err)
	}

	store, err := storage.NewObjectStore(ctx, cfg.Upload, cfg.Storage.ObjectsPath())
	if err != nil {
		return nil, fmt.Errorf("initializing upload store: %w", err)
	}
	a.closers = append(a.closers, store)

	summarizer, err := summary.NewGeminiSummarizer(ctx, cfg.Summarizer)
	if err != nil {
		return nil, fmt.Errorf("initializing summarizer: %w", err)
	}
	summarizer.WithLogger(observability.WithComponent(a.logger, "summarizer"))

	notifier, err := notify.New(cfg.Notify, client)
	if err != nil {
		return nil, fmt.Errorf("initializing notifier: %w", err)
	}

	deps := pipeline.Deps{
		Inbox:      source,
		Transcoder: transcoder,
		Store:      store,
		Summarizer: summarizer,
		Summaries:  a.summaries,
		Runs:       a.runs,
		Notifier:   notifier,
	}

	if cfg.LogShip.Enabled {
		logStore, err := storage.NewObjectStore(ctx, cfg.LogShip.Store, cfg.Storage.ObjectsPath())
		if err != nil {
			return nil, fmt.Errorf("initializing log store: %w", err)
		}
		a.closers = append(a.closers, logStore)
		deps.Shipper = logship.New(logStore, cfg.LogShip).WithLogger(observability.WithComponent(a.logger, "logship"))
		deps.Capture = capture
	}

	return pipeline.NewOrchestrator(deps, pipeline.OptionsFromConfig(cfg)).WithLogger(a.logger), nil
}

// newTranscoder locates ffmpeg and builds a transcoder tuned by cfg.
func newTranscoder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*transcode.Transcoder, error) {
	info, err := ffmpeg.NewDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath).Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("detecting ffmpeg: %w", err)
	}
	logger.Debug("ffmpeg detected",
		slog.String("ffmpeg_path", info.FFmpegPath),
		slog.String("ffprobe_path", info.FFprobePath),
		slog.String("version", info.Version))
	for _, codec := range []string{cfg.Transcode.VideoCodec, cfg.Transcode.AudioCodec} {
		if !info.HasEncoder(codec) {
			logger.Warn("ffmpeg build lacks configured encoder", slog.String("encoder", codec))
		}
	}

	logger = observability.WithComponent(logger, "transcode")
	prober := ffmpeg.NewProber(info.FFprobePath).WithTimeout(cfg.FFmpeg.ProbeTimeout)
	encoder := ffmpeg.NewEncoder(info.FFmpegPath).WithLogger(logger)
	return transcode.New(prober, encoder, transcode.OptionsFromConfig(cfg.Transcode)).
		WithLogger(logger).
		WithScratchDir(cfg.Storage.ScratchPath()), nil
}

// Close releases the database and object store clients.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
