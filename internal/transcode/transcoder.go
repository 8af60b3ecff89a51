package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/vidbrief/internal/ffmpeg"
	"github.com/jmylchreest/vidbrief/internal/observability"
	"github.com/jmylchreest/vidbrief/pkg/format"
)

// ScratchDirPrefix prefixes every per-call scratch directory.
const ScratchDirPrefix = "transcode-"

// Prober inspects a media file.
type Prober interface {
	ProbeMedia(ctx context.Context, path string) (*ffmpeg.MediaProbe, error)
}

// Encoder runs one ffmpeg encode, overwriting the output.
type Encoder interface {
	Encode(ctx context.Context, job ffmpeg.EncodeJob) error
}

// Request describes one compression job.
type Request struct {
	InputPath string
	// CeilingKB is the maximum output size in binary kilobytes.
	CeilingKB float64
	TwoPass   bool
	// WorkDir overrides the transcoder's scratch root for this call.
	WorkDir string
}

// Attempt records one encode of the retry loop.
type Attempt struct {
	Number     int           `json:"number"`
	InputPath  string        `json:"input_path"`
	InputSize  int64         `json:"input_size"`
	OutputPath string        `json:"output_path"`
	OutputSize int64         `json:"output_size"`
	Plan       BitratePlan   `json:"plan"`
	TwoPass    bool          `json:"two_pass"`
	Duration   time.Duration `json:"duration"`
}

// Result is the outcome of Transcode. It is returned even when Transcode fails.
type Result struct {
	InputPath  string    `json:"input_path"`
	InputSize  int64     `json:"input_size"`
	CeilingKB  float64   `json:"ceiling_kb"`
	Attempts   []Attempt `json:"attempts"`
	Succeeded  bool      `json:"succeeded"`
	OutputPath string    `json:"output_path,omitempty"`
	OutputSize int64     `json:"output_size,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
}

// Transcoder compresses video under a size ceiling.
type Transcoder struct {
	prober     Prober
	encoder    Encoder
	opts       Options
	scratchDir string
	logger     *slog.Logger
}

// New creates a Transcoder.
func New(prober Prober, encoder Encoder, opts Options) *Transcoder {
	return &Transcoder{
		prober:  prober,
		encoder: encoder,
		opts:    opts,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger.
func (t *Transcoder) WithLogger(logger *slog.Logger) *Transcoder {
	t.logger = logger
	return t
}

// WithScratchDir sets the root for scratch directories when a Request has no WorkDir.
// The default is os.TempDir().
func (t *Transcoder) WithScratchDir(dir string) *Transcoder {
	t.scratchDir = dir
	return t
}

// Options returns the tuning in use.
func (t *Transcoder) Options() Options {
	return t.opts
}

// Transcode re-encodes req.InputPath until the output fits under req.CeilingKB.
//
// Every call works in its own transcode-<ULID> directory. Superseded attempt
// outputs are deleted as soon as a smaller one exists. On failure the whole
// directory is removed; on success only Result.OutputPath remains and the
// caller owns it. A failure is returned as *Error alongside the Result.
func (t *Transcoder) Transcode(ctx context.Context, req Request) (*Result, error) {
	result := &Result{InputPath: req.InputPath, CeilingKB: req.CeilingKB}

	info, err := os.Stat(req.InputPath)
	if err != nil {
		return result, &Error{Kind: ErrProbe, Attempt: 1, Err: err}
	}
	result.InputSize = info.Size()

	if req.CeilingKB <= 0 {
		return result, &Error{Kind: ErrInfeasibleTarget, Attempt: 1, Err: fmt.Errorf("ceiling must be positive, got %.2fKB", req.CeilingKB)}
	}

	root := req.WorkDir
	if root == "" {
		root = t.scratchDir
	}
	if root == "" {
		root = os.TempDir()
	}
	scratch := filepath.Join(root, ScratchDirPrefix+ulid.Make().String())
	if err := os.MkdirAll(scratch, 0o750); err != nil {
		return result, fmt.Errorf("creating scratch dir: %w", err)
	}

	succeeded := false
	defer func() {
		if !succeeded {
			if err := os.RemoveAll(scratch); err != nil {
				t.logger.Warn("failed to remove scratch dir", slog.String("path", scratch), slog.String("error", err.Error()))
			}
		}
	}()

	logger := t.logger.With(slog.String("input", filepath.Base(req.InputPath)), slog.Float64("ceiling_kb", req.CeilingKB))
	if runID := observability.RunIDFromContext(ctx); runID != "" {
		logger = observability.WithRunID(logger, runID)
	}
	ceilingBytes := int64(req.CeilingKB * 1024)
	passLog := filepath.Join(scratch, "passlog")

	current, currentSize := req.InputPath, result.InputSize
	for n := 1; n <= t.opts.MaxAttempts; n++ {
		attempt, err := t.attempt(ctx, logger, result, n, current, currentSize, req, scratch, passLog)
		result.Attempts = append(result.Attempts, attempt)
		if err != nil {
			return result, err
		}

		if attempt.OutputSize <= ceilingBytes {
			t.discardIntermediate(current, req.InputPath)
			succeeded = true
			result.Succeeded = true
			result.OutputPath = attempt.OutputPath
			result.OutputSize = attempt.OutputSize
			removePassLogs(passLog)
			logger.Info("transcode succeeded",
				slog.Int("attempts", n),
				slog.Int64("input_size", result.InputSize),
				slog.Int64("output_size", attempt.OutputSize))
			return result, nil
		}

		if attempt.OutputSize >= currentSize {
			return result, &Error{Kind: ErrNonConvergent, Attempt: n,
				Err: fmt.Errorf("output %d bytes did not shrink below input %d bytes", attempt.OutputSize, currentSize)}
		}

		logger.Info("output above ceiling, retrying on smaller output",
			slog.Int("attempt", n),
			slog.Int64("output_size", attempt.OutputSize),
			slog.Int64("ceiling_bytes", ceilingBytes))

		t.discardIntermediate(current, req.InputPath)
		current, currentSize = attempt.OutputPath, attempt.OutputSize
	}

	return result, &Error{Kind: ErrNonConvergent, Attempt: t.opts.MaxAttempts,
		Err: fmt.Errorf("still above ceiling after %d attempts", t.opts.MaxAttempts)}
}

// attempt runs one probe, plan and encode cycle. The returned Attempt is
// populated as far as the cycle got, including on error.
func (t *Transcoder) attempt(ctx context.Context, logger *slog.Logger, result *Result, n int, input string, inputSize int64, req Request, scratch, passLog string) (attempt Attempt, err error) {
	start := time.Now()
	attempt = Attempt{Number: n, InputPath: input, InputSize: inputSize, TwoPass: req.TwoPass}
	defer func() { attempt.Duration = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		return attempt, fmt.Errorf("transcode canceled: %w", err)
	}

	probe, err := t.prober.ProbeMedia(ctx, input)
	if err != nil {
		if errors.Is(err, ffmpeg.ErrBinaryNotFound) {
			return attempt, &Error{Kind: ErrToolUnavailable, Attempt: n, Err: err}
		}
		if ctx.Err() != nil {
			return attempt, fmt.Errorf("transcode canceled: %w", ctx.Err())
		}
		return attempt, &Error{Kind: ErrProbe, Attempt: n, Err: err}
	}

	plan, err := ComputePlan(probe, req.CeilingKB, t.opts)
	attempt.Plan = plan
	if plan.BelowRecommended {
		warning := fmt.Sprintf("size ceiling %s is below the recommended minimum of %s for %.1fs of video",
			format.Kilobytes(req.CeilingKB), format.Kilobytes(plan.RecommendedMinKB), plan.Duration)
		if !slices.Contains(result.Warnings, warning) {
			result.Warnings = append(result.Warnings, warning)
			logger.Warn(warning)
		}
	}
	if err != nil {
		kind := ErrInfeasibleTarget
		if errors.Is(err, ErrProbe) {
			kind = ErrProbe
		}
		return attempt, &Error{Kind: kind, Attempt: n, Err: err}
	}

	attempt.OutputPath = filepath.Join(scratch, fmt.Sprintf("attempt-%d.mp4", n))
	logger.Debug("encoding attempt",
		slog.Int("attempt", n),
		slog.Float64("duration", plan.Duration),
		slog.Float64("total_bitrate", plan.TotalBitrate),
		slog.Float64("video_bitrate", plan.VideoBitrate),
		slog.Float64("audio_bitrate", plan.AudioBitrate),
		slog.Bool("two_pass", req.TwoPass))

	attemptCtx := ctx
	if t.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, t.opts.AttemptTimeout)
		defer cancel()
	}

	for _, job := range t.jobs(input, attempt.OutputPath, passLog, plan, req.TwoPass) {
		if err := t.encoder.Encode(attemptCtx, job); err != nil {
			return attempt, t.classifyEncodeError(ctx, attemptCtx, n, err)
		}
	}

	out, err := os.Stat(attempt.OutputPath)
	if err != nil {
		return attempt, &Error{Kind: ErrEncode, Attempt: n, Err: fmt.Errorf("encoder produced no output: %w", err)}
	}
	attempt.OutputSize = out.Size()
	return attempt, nil
}

// removePassLogs deletes the rate-control statistics written under prefix.
// File names vary by codec, e.g. -0.log and -0.log.mbtree for libx264.
func removePassLogs(prefix string) {
	matches, _ := filepath.Glob(prefix + "*")
	for _, m := range matches {
		_ = os.Remove(m)
	}
}

// jobs returns the encoder invocations for one attempt. Pass 1 only gathers
// rate-control statistics, so it discards output and skips audio.
func (t *Transcoder) jobs(input, output, passLog string, plan BitratePlan, twoPass bool) []ffmpeg.EncodeJob {
	final := ffmpeg.EncodeJob{
		Input:        input,
		Output:       output,
		VideoCodec:   t.opts.VideoCodec,
		VideoBitrate: int64(plan.VideoBitrate),
		AudioCodec:   t.opts.AudioCodec,
		AudioBitrate: int64(plan.AudioBitrate),
		NoAudio:      plan.NoAudio,
	}
	if !twoPass {
		return []ffmpeg.EncodeJob{final}
	}

	first := ffmpeg.EncodeJob{
		Input:        input,
		Output:       os.DevNull,
		VideoCodec:   t.opts.VideoCodec,
		VideoBitrate: int64(plan.VideoBitrate),
		Pass:         1,
		PassLogFile:  passLog,
		Format:       "mp4",
	}
	final.Pass = 2
	final.PassLogFile = passLog
	return []ffmpeg.EncodeJob{first, final}
}

func (t *Transcoder) classifyEncodeError(ctx, attemptCtx context.Context, n int, err error) error {
	switch {
	case errors.Is(err, ffmpeg.ErrBinaryNotFound):
		return &Error{Kind: ErrToolUnavailable, Attempt: n, Err: err}
	case ctx.Err() != nil:
		return fmt.Errorf("transcode canceled: %w", ctx.Err())
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		return &Error{Kind: ErrTimeout, Attempt: n, Err: fmt.Errorf("exceeded %s: %w", t.opts.AttemptTimeout, err)}
	default:
		return &Error{Kind: ErrEncode, Attempt: n, Err: err}
	}
}

// discardIntermediate removes a superseded attempt output. The caller's input is never removed.
func (t *Transcoder) discardIntermediate(path, original string) {
	if path == original {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		t.logger.Warn("failed to remove intermediate output", slog.String("path", path), slog.String("error", err.Error()))
	}
}
