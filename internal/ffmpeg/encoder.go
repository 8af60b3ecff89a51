package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
)

// EncodeJob describes one ffmpeg encode. Bitrates are in bits per second.
type EncodeJob struct {
	Input        string
	Output       string
	VideoCodec   string
	VideoBitrate int64
	AudioCodec   string
	AudioBitrate int64
	// NoAudio drops audio instead of encoding it.
	NoAudio bool
	// Pass is 0 for a single-pass encode, or 1 or 2 for two-pass rate control.
	Pass int
	// PassLogFile is the statistics prefix shared by both passes.
	PassLogFile string
	// Format forces the container, needed when Output has no extension (os.DevNull).
	Format string
}

// Encoder runs EncodeJobs through ffmpeg.
type Encoder struct {
	ffmpegPath string
	logger     *slog.Logger
}

// NewEncoder creates an encoder for the given ffmpeg binary.
func NewEncoder(ffmpegPath string) *Encoder {
	return &Encoder{
		ffmpegPath: ffmpegPath,
		logger:     slog.Default(),
	}
}

// WithLogger sets the logger.
func (e *Encoder) WithLogger(logger *slog.Logger) *Encoder {
	e.logger = logger
	return e
}

// BuildCommand turns a job into an ffmpeg command line.
// The analysis pass carries video settings only; audio is settled in the final pass.
func (e *Encoder) BuildCommand(job EncodeJob) *Command {
	b := NewCommandBuilder(e.ffmpegPath).
		HideBanner().
		Overwrite().
		Input(job.Input).
		VideoCodec(job.VideoCodec).
		VideoBitrate(job.VideoBitrate)

	if job.Pass > 0 {
		b.Pass(job.Pass)
		if job.PassLogFile != "" {
			b.PassLogFile(job.PassLogFile)
		}
	}

	if job.Pass == 1 || job.NoAudio {
		b.NoAudio()
	} else {
		b.AudioCodec(job.AudioCodec).AudioBitrate(job.AudioBitrate)
	}

	if job.Format != "" {
		b.Format(job.Format)
	}

	return b.Output(job.Output).Build()
}

// Encode runs the job and blocks until ffmpeg exits.
func (e *Encoder) Encode(ctx context.Context, job EncodeJob) error {
	if job.Input == "" || job.Output == "" {
		return fmt.Errorf("encode job needs both input and output")
	}

	cmd := e.BuildCommand(job)
	e.logger.DebugContext(ctx, "running ffmpeg",
		slog.Int("pass", job.Pass),
		slog.String("command", cmd.String()),
	)

	if err := cmd.Run(ctx); err != nil {
		return err
	}

	e.logger.DebugContext(ctx, "ffmpeg finished",
		slog.Int("pass", job.Pass),
		slog.Duration("duration", cmd.Duration()),
	)
	return nil
}
