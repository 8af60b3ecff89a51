package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// stderrTailLines is how many trailing stderr lines a failed command reports.
const stderrTailLines = 20

// Command is a built ffmpeg invocation.
type Command struct {
	Binary    string
	Args      []string
	Input     string
	Output    string
	LogLevel  string
	Overwrite bool

	mu          sync.RWMutex
	started     time.Time
	finished    time.Time
	stderrLines []string
}

// CommandBuilder builds ffmpeg commands with a fluent API.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	input      string
	outputArgs []string
	output     string
	logLevel   string
	overwrite  bool
}

// NewCommandBuilder creates a new ffmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// HideBanner suppresses the ffmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output overwriting (-y).
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Input sets the input file.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// VideoCodec sets the video codec (-c:v).
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// VideoBitrate sets the target video bitrate (-b:v) in bits per second.
func (b *CommandBuilder) VideoBitrate(bps int64) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:v", strconv.FormatInt(bps, 10))
	return b
}

// AudioCodec sets the audio codec (-c:a).
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// AudioBitrate sets the target audio bitrate (-b:a) in bits per second.
func (b *CommandBuilder) AudioBitrate(bps int64) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:a", strconv.FormatInt(bps, 10))
	return b
}

// NoAudio drops all audio streams (-an).
func (b *CommandBuilder) NoAudio() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-an")
	return b
}

// Pass selects the two-pass rate control pass (1 or 2).
func (b *CommandBuilder) Pass(n int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-pass", strconv.Itoa(n))
	return b
}

// PassLogFile sets the prefix for two-pass statistics files.
func (b *CommandBuilder) PassLogFile(prefix string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-passlogfile", prefix)
	return b
}

// Format forces the output container format (-f).
func (b *CommandBuilder) Format(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-f", format)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)

	if b.overwrite {
		args = append(args, "-y")
	}

	args = append(args, "-i", b.input)
	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary:    b.binary,
		Args:      args,
		Input:     b.input,
		Output:    b.output,
		LogLevel:  b.logLevel,
		Overwrite: b.overwrite,
	}
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Run executes the command and waits for completion. Cancelling ctx kills the process.
// A failed run reports the last lines ffmpeg wrote to stderr.
func (c *Command) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("getting stderr pipe: %w", err)
	}

	c.mu.Lock()
	c.started = time.Now()
	c.finished = time.Time{}
	c.stderrLines = nil
	c.mu.Unlock()

	if err := cmd.Start(); err != nil {
		if isPathError(err) || errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrBinaryNotFound, err)
		}
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	done := make(chan struct{})
	go c.captureStderr(stderr, done)
	<-done

	err = cmd.Wait()

	c.mu.Lock()
	c.finished = time.Now()
	c.mu.Unlock()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
		}
		if tail := c.StderrLines(); len(tail) > 0 {
			return fmt.Errorf("ffmpeg failed: %w: %s", err, strings.Join(tail, "; "))
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

// captureStderr keeps the last stderrTailLines lines of output.
func (c *Command) captureStderr(r io.Reader, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.mu.Lock()
		if len(c.stderrLines) >= stderrTailLines {
			c.stderrLines = c.stderrLines[1:]
		}
		c.stderrLines = append(c.stderrLines, line)
		c.mu.Unlock()
	}
}

// StderrLines returns the captured stderr tail.
func (c *Command) StderrLines() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lines := make([]string, len(c.stderrLines))
	copy(lines, c.stderrLines)
	return lines
}

// Duration returns how long the last run took, or how long it has been running.
func (c *Command) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.started.IsZero():
		return 0
	case c.finished.IsZero():
		return time.Since(c.started)
	default:
		return c.finished.Sub(c.started)
	}
}

func isPathError(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr)
}
