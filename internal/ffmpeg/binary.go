// Package ffmpeg wraps the ffmpeg and ffprobe binaries used to probe and re-encode media.
package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/vidbrief/internal/util"
)

// Environment variables consulted when no explicit binary path is configured.
const (
	FFmpegEnvVar  = "VIDBRIEF_FFMPEG_BINARY"
	FFprobeEnvVar = "VIDBRIEF_FFPROBE_BINARY"
)

// ErrBinaryNotFound is returned when ffmpeg or ffprobe cannot be located or executed.
var ErrBinaryNotFound = errors.New("ffmpeg binary not found")

// BinaryInfo describes the detected ffmpeg installation.
type BinaryInfo struct {
	FFmpegPath    string   `json:"ffmpeg_path"`
	FFprobePath   string   `json:"ffprobe_path"`
	Version       string   `json:"version"`
	MajorVersion  int      `json:"major_version"`
	MinorVersion  int      `json:"minor_version"`
	Configuration string   `json:"configuration,omitempty"`
	Encoders      []string `json:"encoders,omitempty"`
}

// Detector locates ffmpeg and ffprobe and caches what it finds.
type Detector struct {
	ffmpegPath  string
	ffprobePath string

	mu           sync.RWMutex
	info         *BinaryInfo
	lastDetected time.Time
	cacheTTL     time.Duration
}

// NewDetector creates a detector. Empty paths fall back to the environment, ./name and PATH.
func NewDetector(ffmpegPath, ffprobePath string) *Detector {
	return &Detector{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		cacheTTL:    5 * time.Minute,
	}
}

// WithCacheTTL sets how long a detection result is reused.
func (d *Detector) WithCacheTTL(ttl time.Duration) *Detector {
	d.cacheTTL = ttl
	return d
}

// Detect finds both binaries and reads the ffmpeg version and encoder list.
// Both binaries are required: the transcoder cannot plan without probing.
func (d *Detector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		info := d.info
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	info, err := d.detect(ctx)
	if err != nil {
		return nil, err
	}

	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

// Clear drops the cached detection result.
func (d *Detector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = nil
}

func (d *Detector) detect(ctx context.Context) (*BinaryInfo, error) {
	ffmpegPath, err := util.FindBinary("ffmpeg", d.ffmpegPath, FFmpegEnvVar)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBinaryNotFound, err)
	}
	ffprobePath, err := util.FindBinary("ffprobe", d.ffprobePath, FFprobeEnvVar)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBinaryNotFound, err)
	}

	out, err := exec.CommandContext(ctx, ffmpegPath, "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("getting ffmpeg version: %w", err)
	}
	info, err := parseVersionOutput(string(out))
	if err != nil {
		return nil, err
	}
	info.FFmpegPath = ffmpegPath
	info.FFprobePath = ffprobePath

	// The encoder list is informational; an ffmpeg that refuses -encoders still works.
	if out, err := exec.CommandContext(ctx, ffmpegPath, "-encoders", "-hide_banner").Output(); err == nil {
		info.Encoders = parseEncoderList(string(out))
	}

	return info, nil
}

var versionPattern = regexp.MustCompile(`^n?(\d+)\.(\d+)`)

// parseVersionOutput reads the "ffmpeg version" and "configuration:" lines of `ffmpeg -version`.
func parseVersionOutput(output string) (*BinaryInfo, error) {
	info := &BinaryInfo{}
	for line := range strings.SplitSeq(output, "\n") {
		switch {
		case strings.HasPrefix(line, "ffmpeg version"):
			parts := strings.Fields(line)
			if len(parts) < 3 {
				continue
			}
			info.Version = parts[2]
			if m := versionPattern.FindStringSubmatch(parts[2]); m != nil {
				info.MajorVersion, _ = strconv.Atoi(m[1])
				info.MinorVersion, _ = strconv.Atoi(m[2])
			}
		case strings.HasPrefix(line, "configuration:"):
			info.Configuration = strings.TrimSpace(strings.TrimPrefix(line, "configuration:"))
		}
	}
	if info.Version == "" {
		return nil, fmt.Errorf("failed to parse ffmpeg version")
	}
	return info, nil
}

// parseEncoderList reads the names out of `ffmpeg -encoders`.
// Lines after the "------" separator look like " V....D libx264  description".
func parseEncoderList(output string) []string {
	var encoders []string
	inList := false
	for line := range strings.SplitSeq(output, "\n") {
		if strings.Contains(line, "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		if kind := fields[0][0]; kind != 'V' && kind != 'A' && kind != 'S' {
			continue
		}
		encoders = append(encoders, fields[1])
	}
	return encoders
}

// HasEncoder returns true if the encoder is available.
// An empty encoder list is treated as unknown, not as missing.
func (info *BinaryInfo) HasEncoder(name string) bool {
	return len(info.Encoders) == 0 || slices.Contains(info.Encoders, name)
}

// JSON returns the binary info as an indented JSON string.
func (info *BinaryInfo) JSON() string {
	data, _ := json.MarshalIndent(info, "", "  ")
	return string(data)
}
