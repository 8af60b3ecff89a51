package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNoDuration is returned when the probed media has no usable duration.
var ErrNoDuration = errors.New("media has no duration")

// ProbeResult contains the ffprobe output fields vidbrief reads.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	Filename   string            `json:"filename"`
	NumStreams int               `json:"nb_streams"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"` // video, audio, subtitle, data
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	SampleRate string `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Duration   string `json:"duration,omitempty"`
	BitRate    string `json:"bit_rate,omitempty"`
}

// MediaProbe is the reduced view of a probe the bitrate planner needs.
// Bitrates are in bits per second; Duration is in seconds.
type MediaProbe struct {
	Path              string  `json:"path"`
	Duration          float64 `json:"duration"`
	Size              int64   `json:"size,omitempty"`
	FormatBitrate     float64 `json:"format_bitrate,omitempty"`
	HasVideo          bool    `json:"has_video"`
	VideoCodec        string  `json:"video_codec,omitempty"`
	Width             int     `json:"width,omitempty"`
	Height            int     `json:"height,omitempty"`
	HasAudio          bool    `json:"has_audio"`
	AudioCodec        string  `json:"audio_codec,omitempty"`
	AudioBitrate      float64 `json:"audio_bitrate,omitempty"`
	AudioBitrateKnown bool    `json:"audio_bitrate_known"`
}

// Prober runs ffprobe.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a new prober for the given ffprobe binary.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	if timeout > 0 {
		p.timeout = timeout
	}
	return p
}

// Probe runs ffprobe against a local file and returns the parsed JSON.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, exec.ErrDot) || isPathError(err) {
			return nil, fmt.Errorf("%w: %w", ErrBinaryNotFound, err)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffprobe failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	return &result, nil
}

// ProbeMedia probes a file and reduces the result to a MediaProbe.
func (p *Prober) ProbeMedia(ctx context.Context, path string) (*MediaProbe, error) {
	result, err := p.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	probe, err := result.MediaProbe()
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", path, err)
	}
	probe.Path = path
	return probe, nil
}

// MediaProbe reduces a probe result using the first video and first audio stream.
// The container duration is used, falling back to the longest stream duration.
func (r *ProbeResult) MediaProbe() (*MediaProbe, error) {
	duration := parseFloat(r.Format.Duration)
	if duration <= 0 {
		for _, s := range r.Streams {
			duration = max(duration, parseFloat(s.Duration))
		}
	}
	if duration <= 0 {
		return nil, ErrNoDuration
	}

	probe := &MediaProbe{
		Duration:      duration,
		FormatBitrate: parseFloat(r.Format.BitRate),
	}
	if size, err := strconv.ParseInt(r.Format.Size, 10, 64); err == nil {
		probe.Size = size
	}

	if v := r.VideoStream(); v != nil {
		probe.HasVideo = true
		probe.VideoCodec = v.CodecName
		probe.Width = v.Width
		probe.Height = v.Height
	}

	if a := r.AudioStream(); a != nil {
		probe.HasAudio = true
		probe.AudioCodec = a.CodecName
		if br := parseFloat(a.BitRate); br > 0 {
			probe.AudioBitrate = br
			probe.AudioBitrateKnown = true
		}
	}

	return probe, nil
}

// VideoStream returns the first video stream, or nil.
func (r *ProbeResult) VideoStream() *ProbeStream {
	return r.firstStream("video")
}

// AudioStream returns the first audio stream, or nil.
func (r *ProbeResult) AudioStream() *ProbeStream {
	return r.firstStream("audio")
}

func (r *ProbeResult) firstStream(codecType string) *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == codecType {
			return &r.Streams[i]
		}
	}
	return nil
}

func parseFloat(s string) float64 {
	if s == "" || s == "N/A" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
