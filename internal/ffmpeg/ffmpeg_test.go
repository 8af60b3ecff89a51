package ffmpeg

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not installed.
func skipIfNoFFmpeg(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	return path
}

// skipIfNoFFprobe skips the test if ffprobe is not installed.
func skipIfNoFFprobe(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("ffprobe")
	if err != nil {
		t.Skip("ffprobe not installed")
	}
	return path
}

// makeTestVideo renders a short clip with lavfi sources, skipping when ffmpeg cannot.
func makeTestVideo(t *testing.T, ffmpegPath string, withAudio bool) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "clip.mp4")
	args := []string{"-y", "-f", "lavfi", "-i", "testsrc=duration=2:size=320x240:rate=25"}
	if withAudio {
		args = append(args, "-f", "lavfi", "-i", "sine=duration=2:frequency=440:sample_rate=48000", "-c:a", "aac", "-b:a", "96k")
	}
	args = append(args, "-c:v", "libx264", "-preset", "ultrafast", "-shortest", out)
	if err := exec.Command(ffmpegPath, args...).Run(); err != nil {
		t.Skipf("could not create test video: %v", err)
	}
	return out
}

func TestParseVersionOutput(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		version string
		major   int
		minor   int
		wantErr bool
	}{
		{"release", "ffmpeg version 6.1.1 Copyright (c) 2000-2023\nconfiguration: --enable-gpl\n", "6.1.1", 6, 1, false},
		{"git build", "ffmpeg version n7.0-2-gabc Copyright\n", "n7.0-2-gabc", 7, 0, false},
		{"static nightly", "ffmpeg version N-112345-g1234 Copyright\n", "N-112345-g1234", 0, 0, false},
		{"garbage", "not ffmpeg\n", "", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := parseVersionOutput(tt.output)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.version, info.Version)
			assert.Equal(t, tt.major, info.MajorVersion)
			assert.Equal(t, tt.minor, info.MinorVersion)
		})
	}
}

func TestParseEncoderList(t *testing.T) {
	output := `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC
 A....D aac                  AAC (Advanced Audio Coding)
 S..... srt                  SubRip subtitle
`
	assert.Equal(t, []string{"libx264", "aac", "srt"}, parseEncoderList(output))
}

func TestBinaryInfo_HasEncoder(t *testing.T) {
	info := &BinaryInfo{Encoders: []string{"libx264", "aac"}}
	assert.True(t, info.HasEncoder("libx264"))
	assert.False(t, info.HasEncoder("libx265"))

	unknown := &BinaryInfo{}
	assert.True(t, unknown.HasEncoder("libx264"))
}

func TestDetector_MissingBinary(t *testing.T) {
	d := NewDetector(filepath.Join(t.TempDir(), "ffmpeg"), "")
	_, err := d.Detect(context.Background())
	assert.ErrorIs(t, err, ErrBinaryNotFound)
}

func TestDetector_Detect(t *testing.T) {
	skipIfNoFFmpeg(t)
	skipIfNoFFprobe(t)

	d := NewDetector("", "").WithCacheTTL(time.Hour)
	info, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, info.FFmpegPath)
	assert.NotEmpty(t, info.FFprobePath)
	assert.NotEmpty(t, info.Version)

	cached, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Same(t, info, cached)

	d.Clear()
	fresh, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, info, fresh)
}

func TestProbeResult_MediaProbe(t *testing.T) {
	tests := []struct {
		name    string
		result  ProbeResult
		want    MediaProbe
		wantErr error
	}{
		{
			name: "video with audio",
			result: ProbeResult{
				Format: ProbeFormat{Duration: "120.5", Size: "15000000", BitRate: "995850"},
				Streams: []ProbeStream{
					{Index: 0, CodecType: "video", CodecName: "h264", Width: 1920, Height: 1080},
					{Index: 1, CodecType: "audio", CodecName: "aac", BitRate: "320000"},
					{Index: 2, CodecType: "audio", CodecName: "ac3", BitRate: "640000"},
				},
			},
			want: MediaProbe{
				Duration: 120.5, Size: 15000000, FormatBitrate: 995850,
				HasVideo: true, VideoCodec: "h264", Width: 1920, Height: 1080,
				HasAudio: true, AudioCodec: "aac", AudioBitrate: 320000, AudioBitrateKnown: true,
			},
		},
		{
			name: "audio without bit_rate",
			result: ProbeResult{
				Format:  ProbeFormat{Duration: "10"},
				Streams: []ProbeStream{{CodecType: "audio", CodecName: "opus"}},
			},
			want: MediaProbe{Duration: 10, HasAudio: true, AudioCodec: "opus"},
		},
		{
			name: "duration from stream when format lacks it",
			result: ProbeResult{
				Format:  ProbeFormat{Duration: "N/A"},
				Streams: []ProbeStream{{CodecType: "video", CodecName: "vp9", Duration: "42.0"}},
			},
			want: MediaProbe{Duration: 42, HasVideo: true, VideoCodec: "vp9"},
		},
		{
			name:    "no duration",
			result:  ProbeResult{Streams: []ProbeStream{{CodecType: "video"}}},
			wantErr: ErrNoDuration,
		},
		{
			name:    "zero duration",
			result:  ProbeResult{Format: ProbeFormat{Duration: "0.000"}},
			wantErr: ErrNoDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe, err := tt.result.MediaProbe()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *probe)
		})
	}
}

func TestProber_MissingBinary(t *testing.T) {
	p := NewProber(filepath.Join(t.TempDir(), "ffprobe"))
	_, err := p.ProbeMedia(context.Background(), "clip.mp4")
	assert.ErrorIs(t, err, ErrBinaryNotFound)
}

func TestCommandBuilder_Build(t *testing.T) {
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").
		HideBanner().
		Overwrite().
		Input("in.mov").
		VideoCodec("libx264").
		VideoBitrate(850000).
		AudioCodec("aac").
		AudioBitrate(64000).
		Output("out.mp4").
		Build()

	assert.Equal(t, []string{
		"-loglevel", "error", "-hide_banner", "-y",
		"-i", "in.mov",
		"-c:v", "libx264", "-b:v", "850000",
		"-c:a", "aac", "-b:a", "64000",
		"out.mp4",
	}, cmd.Args)
	assert.Equal(t, "/usr/bin/ffmpeg -loglevel error -hide_banner -y -i in.mov -c:v libx264 -b:v 850000 -c:a aac -b:a 64000 out.mp4", cmd.String())
}

func TestEncoder_BuildCommand(t *testing.T) {
	enc := NewEncoder("ffmpeg")
	base := EncodeJob{
		Input:        "in.mov",
		Output:       "out.mp4",
		VideoCodec:   "libx264",
		VideoBitrate: 500000,
		AudioCodec:   "aac",
		AudioBitrate: 48000,
	}

	t.Run("single pass", func(t *testing.T) {
		cmd := enc.BuildCommand(base)
		assert.Equal(t, []string{
			"-loglevel", "error", "-hide_banner", "-y", "-i", "in.mov",
			"-c:v", "libx264", "-b:v", "500000",
			"-c:a", "aac", "-b:a", "48000",
			"out.mp4",
		}, cmd.Args)
	})

	t.Run("analysis pass", func(t *testing.T) {
		job := base
		job.Pass = 1
		job.PassLogFile = "/scratch/passlog"
		job.Output = os.DevNull
		job.Format = "mp4"
		cmd := enc.BuildCommand(job)
		assert.Equal(t, []string{
			"-loglevel", "error", "-hide_banner", "-y", "-i", "in.mov",
			"-c:v", "libx264", "-b:v", "500000",
			"-pass", "1", "-passlogfile", "/scratch/passlog",
			"-an",
			"-f", "mp4",
			os.DevNull,
		}, cmd.Args)
	})

	t.Run("final pass", func(t *testing.T) {
		job := base
		job.Pass = 2
		job.PassLogFile = "/scratch/passlog"
		cmd := enc.BuildCommand(job)
		assert.Equal(t, []string{
			"-loglevel", "error", "-hide_banner", "-y", "-i", "in.mov",
			"-c:v", "libx264", "-b:v", "500000",
			"-pass", "2", "-passlogfile", "/scratch/passlog",
			"-c:a", "aac", "-b:a", "48000",
			"out.mp4",
		}, cmd.Args)
	})

	t.Run("no audio", func(t *testing.T) {
		job := base
		job.NoAudio = true
		cmd := enc.BuildCommand(job)
		assert.Contains(t, cmd.Args, "-an")
		assert.NotContains(t, cmd.Args, "-c:a")
	})
}

func TestEncoder_RejectsIncompleteJob(t *testing.T) {
	err := NewEncoder("ffmpeg").Encode(context.Background(), EncodeJob{Input: "in.mov"})
	assert.Error(t, err)
}

func TestCommand_Run(t *testing.T) {
	t.Run("reports stderr tail on failure", func(t *testing.T) {
		cmd := &Command{Binary: "sh", Args: []string{"-c", "echo first >&2; echo 'Invalid data found' >&2; exit 3"}}
		err := cmd.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid data found")
		assert.Equal(t, []string{"first", "Invalid data found"}, cmd.StderrLines())
		assert.Greater(t, cmd.Duration(), time.Duration(0))
	})

	t.Run("keeps only the last lines", func(t *testing.T) {
		cmd := &Command{Binary: "sh", Args: []string{"-c", "for i in $(seq 1 50); do echo line$i >&2; done"}}
		require.NoError(t, cmd.Run(context.Background()))
		lines := cmd.StderrLines()
		assert.Len(t, lines, stderrTailLines)
		assert.Equal(t, "line50", lines[len(lines)-1])
	})

	t.Run("missing binary", func(t *testing.T) {
		cmd := &Command{Binary: filepath.Join(t.TempDir(), "ffmpeg")}
		err := cmd.Run(context.Background())
		assert.ErrorIs(t, err, ErrBinaryNotFound)
	})

	t.Run("cancellation kills the process", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		cmd := &Command{Binary: "sleep", Args: []string{"5"}}
		start := time.Now()
		err := cmd.Run(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 4*time.Second)
	})
}

func TestIntegration_ProbeAndEncode(t *testing.T) {
	ffmpegPath := skipIfNoFFmpeg(t)
	ffprobePath := skipIfNoFFprobe(t)
	ctx := context.Background()

	clip := makeTestVideo(t, ffmpegPath, true)

	probe, err := NewProber(ffprobePath).ProbeMedia(ctx, clip)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, probe.Duration, 0.2)
	assert.True(t, probe.HasVideo)
	assert.True(t, probe.HasAudio)
	assert.Equal(t, "aac", probe.AudioCodec)

	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp4")
	enc := NewEncoder(ffmpegPath)
	passlog := filepath.Join(dir, "passlog")

	require.NoError(t, enc.Encode(ctx, EncodeJob{
		Input: clip, Output: os.DevNull, Format: "mp4",
		VideoCodec: "libx264", VideoBitrate: 200000,
		Pass: 1, PassLogFile: passlog,
	}))
	require.NoError(t, enc.Encode(ctx, EncodeJob{
		Input: clip, Output: out,
		VideoCodec: "libx264", VideoBitrate: 200000,
		AudioCodec: "aac", AudioBitrate: 32000,
		Pass: 2, PassLogFile: passlog,
	}))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
