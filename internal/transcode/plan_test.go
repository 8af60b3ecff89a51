package transcode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/ffmpeg"
)

func probeWithAudio(duration, audio float64) *ffmpeg.MediaProbe {
	return &ffmpeg.MediaProbe{
		Duration:          duration,
		HasVideo:          true,
		HasAudio:          true,
		AudioBitrate:      audio,
		AudioBitrateKnown: true,
	}
}

func TestComputePlan_ClampsLoudAudio(t *testing.T) {
	opts := DefaultOptions()
	plan, err := ComputePlan(probeWithAudio(120, 320000), 2000, opts)
	require.NoError(t, err)

	expectedTotal := 2000.0 * 1024 * 8 / (opts.OverheadFactor * 120)
	assert.InDelta(t, expectedTotal, plan.TotalBitrate, 1e-6)
	assert.Less(t, plan.AudioBitrate, 320000.0, "audio should be clamped down")
	assert.LessOrEqual(t, plan.AudioBitrate, opts.MaxAudioBitrate)
	assert.GreaterOrEqual(t, plan.AudioBitrate, opts.MinAudioBitrate)
	assert.Equal(t, plan.TotalBitrate-plan.AudioBitrate, plan.VideoBitrate)
}

func TestComputePlan_Invariants(t *testing.T) {
	opts := DefaultOptions()
	durations := []float64{1, 12.5, 120, 600, 3600}
	ceilings := []float64{50, 500, 2000, 9728, 100000, 2000000}
	audios := []float64{0, 24000, 64000, 128000, 320000, 640000}

	for _, duration := range durations {
		for _, ceiling := range ceilings {
			for _, audio := range audios {
				plan, err := ComputePlan(probeWithAudio(duration, audio), ceiling, opts)
				if err != nil {
					assert.ErrorIs(t, err, ErrInfeasibleTarget)
					continue
				}
				assert.GreaterOrEqual(t, plan.TotalBitrate, opts.MinTotalBitrate)
				assert.Equal(t, plan.TotalBitrate-plan.AudioBitrate, plan.VideoBitrate)
				assert.GreaterOrEqual(t, plan.VideoBitrate, opts.VideoBitrateFloor)
				if plan.TotalBitrate > opts.MinAudioBitrate {
					assert.GreaterOrEqual(t, plan.AudioBitrate, opts.MinAudioBitrate,
						"duration=%v ceiling=%v audio=%v", duration, ceiling, audio)
					assert.LessOrEqual(t, plan.AudioBitrate, opts.MaxAudioBitrate,
						"duration=%v ceiling=%v audio=%v", duration, ceiling, audio)
				}
			}
		}
	}
}

func TestTargetTotalBitrate_Monotonic(t *testing.T) {
	opts := DefaultOptions()
	for _, duration := range []float64{5, 60, 900} {
		prev := TargetTotalBitrate(1_000_000, duration, opts)
		for ceiling := 1_000_000.0; ceiling >= 1; ceiling /= 1.7 {
			current := TargetTotalBitrate(ceiling, duration, opts)
			assert.LessOrEqual(t, current, prev)
			prev = current
		}
	}
}

func TestComputePlan_Infeasible(t *testing.T) {
	tests := []struct {
		name    string
		probe   *ffmpeg.MediaProbe
		ceiling float64
		opts    func(*Options)
	}{
		{name: "ten minutes into one kilobyte", probe: probeWithAudio(600, 128000), ceiling: 1},
		{name: "zero ceiling", probe: probeWithAudio(10, 128000), ceiling: 0},
		{
			name:    "no video budget left",
			probe:   probeWithAudio(60, 128000),
			ceiling: 100,
			opts:    func(o *Options) { o.VideoBitrateFloor = 50000 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			_, err := ComputePlan(tt.probe, tt.ceiling, opts)
			assert.ErrorIs(t, err, ErrInfeasibleTarget)
		})
	}
}

func TestComputePlan_ProbeWithoutDuration(t *testing.T) {
	_, err := ComputePlan(&ffmpeg.MediaProbe{Duration: 0}, 1000, DefaultOptions())
	assert.ErrorIs(t, err, ErrProbe)

	_, err = ComputePlan(nil, 1000, DefaultOptions())
	assert.ErrorIs(t, err, ErrProbe)
}

func TestComputePlan_AudioSources(t *testing.T) {
	opts := DefaultOptions()

	t.Run("unknown bitrate uses default", func(t *testing.T) {
		probe := &ffmpeg.MediaProbe{Duration: 60, HasAudio: true}
		plan, err := ComputePlan(probe, 100000, opts)
		require.NoError(t, err)
		assert.Equal(t, opts.DefaultAudioBitrate, plan.AudioBitrate)
	})

	t.Run("no audio stream drops audio", func(t *testing.T) {
		probe := &ffmpeg.MediaProbe{Duration: 60, HasVideo: true}
		plan, err := ComputePlan(probe, 5000, opts)
		require.NoError(t, err)
		assert.True(t, plan.NoAudio)
		assert.Zero(t, plan.AudioBitrate)
		assert.Equal(t, plan.TotalBitrate, plan.VideoBitrate)
	})

	t.Run("high bitrate capped at maximum", func(t *testing.T) {
		plan, err := ComputePlan(probeWithAudio(60, 512000), 500000, opts)
		require.NoError(t, err)
		assert.Equal(t, opts.MaxAudioBitrate, plan.AudioBitrate)
	})

	t.Run("quiet audio raised to minimum", func(t *testing.T) {
		plan, err := ComputePlan(probeWithAudio(60, 16000), 50000, opts)
		require.NoError(t, err)
		assert.Equal(t, opts.MinAudioBitrate, plan.AudioBitrate)
	})

	t.Run("minimum not applied when it would exceed the budget", func(t *testing.T) {
		plan, err := ComputePlan(probeWithAudio(600, 128000), 1000, opts)
		require.NoError(t, err)
		assert.Less(t, plan.TotalBitrate, opts.MinAudioBitrate)
		assert.InDelta(t, plan.TotalBitrate/opts.AudioShareDivisor, plan.AudioBitrate, 1e-9)
	})
}

func TestRecommendedMinKB(t *testing.T) {
	opts := DefaultOptions()
	assert.InDelta(t, 10380.9, RecommendedMinKB(600, opts), 0.1)

	plan, err := ComputePlan(probeWithAudio(600, 128000), 9728, opts)
	require.NoError(t, err)
	assert.True(t, plan.BelowRecommended)

	plan, err = ComputePlan(probeWithAudio(60, 128000), 9728, opts)
	require.NoError(t, err)
	assert.False(t, plan.BelowRecommended)
}

func TestOptionsFromConfig(t *testing.T) {
	t.Run("zero values keep defaults", func(t *testing.T) {
		opts := OptionsFromConfig(config.TranscodeConfig{TwoPass: true, AttemptTimeout: time.Minute})
		defaults := DefaultOptions()
		assert.Equal(t, defaults.MinTotalBitrate, opts.MinTotalBitrate)
		assert.Equal(t, defaults.OverheadFactor, opts.OverheadFactor)
		assert.Equal(t, defaults.MaxAttempts, opts.MaxAttempts)
		assert.Equal(t, defaults.VideoCodec, opts.VideoCodec)
		assert.Equal(t, time.Minute, opts.AttemptTimeout)
		assert.True(t, opts.TwoPass)
	})

	t.Run("configured values override", func(t *testing.T) {
		opts := OptionsFromConfig(config.TranscodeConfig{
			OverheadFactor:  1.025,
			MaxAudioBitrate: 192000,
			MaxAttempts:     3,
			VideoCodec:      "libx265",
		})
		assert.Equal(t, 1.025, opts.OverheadFactor)
		assert.Equal(t, 192000.0, opts.MaxAudioBitrate)
		assert.Equal(t, 3, opts.MaxAttempts)
		assert.Equal(t, "libx265", opts.VideoCodec)
		assert.Equal(t, DefaultAudioCodec, opts.AudioCodec)
		assert.False(t, opts.TwoPass)
		assert.Zero(t, opts.AttemptTimeout)
	})
}
