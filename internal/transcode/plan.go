package transcode

import (
	"fmt"

	"github.com/jmylchreest/vidbrief/internal/ffmpeg"
)

// BitratePlan is the encode target for one attempt. Bitrates are bits per second.
type BitratePlan struct {
	Duration         float64 `json:"duration"`
	CeilingKB        float64 `json:"ceiling_kb"`
	TotalBitrate     float64 `json:"total_bitrate"`
	AudioBitrate     float64 `json:"audio_bitrate"`
	VideoBitrate     float64 `json:"video_bitrate"`
	RecommendedMinKB float64 `json:"recommended_min_kb"`
	BelowRecommended bool    `json:"below_recommended"`
	NoAudio          bool    `json:"no_audio"`
}

// TargetTotalBitrate is the combined bitrate that fills ceilingKB over duration
// seconds once container overhead is accounted for.
func TargetTotalBitrate(ceilingKB, duration float64, opts Options) float64 {
	return ceilingKB * 1024 * 8 / (opts.OverheadFactor * duration)
}

// RecommendedMinKB is the smallest ceiling that still affords the minimum
// audio and video bitrates for duration seconds.
func RecommendedMinKB(duration float64, opts Options) float64 {
	return (opts.MinAudioBitrate + opts.MinVideoBitrate) * opts.OverheadFactor * duration / 8192
}

// ComputePlan splits the ceiling's bitrate budget between audio and video.
// It returns ErrProbe for a probe without a positive duration and
// ErrInfeasibleTarget when the budget is below the configured floors.
func ComputePlan(probe *ffmpeg.MediaProbe, ceilingKB float64, opts Options) (BitratePlan, error) {
	if probe == nil || probe.Duration <= 0 {
		return BitratePlan{}, fmt.Errorf("%w: missing or non-positive duration", ErrProbe)
	}
	if ceilingKB <= 0 {
		return BitratePlan{}, fmt.Errorf("%w: ceiling must be positive, got %.2fKB", ErrInfeasibleTarget, ceilingKB)
	}

	plan := BitratePlan{
		Duration:         probe.Duration,
		CeilingKB:        ceilingKB,
		TotalBitrate:     TargetTotalBitrate(ceilingKB, probe.Duration, opts),
		RecommendedMinKB: RecommendedMinKB(probe.Duration, opts),
	}
	plan.BelowRecommended = ceilingKB < plan.RecommendedMinKB

	if plan.TotalBitrate < opts.MinTotalBitrate {
		return plan, fmt.Errorf("%w: target bitrate %.0fbps is below %.0fbps",
			ErrInfeasibleTarget, plan.TotalBitrate, opts.MinTotalBitrate)
	}

	if probe.HasAudio {
		plan.AudioBitrate = audioBitrate(probe, plan.TotalBitrate, opts)
	} else {
		plan.NoAudio = true
	}

	plan.VideoBitrate = plan.TotalBitrate - plan.AudioBitrate
	if plan.VideoBitrate < opts.VideoBitrateFloor {
		return plan, fmt.Errorf("%w: video bitrate %.0fbps is below %.0fbps",
			ErrInfeasibleTarget, plan.VideoBitrate, opts.VideoBitrateFloor)
	}
	return plan, nil
}

func audioBitrate(probe *ffmpeg.MediaProbe, total float64, opts Options) float64 {
	audio := opts.DefaultAudioBitrate
	if probe.AudioBitrateKnown {
		audio = probe.AudioBitrate
	}

	// Audio may take at most 1/AudioShareDivisor of the budget.
	if opts.AudioShareDivisor*audio > total {
		audio = total / opts.AudioShareDivisor
	}

	if audio < opts.MinAudioBitrate && opts.MinAudioBitrate < total {
		audio = opts.MinAudioBitrate
	} else if audio > opts.MaxAudioBitrate {
		audio = opts.MaxAudioBitrate
	}
	return audio
}
