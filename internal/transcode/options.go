// Package transcode compresses a video until it fits under a file-size ceiling.
//
// Each attempt probes the current candidate, derives a bitrate plan from its
// duration and the ceiling, and encodes with ffmpeg. An attempt that shrinks
// the file without reaching the ceiling feeds its output into the next one.
package transcode

import (
	"time"

	"github.com/jmylchreest/vidbrief/internal/config"
)

// Default tuning values.
const (
	DefaultMinTotalBitrate   = 11000.0
	DefaultMinAudioBitrate   = 32000.0
	DefaultMaxAudioBitrate   = 256000.0
	DefaultMinVideoBitrate   = 100000.0
	DefaultVideoBitrateFloor = 1000.0
	DefaultAudioShareDivisor = 10.0
	DefaultAudioBitrate      = 128000.0
	DefaultOverheadFactor    = 1.073741824
	DefaultMaxAttempts       = 5
	DefaultAttemptTimeout    = 30 * time.Minute
	DefaultVideoCodec        = "libx264"
	DefaultAudioCodec        = "aac"
	DefaultTwoPass           = true
)

// Options tunes the bitrate plan and the retry loop. Bitrates are bits per second.
type Options struct {
	MinTotalBitrate     float64
	MinAudioBitrate     float64
	MaxAudioBitrate     float64
	MinVideoBitrate     float64
	VideoBitrateFloor   float64
	AudioShareDivisor   float64
	DefaultAudioBitrate float64
	OverheadFactor      float64
	MaxAttempts         int
	// AttemptTimeout bounds every encode attempt. Zero disables it.
	AttemptTimeout time.Duration
	VideoCodec     string
	AudioCodec     string
	TwoPass        bool
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		MinTotalBitrate:     DefaultMinTotalBitrate,
		MinAudioBitrate:     DefaultMinAudioBitrate,
		MaxAudioBitrate:     DefaultMaxAudioBitrate,
		MinVideoBitrate:     DefaultMinVideoBitrate,
		VideoBitrateFloor:   DefaultVideoBitrateFloor,
		AudioShareDivisor:   DefaultAudioShareDivisor,
		DefaultAudioBitrate: DefaultAudioBitrate,
		OverheadFactor:      DefaultOverheadFactor,
		MaxAttempts:         DefaultMaxAttempts,
		AttemptTimeout:      DefaultAttemptTimeout,
		VideoCodec:          DefaultVideoCodec,
		AudioCodec:          DefaultAudioCodec,
		TwoPass:             DefaultTwoPass,
	}
}

// OptionsFromConfig builds Options from the transcode config section.
// Unset (zero) numeric fields keep their defaults.
func OptionsFromConfig(cfg config.TranscodeConfig) Options {
	opts := DefaultOptions()
	setFloat(&opts.MinTotalBitrate, cfg.MinTotalBitrate)
	setFloat(&opts.MinAudioBitrate, cfg.MinAudioBitrate)
	setFloat(&opts.MaxAudioBitrate, cfg.MaxAudioBitrate)
	setFloat(&opts.MinVideoBitrate, cfg.MinVideoBitrate)
	setFloat(&opts.VideoBitrateFloor, cfg.VideoBitrateFloor)
	setFloat(&opts.AudioShareDivisor, cfg.AudioShareDivisor)
	setFloat(&opts.DefaultAudioBitrate, cfg.DefaultAudioBitrate)
	setFloat(&opts.OverheadFactor, cfg.OverheadFactor)
	if cfg.MaxAttempts > 0 {
		opts.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.AttemptTimeout >= 0 {
		opts.AttemptTimeout = cfg.AttemptTimeout
	}
	if cfg.VideoCodec != "" {
		opts.VideoCodec = cfg.VideoCodec
	}
	if cfg.AudioCodec != "" {
		opts.AudioCodec = cfg.AudioCodec
	}
	opts.TwoPass = cfg.TwoPass
	return opts
}

func setFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}
