package pipeline

import (
	"github.com/jmylchreest/vidbrief/internal/config"
)

// Options controls one orchestrator.
type Options struct {
	// CeilingBytes is the upload size limit. Sources at or under it are not transcoded.
	CeilingBytes int64
	TwoPass      bool
	// FailurePolicy is config.FailurePolicySkip or config.FailurePolicyUploadOriginal.
	FailurePolicy      string
	MaxItemsPerRun     int
	MinFreeSpace       int64
	ScratchDir         string
	UploadPrefix       string
	Extensions         []string
	DeleteAfterProcess bool
}

// OptionsFromConfig maps the loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CeilingBytes:       cfg.Transcode.SizeCeiling.Bytes(),
		TwoPass:            cfg.Transcode.TwoPass,
		FailurePolicy:      cfg.Pipeline.OnTranscodeFailure,
		MaxItemsPerRun:     cfg.Pipeline.MaxItemsPerRun,
		MinFreeSpace:       cfg.Pipeline.MinFreeSpace.Bytes(),
		ScratchDir:         cfg.Storage.ScratchPath(),
		UploadPrefix:       cfg.Upload.Prefix,
		Extensions:         cfg.Inbox.Extensions,
		DeleteAfterProcess: cfg.Inbox.DeleteAfterProcess,
	}
}
