package pipeline

import (
	"errors"
	"fmt"
)

// Pipeline errors.
var (
	// ErrRunInProgress is returned when a run is triggered while another is active.
	ErrRunInProgress = errors.New("a pipeline run is already in progress")

	// ErrInsufficientSpace is returned when the scratch filesystem is too full to start.
	ErrInsufficientSpace = errors.New("insufficient free space in scratch directory")
)

// Item processing stages, recorded as the error kind of a failed item when
// the failure did not come from the transcoder.
const (
	StageFetch     = "fetch"
	StageTranscode = "transcode"
	StageUpload    = "upload"
	StageSummarize = "summarize"
	StageSave      = "save"
	StageDelete    = "delete"
)

// ItemError wraps an error with the item and stage it occurred in.
type ItemError struct {
	Item  string
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Item, e.Err)
}

// Unwrap returns the underlying error.
func (e *ItemError) Unwrap() error {
	return e.Err
}
