package transcode

import (
	"errors"
	"fmt"
)

// Terminal failure kinds for a single Transcode call.
var (
	// ErrProbe means the media could not be inspected or reports no duration.
	ErrProbe = errors.New("probe failed")
	// ErrInfeasibleTarget means the ceiling leaves no usable bitrate for the duration.
	ErrInfeasibleTarget = errors.New("size ceiling is infeasible for this duration")
	// ErrNonConvergent means an attempt did not shrink the file, or the attempt limit was hit.
	ErrNonConvergent = errors.New("compression did not converge")
	// ErrToolUnavailable means ffmpeg or ffprobe is not installed.
	ErrToolUnavailable = errors.New("ffmpeg tooling unavailable")
	// ErrTimeout means an encode attempt ran past its deadline.
	ErrTimeout = errors.New("encode attempt timed out")
	// ErrEncode means ffmpeg ran but exited with an error.
	ErrEncode = errors.New("encode failed")
)

// Error is a failed Transcode call. errors.Is matches both Kind and the wrapped cause.
type Error struct {
	Kind    error
	Attempt int
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transcode attempt %d: %v", e.Attempt, e.Kind)
	}
	return fmt.Sprintf("transcode attempt %d: %v: %v", e.Attempt, e.Kind, e.Err)
}

// Unwrap exposes the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName returns a short stable name for err's failure kind, for storage
// and metrics. It returns "" for nil and "unknown" for unrecognised errors.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProbe):
		return "probe"
	case errors.Is(err, ErrInfeasibleTarget):
		return "infeasible_target"
	case errors.Is(err, ErrNonConvergent):
		return "non_convergent"
	case errors.Is(err, ErrToolUnavailable):
		return "tool_unavailable"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrEncode):
		return "encode"
	default:
		return "unknown"
	}
}
