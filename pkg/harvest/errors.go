package harvest

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig marks parameter combinations rejected before any network
// activity.
var ErrInvalidConfig = errors.New("invalid configuration")

// StreamError reports the failure of one pagination stream together with the
// boundary it was working when it died, so a caller can resume from there.
type StreamError struct {
	// Stream is the zero-based index of the failed stream.
	Stream int

	// After and Before are the stream's assigned time window (epoch
	// seconds); zero means unbounded.
	After  int64
	Before int64

	// Pivot is the last pagination boundary the stream reached.
	Pivot int64

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %d (window %d-%d, pivot %d): %v",
		e.Stream, e.After, e.Before, e.Pivot, e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error { return e.Err }
