package pipeline

import (
	"errors"
	"fmt"
)

// Reason is a machine-checkable failure code for a segment
type Reason string

const (
	ReasonTranscriptionFailed Reason = "transcription_failed"
	ReasonFastPassFailed      Reason = "fast_pass_failed"
	ReasonSessionClosed       Reason = "session_closed"
	ReasonSessionChanged      Reason = "session_changed"
)

var (
	// ErrNoSpeech means the transcription was empty; no translation is attempted
	ErrNoSpeech = errors.New("no speech detected")

	// ErrEmptyTranslation means a model returned no text
	ErrEmptyTranslation = errors.New("model returned an empty translation")

	// ErrStaleSession means the conversation was reset or ended while the segment was in flight
	ErrStaleSession = errors.New("conversation session changed")
)

// SegmentError is the explicit failure result for one segment
type SegmentError struct {
	SegmentID uint64
	Reason    Reason
	Err       error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d: %s: %v", e.SegmentID, e.Reason, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

// Stale reports whether the failure only reflects a conversation that moved on
func (e *SegmentError) Stale() bool {
	return e.Reason == ReasonSessionClosed || e.Reason == ReasonSessionChanged
}

// ReasonOf extracts the failure reason from err, or "" when err is not a SegmentError
func ReasonOf(err error) Reason {
	var segErr *SegmentError
	if errors.As(err, &segErr) {
		return segErr.Reason
	}
	return ""
}
