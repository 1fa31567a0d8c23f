package segmenter

import "time"

// State is the lifecycle state of one candidate utterance
type State int

const (
	StateIdle State = iota
	StateActive
	StateFinalizing
	StateCancelled
	StateCompleted
)

// String returns the lowercase state name used in logs and APIs
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateFinalizing:
		return "finalizing"
	case StateCancelled:
		return "cancelled"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Segment accumulates audio for one utterance from speech start to finalize/cancel.
// The segmenter owns it exclusively until the samples are handed off.
type Segment struct {
	ID               uint64
	State            State
	Samples          []int16
	SpeechStartTime  time.Time
	LastActivityTime time.Time
}

// SegmentRef is all the segmenter keeps of a segment once its audio is gone
type SegmentRef struct {
	ID    uint64 `json:"id"`
	State State  `json:"state"`
}

// MarshalText renders the state by name in JSON stats
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Duration returns the elapsed time since speech start at now
func (s *Segment) Duration(now time.Time) time.Duration {
	return now.Sub(s.SpeechStartTime)
}

// EventType identifies a segmenter event
type EventType int

const (
	EventStarted EventType = iota + 1
	EventPartial
	EventFinalized
	EventCancelled
)

// String returns the event name used in logs and on the wire
func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "segment_started"
	case EventPartial:
		return "segment_partial"
	case EventFinalized:
		return "segment_finalized"
	case EventCancelled:
		return "segment_cancelled"
	default:
		return "unknown"
	}
}

// Event is emitted by Tick when a segment boundary or partial window occurs.
// Samples carries the trailing window for partials and the full payload for
// finalized segments; it is nil otherwise.
type Event struct {
	Type      EventType
	SegmentID uint64
	Samples   []int16
	StartTime time.Time
	Time      time.Time
	Forced    bool
}
