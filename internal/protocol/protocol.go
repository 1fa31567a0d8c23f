package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/skypro1111/interp-service/internal/pipeline"
)

// Control message types sent by the client as websocket text messages
const (
	ControlReset = "reset"
	ControlEnd   = "end"
	ControlFlush = "flush"
	ControlEdit  = "edit"
)

// Event types sent to the client as websocket text messages
const (
	EventSessionStarted         = "session_started"
	EventSegmentStarted         = "segment_started"
	EventSegmentPartial         = "segment_partial"
	EventSegmentCancelled       = "segment_cancelled"
	EventSegmentFailed          = "segment_failed"
	EventTranslationProvisional = "translation_provisional"
	EventTranslationFinal       = "translation_final"
	EventQualityPassFailed      = "quality_pass_failed"
	EventTranslationEdited      = "translation_edited"
	EventConversationReset      = "conversation_reset"
	EventConversationEnded      = "conversation_ended"
	EventError                  = "error"
)

// MaxControlSize is the largest control message accepted
const MaxControlSize = 4096

// Control is a command from the client
type Control struct {
	Type      string `json:"type"`
	SegmentID uint64 `json:"segment_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Event is a message to the client. Only the fields relevant to Type are set.
type Event struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	SegmentID uint64           `json:"segment_id,omitempty"`
	Text      string           `json:"text,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Error     string           `json:"error,omitempty"`
	Record    *pipeline.Record `json:"record,omitempty"`
	Time      time.Time        `json:"time"`
}

// ParseControl decodes and validates a control message
func ParseControl(data []byte) (*Control, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty control message")
	}
	if len(data) > MaxControlSize {
		return nil, fmt.Errorf("control message too large: %d bytes (max %d)", len(data), MaxControlSize)
	}

	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse control message: %w", err)
	}
	if err := ValidateControl(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateControl checks that the command is known and carries its arguments
func ValidateControl(c *Control) error {
	switch c.Type {
	case ControlReset, ControlEnd, ControlFlush:
		return nil
	case ControlEdit:
		if c.SegmentID == 0 {
			return fmt.Errorf("edit requires a segment_id")
		}
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("edit requires text")
		}
		return nil
	case "":
		return fmt.Errorf("control message has no type")
	default:
		return fmt.Errorf("unknown control type: %q", c.Type)
	}
}

// RecordEvent wraps a translation record; the record is copied
func RecordEvent(eventType string, rec pipeline.Record) Event {
	return Event{
		Type:      eventType,
		SegmentID: rec.SegmentID,
		Record:    &rec,
		Time:      time.Now().UTC(),
	}
}

// SegmentEvent is an event about a segment without a translation
func SegmentEvent(eventType string, segmentID uint64) Event {
	return Event{
		Type:      eventType,
		SegmentID: segmentID,
		Time:      time.Now().UTC(),
	}
}

// ErrorEvent reports a rejected client message
func ErrorEvent(err error) Event {
	return Event{
		Type:  EventError,
		Error: err.Error(),
		Time:  time.Now().UTC(),
	}
}
