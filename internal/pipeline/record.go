package pipeline

import (
	"time"

	"github.com/skypro1111/interp-service/internal/gate"
)

// Stage is the display stage of a translation; it only moves forward
type Stage string

const (
	StageProvisional Stage = "provisional"
	StageFinal       Stage = "final"
)

// QualityStatus tracks the Quality Pass for one record
type QualityStatus string

const (
	StatusPending    QualityStatus = "pending"
	StatusProcessing QualityStatus = "processing"
	StatusCompleted  QualityStatus = "completed"
	StatusFailed     QualityStatus = "failed"
	StatusSkipped    QualityStatus = "skipped"
)

// Terminal reports whether the status is absorbing
func (s QualityStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// allowedTransitions lists the legal moves out of each non-terminal status
var allowedTransitions = map[QualityStatus][]QualityStatus{
	StatusPending:    {StatusProcessing, StatusSkipped, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// Record is the translation of one finalized segment
type Record struct {
	SegmentID      uint64        `json:"segment_id"`
	SpeakerRole    string        `json:"speaker_role,omitempty"`
	SourceText     string        `json:"source_text"`
	SourceLang     string        `json:"source_lang"`
	TargetLang     string        `json:"target_lang"`
	TranslatedText string        `json:"translated_text"`
	Stage          Stage         `json:"stage"`
	QualityStatus  QualityStatus `json:"quality_status"`
	Version        uint64        `json:"version"`
	SessionKey     string        `json:"-"`
	QualityScore   int           `json:"quality_score,omitempty"`
	Issues         []gate.Issue  `json:"issues,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (r Record) clone() Record {
	if r.Issues != nil {
		r.Issues = append([]gate.Issue(nil), r.Issues...)
	}
	return r
}

// transition moves the quality status along a legal edge.
// Terminal statuses absorb every further transition.
func (r *Record) transition(to QualityStatus) bool {
	for _, allowed := range allowedTransitions[r.QualityStatus] {
		if allowed == to {
			r.QualityStatus = to
			return true
		}
	}
	return false
}

// setText rewrites the translation, bumping the version only on a real change
func (r *Record) setText(text string) bool {
	if text == r.TranslatedText {
		return false
	}
	r.TranslatedText = text
	r.Version++
	return true
}

func (r *Record) promote() {
	r.Stage = StageFinal
}
