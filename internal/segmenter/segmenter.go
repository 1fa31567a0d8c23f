package segmenter

import (
	"fmt"
	"time"
)

// Config contains the hysteresis and duration parameters of the segmenter
type Config struct {
	SampleRate int
	TickPeriod time.Duration

	StartThreshold float64
	EndThreshold   float64
	StartFrames    int
	EndFrames      int

	MinSpeechDuration time.Duration
	MaxSpeechDuration time.Duration

	// Partial emission; a zero interval disables partials
	PartialInterval   time.Duration
	PartialWindow     time.Duration
	MinPartialSamples int
}

// DefaultConfig returns the reference tuning for 16kHz audio ticked every 50ms
func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		TickPeriod:        50 * time.Millisecond,
		StartThreshold:    0.06,
		EndThreshold:      0.03,
		StartFrames:       3,
		EndFrames:         12,
		MinSpeechDuration: 800 * time.Millisecond,
		MaxSpeechDuration: 15 * time.Second,
		PartialInterval:   1500 * time.Millisecond,
		PartialWindow:     4 * time.Second,
		MinPartialSamples: 8000,
	}
}

// Validate checks the configuration invariants
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.TickPeriod <= 0 {
		return fmt.Errorf("tick period must be positive, got %v", c.TickPeriod)
	}
	if c.EndThreshold >= c.StartThreshold {
		return fmt.Errorf("end threshold (%f) must be below start threshold (%f)", c.EndThreshold, c.StartThreshold)
	}
	if c.EndThreshold < 0 {
		return fmt.Errorf("end threshold cannot be negative, got %f", c.EndThreshold)
	}
	if c.StartFrames < 1 {
		return fmt.Errorf("start frames must be at least 1, got %d", c.StartFrames)
	}
	if c.EndFrames < 1 {
		return fmt.Errorf("end frames must be at least 1, got %d", c.EndFrames)
	}
	if c.MinSpeechDuration < 0 {
		return fmt.Errorf("min speech duration cannot be negative, got %v", c.MinSpeechDuration)
	}
	if c.MaxSpeechDuration <= c.MinSpeechDuration {
		return fmt.Errorf("max speech duration (%v) must exceed min speech duration (%v)",
			c.MaxSpeechDuration, c.MinSpeechDuration)
	}
	if c.PartialInterval < 0 {
		return fmt.Errorf("partial interval cannot be negative, got %v", c.PartialInterval)
	}
	if c.PartialInterval > 0 && c.PartialWindow <= 0 {
		return fmt.Errorf("partial window must be positive when partials are enabled, got %v", c.PartialWindow)
	}
	if c.MinPartialSamples < 0 {
		return fmt.Errorf("min partial samples cannot be negative, got %d", c.MinPartialSamples)
	}
	return nil
}

func (c Config) samplesFor(d time.Duration) int {
	return int(int64(c.SampleRate) * int64(d) / int64(time.Second))
}

// Segmenter converts the per-tick activity level into utterance boundaries.
// It is driven from a single goroutine and performs no locking or I/O.
type Segmenter struct {
	config Config

	speaking bool
	current  *Segment
	last     SegmentRef
	nextID   uint64

	// Onset tracking while silent
	onsetCount  int
	onsetStart  time.Time
	onsetBlocks [][]int16

	silenceCount int
	lastPartial  time.Time

	stats Stats
}

// Stats represents segmenter counters
type Stats struct {
	Ticks            uint64 `json:"ticks"`
	SegmentsStarted  uint64 `json:"segments_started"`
	SegmentsFinal    uint64 `json:"segments_finalized"`
	SegmentsCanceled uint64 `json:"segments_cancelled"`
	ForcedCutoffs    uint64 `json:"forced_cutoffs"`
	Partials         uint64 `json:"partials"`
	PartialsSkipped  uint64 `json:"partials_skipped"`
	Speaking         bool       `json:"speaking"`
	CurrentSegmentID uint64     `json:"current_segment_id,omitempty"`
	LastSegment      SegmentRef `json:"last_segment"`
}

// New creates a segmenter in the Silence state
func New(config Config) (*Segmenter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Segmenter{config: config}, nil
}

// Tick consumes one FrameSource tick and returns the resulting event, if any.
// samples is the PCM block delivered with the tick.
func (s *Segmenter) Tick(level float64, now time.Time, samples []int16) *Event {
	s.stats.Ticks++

	if !s.speaking {
		return s.tickSilent(level, now, samples)
	}

	seg := s.current
	seg.Samples = append(seg.Samples, samples...)

	if level < s.config.EndThreshold {
		s.silenceCount++
	} else {
		s.silenceCount = 0
		seg.LastActivityTime = now
	}

	// End detection wins over the cutoff on the same tick
	if s.silenceCount >= s.config.EndFrames {
		return s.endSegment(now)
	}

	if seg.Duration(now) >= s.config.MaxSpeechDuration {
		return s.cutoff(now)
	}

	if s.config.PartialInterval > 0 && now.Sub(s.lastPartial) >= s.config.PartialInterval {
		s.lastPartial = now
		window := trailing(seg.Samples, s.config.samplesFor(s.config.PartialWindow))
		if len(window) < s.config.MinPartialSamples {
			s.stats.PartialsSkipped++
			return nil
		}
		s.stats.Partials++
		return &Event{
			Type:      EventPartial,
			SegmentID: seg.ID,
			Samples:   append([]int16(nil), window...),
			StartTime: seg.SpeechStartTime,
			Time:      now,
		}
	}

	return nil
}

func (s *Segmenter) tickSilent(level float64, now time.Time, samples []int16) *Event {
	if level <= s.config.StartThreshold {
		s.clearOnset()
		return nil
	}

	if s.onsetCount == 0 {
		s.onsetStart = now
	}
	s.onsetCount++
	s.onsetBlocks = append(s.onsetBlocks, append([]int16(nil), samples...))

	if s.onsetCount < s.config.StartFrames {
		return nil
	}

	// Onset confirmed; the arming ticks become the head of the segment
	s.nextID++
	seg := &Segment{
		ID:               s.nextID,
		State:            StateActive,
		SpeechStartTime:  s.onsetStart,
		LastActivityTime: now,
	}
	for _, block := range s.onsetBlocks {
		seg.Samples = append(seg.Samples, block...)
	}
	s.clearOnset()

	s.current = seg
	s.speaking = true
	s.silenceCount = 0
	s.lastPartial = now
	s.stats.SegmentsStarted++

	return &Event{
		Type:      EventStarted,
		SegmentID: seg.ID,
		StartTime: seg.SpeechStartTime,
		Time:      now,
	}
}

// endSegment finalizes or cancels the current segment after end detection
func (s *Segmenter) endSegment(now time.Time) *Event {
	seg := s.release()

	if seg.Duration(now) < s.config.MinSpeechDuration {
		s.retire(seg, StateCancelled)
		s.stats.SegmentsCanceled++
		return &Event{
			Type:      EventCancelled,
			SegmentID: seg.ID,
			StartTime: seg.SpeechStartTime,
			Time:      now,
		}
	}

	s.retire(seg, StateFinalizing)
	s.stats.SegmentsFinal++
	return &Event{
		Type:      EventFinalized,
		SegmentID: seg.ID,
		Samples:   seg.Samples,
		StartTime: seg.SpeechStartTime,
		Time:      now,
	}
}

// cutoff force-finalizes a segment that reached the maximum duration,
// keeping only the trailing MaxSpeechDuration of audio
func (s *Segmenter) cutoff(now time.Time) *Event {
	seg := s.release()
	s.retire(seg, StateFinalizing)
	seg.Samples = trailing(seg.Samples, s.config.samplesFor(s.config.MaxSpeechDuration))

	s.stats.SegmentsFinal++
	s.stats.ForcedCutoffs++
	return &Event{
		Type:      EventFinalized,
		SegmentID: seg.ID,
		Samples:   seg.Samples,
		StartTime: seg.SpeechStartTime,
		Time:      now,
		Forced:    true,
	}
}

// Flush ends the in-flight segment when the stream stops, applying the same
// minimum-duration rule as end detection. It returns nil when silent.
func (s *Segmenter) Flush(now time.Time) *Event {
	s.clearOnset()
	if !s.speaking {
		return nil
	}
	return s.endSegment(now)
}

// Reset cancels the in-flight segment, if any, and returns to Silence.
// Segment ids keep increasing across resets.
func (s *Segmenter) Reset(now time.Time) *Event {
	s.clearOnset()
	if !s.speaking {
		return nil
	}

	seg := s.release()
	s.retire(seg, StateCancelled)
	s.stats.SegmentsCanceled++
	return &Event{
		Type:      EventCancelled,
		SegmentID: seg.ID,
		StartTime: seg.SpeechStartTime,
		Time:      now,
	}
}

// release hands the current segment off and returns to Silence
func (s *Segmenter) release() *Segment {
	seg := s.current
	s.current = nil
	s.speaking = false
	s.silenceCount = 0
	s.lastPartial = time.Time{}
	return seg
}

func (s *Segmenter) clearOnset() {
	s.onsetCount = 0
	s.onsetStart = time.Time{}
	s.onsetBlocks = s.onsetBlocks[:0]
}

// Speaking reports whether a segment is currently being accumulated
func (s *Segmenter) Speaking() bool {
	return s.speaking
}

// Config returns the segmenter configuration
func (s *Segmenter) Config() Config {
	return s.config
}

func (s *Segmenter) retire(seg *Segment, state State) {
	seg.State = state
	s.last = SegmentRef{ID: seg.ID, State: state}
}

// Complete records that a finalized segment's audio was handed to the
// transcriber. It reports false for any id other than the last finalized one.
func (s *Segmenter) Complete(id uint64) bool {
	if s.last.ID != id || s.last.State != StateFinalizing {
		return false
	}
	s.last.State = StateCompleted
	return true
}

// State returns the state of the in-flight segment, or idle when silent
func (s *Segmenter) State() State {
	if s.current != nil {
		return s.current.State
	}
	return StateIdle
}

// Last returns the most recently finalized or cancelled segment
func (s *Segmenter) Last() SegmentRef {
	return s.last
}

// GetStats returns current segmenter statistics
func (s *Segmenter) GetStats() Stats {
	stats := s.stats
	stats.Speaking = s.speaking
	if s.current != nil {
		stats.CurrentSegmentID = s.current.ID
	}
	stats.LastSegment = s.last
	return stats
}

func trailing(samples []int16, n int) []int16 {
	if n <= 0 || len(samples) <= n {
		return samples
	}
	return samples[len(samples)-n:]
}
