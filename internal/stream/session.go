package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypro1111/interp-service/internal/audio"
	"github.com/skypro1111/interp-service/internal/glossary"
	"github.com/skypro1111/interp-service/internal/pipeline"
	"github.com/skypro1111/interp-service/internal/segmenter"
	"github.com/skypro1111/interp-service/internal/transcription"
	"github.com/skypro1111/interp-service/internal/vad"
)

// ErrConversationEnded is returned for audio delivered after End and before Reset
var ErrConversationEnded = errors.New("conversation ended")

// ErrSessionClosed is returned for audio delivered to a closed session
var ErrSessionClosed = errors.New("session closed")

// Transcriber turns the samples of one segment into text
type Transcriber interface {
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (transcription.Result, error)
}

// Listener receives everything a client shows for one conversation.
// Callbacks run on session goroutines and must not block for long.
type Listener interface {
	pipeline.Listener
	OnSegmentStarted(segmentID uint64)
	OnSegmentPartial(segmentID uint64, text string)
	OnSegmentCancelled(segmentID uint64)
	OnSegmentFailed(segmentID uint64, reason pipeline.Reason, err error)
}

// Conversation is the language pair and the speaker roles of a session
type Conversation struct {
	LanguageA string
	LanguageB string
	RoleA     string
	RoleB     string
}

// Route picks the translation direction and speaker role for a detected
// language. Speech in language B goes to A; everything else goes to B and
// keeps its detected language as the source.
func (c Conversation) Route(detected string) (source, target, role string) {
	switch {
	case detected != "" && glossary.SameLanguage(detected, c.LanguageB):
		return c.LanguageB, c.LanguageA, c.RoleB
	case detected == "" || glossary.SameLanguage(detected, c.LanguageA):
		return c.LanguageA, c.LanguageB, c.RoleA
	default:
		return detected, c.LanguageB, c.RoleA
	}
}

// Session is one live conversation: audio frames in, segment and translation
// events out. Deliver must be called from a single goroutine.
type Session struct {
	ID           string
	StartTime    time.Time
	LastActivity time.Time

	conversation Conversation
	sampleRate   int
	tickPeriod   time.Duration

	// tickMu serializes everything that drives the segmenter
	tickMu    sync.Mutex
	assembler *audio.FrameAssembler
	meter     *vad.Meter
	segmenter *segmenter.Segmenter
	ticks     uint64
	ended     bool
	closed    bool

	pipeline    *pipeline.Pipeline
	transcriber Transcriber
	listener    Listener
	manager     *Manager
	logger      *slog.Logger

	// activeSegment is the id partial captions may still be shown for
	activeSegment atomic.Uint64
	partialBusy   atomic.Bool

	processingCtx    context.Context
	processingCancel context.CancelFunc
	processingWG     sync.WaitGroup

	// Statistics
	bytesReceived        uint64
	segmentsTranscribed  uint64
	transcriptionsFailed uint64
	noSpeech             uint64
	partialsSent         uint64
	partialsDropped      uint64

	mu sync.RWMutex
}

// SessionInfo represents session information for monitoring and APIs
type SessionInfo struct {
	ID           string        `json:"id"`
	StartTime    time.Time     `json:"start_time"`
	LastActivity time.Time     `json:"last_activity"`
	Duration     time.Duration `json:"duration"`
	LanguageA    string        `json:"language_a"`
	LanguageB    string        `json:"language_b"`
	Ended        bool          `json:"ended"`

	BytesReceived        uint64 `json:"bytes_received"`
	SegmentsTranscribed  uint64 `json:"segments_transcribed"`
	TranscriptionsFailed uint64 `json:"transcriptions_failed"`
	NoSpeech             uint64 `json:"no_speech"`
	PartialsSent         uint64 `json:"partials_sent"`
	PartialsDropped      uint64 `json:"partials_dropped"`

	Assembler audio.AssemblerStats `json:"assembler"`
	Segmenter segmenter.Stats      `json:"segmenter"`
	Meter     vad.MeterStats       `json:"meter"`
	Pipeline  pipeline.Stats       `json:"pipeline"`
}

// Deliver feeds raw little-endian PCM-16 bytes. Every complete tick is
// metered and run through the segmenter in arrival order.
func (s *Session) Deliver(raw []byte) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.ended {
		return ErrConversationEnded
	}

	s.mu.Lock()
	s.LastActivity = time.Now()
	s.bytesReceived += uint64(len(raw))
	s.mu.Unlock()
	s.manager.metrics.RecordAudio(len(raw))

	for _, frame := range s.assembler.Write(raw) {
		level := s.meter.Level(frame)
		s.manager.metrics.RecordFrame(level)

		s.ticks++
		if ev := s.segmenter.Tick(level, s.streamTime(), frame); ev != nil {
			s.handleEvent(ev)
		}
	}
	return nil
}

// streamTime is the audio clock: session start plus the ticks consumed
func (s *Session) streamTime() time.Time {
	return s.StartTime.Add(time.Duration(s.ticks) * s.tickPeriod)
}

func (s *Session) handleEvent(ev *segmenter.Event) {
	s.manager.metrics.RecordSegmentEvent(ev.Type.String())

	switch ev.Type {
	case segmenter.EventStarted:
		s.activeSegment.Store(ev.SegmentID)
		s.logger.Debug("Segment started",
			slog.String("session_id", s.ID),
			slog.Uint64("segment_id", ev.SegmentID),
		)
		s.listener.OnSegmentStarted(ev.SegmentID)

	case segmenter.EventPartial:
		s.transcribePartial(ev)

	case segmenter.EventCancelled:
		s.activeSegment.CompareAndSwap(ev.SegmentID, 0)
		s.logger.Debug("Segment cancelled",
			slog.String("session_id", s.ID),
			slog.Uint64("segment_id", ev.SegmentID),
		)
		s.listener.OnSegmentCancelled(ev.SegmentID)

	case segmenter.EventFinalized:
		s.activeSegment.CompareAndSwap(ev.SegmentID, 0)
		duration := ev.Time.Sub(ev.StartTime)
		s.manager.metrics.RecordSegmentFinalized(duration.Seconds(), ev.Forced)

		s.logger.Info("Segment finalized",
			slog.String("session_id", s.ID),
			slog.Uint64("segment_id", ev.SegmentID),
			slog.Duration("duration", duration),
			slog.Bool("forced", ev.Forced),
			slog.Int("samples", len(ev.Samples)),
		)

		// the key pins the segment to the conversation it was spoken in
		key := s.pipeline.SessionKey()
		s.processingWG.Add(1)
		go func() {
			defer s.processingWG.Done()
			s.processSegment(ev, key)
		}()
		s.segmenter.Complete(ev.SegmentID)
	}
}

// transcribePartial captions the trailing window of an active segment.
// At most one partial is in flight; results for segments that are no longer
// active are dropped.
func (s *Session) transcribePartial(ev *segmenter.Event) {
	if !s.partialBusy.CompareAndSwap(false, true) {
		s.incr(&s.partialsDropped)
		return
	}

	samples := append([]int16(nil), ev.Samples...)
	s.processingWG.Add(1)
	go func() {
		defer s.processingWG.Done()
		defer s.partialBusy.Store(false)

		result, err := s.transcriber.Transcribe(s.processingCtx, samples, s.sampleRate)
		if err != nil {
			s.logger.Debug("Partial transcription failed",
				slog.String("session_id", s.ID),
				slog.Uint64("segment_id", ev.SegmentID),
				slog.String("error", err.Error()),
			)
			return
		}
		if result.Text == "" || s.activeSegment.Load() != ev.SegmentID {
			s.incr(&s.partialsDropped)
			return
		}

		s.incr(&s.partialsSent)
		s.listener.OnSegmentPartial(ev.SegmentID, result.Text)
	}()
}

// processSegment transcribes a finalized segment and hands it to the pipeline
func (s *Session) processSegment(ev *segmenter.Event, sessionKey string) {
	startTime := time.Now()
	result, err := s.transcriber.Transcribe(s.processingCtx, ev.Samples, s.sampleRate)
	if err != nil && s.processingCtx.Err() != nil {
		return
	}
	if err != nil {
		s.incr(&s.transcriptionsFailed)
		s.logger.Error("Transcription failed",
			slog.String("session_id", s.ID),
			slog.Uint64("segment_id", ev.SegmentID),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(startTime)),
		)
		s.listener.OnSegmentFailed(ev.SegmentID, pipeline.ReasonTranscriptionFailed,
			&pipeline.SegmentError{SegmentID: ev.SegmentID, Reason: pipeline.ReasonTranscriptionFailed, Err: err})
		return
	}
	s.incr(&s.segmentsTranscribed)

	source, target, role := s.conversation.Route(result.Language)
	s.logger.Info("Segment transcribed",
		slog.String("session_id", s.ID),
		slog.Uint64("segment_id", ev.SegmentID),
		slog.String("language", result.Language),
		slog.String("source_lang", source),
		slog.String("target_lang", target),
		slog.Int("text_length", len(result.Text)),
		slog.Duration("elapsed", time.Since(startTime)),
	)

	_, err = s.pipeline.Translate(s.processingCtx, pipeline.Utterance{
		SegmentID:  ev.SegmentID,
		Text:       result.Text,
		SourceLang: source,
		TargetLang: target,
		SessionKey: sessionKey,
	}, role)

	var segErr *pipeline.SegmentError
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrNoSpeech):
		s.incr(&s.noSpeech)
		s.listener.OnSegmentCancelled(ev.SegmentID)
	case errors.As(err, &segErr) && segErr.Stale():
		s.logger.Debug("Dropping segment from a previous conversation",
			slog.String("session_id", s.ID),
			slog.Uint64("segment_id", ev.SegmentID),
			slog.String("reason", string(segErr.Reason)),
		)
	default:
		s.listener.OnSegmentFailed(ev.SegmentID, pipeline.ReasonOf(err), err)
	}
}

// Flush finalizes the in-flight segment now, as if the speaker went silent
func (s *Session) Flush() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if s.closed || s.ended {
		return
	}
	if ev := s.segmenter.Flush(s.streamTime()); ev != nil {
		s.handleEvent(ev)
	}
}

// Reset starts a new conversation on the same connection. The in-flight
// segment is cancelled and every pending result of the old conversation is
// invalidated.
func (s *Session) Reset() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if s.closed {
		return
	}
	s.discardAudio()
	s.ended = false
	s.pipeline.Reset()
	s.manager.metrics.RecordSessionReset()

	s.logger.Info("Conversation reset", slog.String("session_id", s.ID))
}

// End closes the conversation. Records stay readable; audio is rejected
// until Reset.
func (s *Session) End() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if s.closed || s.ended {
		return
	}
	s.discardAudio()
	s.ended = true
	s.pipeline.End()

	s.logger.Info("Conversation ended", slog.String("session_id", s.ID))
}

// discardAudio drops buffered audio and cancels the in-flight segment; tickMu must be held
func (s *Session) discardAudio() {
	if ev := s.segmenter.Reset(s.streamTime()); ev != nil {
		s.handleEvent(ev)
	}
	s.assembler.Reset()
	s.meter.Reset()
}

// Wait blocks until every segment handed off so far has been transcribed and
// translated, including background Quality Passes
func (s *Session) Wait() {
	s.processingWG.Wait()
	s.pipeline.Wait()
}

// Close stops all processing of the session; the manager calls it on removal
func (s *Session) Close() {
	s.tickMu.Lock()
	if s.closed {
		s.tickMu.Unlock()
		return
	}
	s.closed = true
	s.tickMu.Unlock()

	s.processingCancel()
	s.processingWG.Wait()
	s.pipeline.Close()
}

// Records returns the translation records of the current conversation
func (s *Session) Records() []pipeline.Record {
	return s.pipeline.Records()
}

// EditTranslation replaces the displayed translation of a segment
func (s *Session) EditTranslation(segmentID uint64, text string) (pipeline.Record, error) {
	rec, err := s.pipeline.EditTranslation(segmentID, text)
	if err != nil {
		return pipeline.Record{}, fmt.Errorf("session %s: %w", s.ID, err)
	}
	return rec, nil
}

// GetSessionInfo returns session information including component statistics
func (s *Session) GetSessionInfo() SessionInfo {
	s.tickMu.Lock()
	segStats := s.segmenter.GetStats()
	ended := s.ended
	s.tickMu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionInfo{
		ID:                   s.ID,
		StartTime:            s.StartTime,
		LastActivity:         s.LastActivity,
		Duration:             time.Since(s.StartTime),
		LanguageA:            s.conversation.LanguageA,
		LanguageB:            s.conversation.LanguageB,
		Ended:                ended,
		BytesReceived:        s.bytesReceived,
		SegmentsTranscribed:  s.segmentsTranscribed,
		TranscriptionsFailed: s.transcriptionsFailed,
		NoSpeech:             s.noSpeech,
		PartialsSent:         s.partialsSent,
		PartialsDropped:      s.partialsDropped,
		Assembler:            s.assembler.GetStats(),
		Segmenter:            segStats,
		Meter:                s.meter.GetStats(),
		Pipeline:             s.pipeline.GetStats(),
	}
}

func (s *Session) lastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastActivity
}

func (s *Session) incr(counter *uint64) {
	s.mu.Lock()
	*counter++
	s.mu.Unlock()
}
