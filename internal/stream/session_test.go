package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skypro1111/interp-service/internal/audio"
	"github.com/skypro1111/interp-service/internal/pipeline"
	"github.com/skypro1111/interp-service/internal/segmenter"
	"github.com/skypro1111/interp-service/internal/transcription"
)

const (
	testFastModel    = "fast"
	testQualityModel = "quality"
	loud             = int16(8000)
)

type fakeTranscriber struct {
	mu      sync.Mutex
	calls   int
	lengths []int
	respond func(samples []int16) (transcription.Result, error)

	// release, when set, blocks every call until closed
	release chan struct{}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, samples []int16, sampleRate int) (transcription.Result, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return transcription.Result{}, ctx.Err()
		}
	}
	f.mu.Lock()
	f.calls++
	f.lengths = append(f.lengths, len(samples))
	f.mu.Unlock()
	return f.respond(samples)
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func says(text, lang string) func([]int16) (transcription.Result, error) {
	return func([]int16) (transcription.Result, error) {
		return transcription.Result{Text: text, Language: lang}, nil
	}
}

type fakeCompleter struct {
	fast    string
	quality string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt, model string) (string, error) {
	if model == testQualityModel {
		return f.quality, nil
	}
	return f.fast, nil
}

type recorder struct {
	mu      sync.Mutex
	events  []string
	records map[uint64]pipeline.Record
}

func newRecorder() *recorder {
	return &recorder{records: make(map[uint64]pipeline.Record)}
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) OnSegmentStarted(id uint64)   { r.add("started:%d", id) }
func (r *recorder) OnSegmentCancelled(id uint64) { r.add("cancelled:%d", id) }
func (r *recorder) OnSegmentPartial(id uint64, text string) {
	r.add("partial:%d:%s", id, text)
}
func (r *recorder) OnSegmentFailed(id uint64, reason pipeline.Reason, err error) {
	r.add("failed:%d:%s", id, reason)
}
func (r *recorder) OnTranslationProvisional(rec pipeline.Record) {
	r.add("provisional:%d", rec.SegmentID)
}
func (r *recorder) OnTranslationFinal(rec pipeline.Record) {
	r.mu.Lock()
	r.records[rec.SegmentID] = rec
	r.mu.Unlock()
	r.add("final:%d", rec.SegmentID)
}
func (r *recorder) OnQualityPassFailed(rec pipeline.Record) {
	r.add("quality_failed:%d", rec.SegmentID)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) has(event string) bool {
	for _, e := range r.list() {
		if e == event {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, r *recorder, event string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.has(event) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s, got %v", event, r.list())
}

func testSegmenterConfig() segmenter.Config {
	return segmenter.Config{
		SampleRate:        1000,
		TickPeriod:        50 * time.Millisecond,
		StartThreshold:    0.5,
		EndThreshold:      0.2,
		StartFrames:       3,
		EndFrames:         4,
		MinSpeechDuration: 500 * time.Millisecond,
		MaxSpeechDuration: 2 * time.Second,
	}
}

func testManagerConfig() ManagerConfig {
	pipe := pipeline.DefaultConfig()
	pipe.FastModel = testFastModel
	pipe.QualityModel = testQualityModel

	return ManagerConfig{
		Segmenter: testSegmenterConfig(),
		Pipeline:  pipe,
		Conversation: Conversation{
			LanguageA: "zh",
			LanguageB: "en",
			RoleA:     "patient",
			RoleB:     "doctor",
		},
		MeterFullScale: 10000,
		MeterSmoothing: 1,
		SessionTimeout: time.Minute,
		MaxSessions:    4,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestManager(t *testing.T, config ManagerConfig, tr Transcriber, c pipeline.Completer) *Manager {
	t.Helper()
	mgr, err := NewManager(testLogger(), config, tr, c, nil)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(mgr.Stop)
	return mgr
}

// pcm encodes n ticks of 50 samples at a constant amplitude
func pcm(n int, value int16) []byte {
	samples := make([]int16, 50*n)
	for i := range samples {
		samples[i] = value
	}
	return audio.SamplesToBytes(samples)
}

// utterance is 13 loud ticks followed by 4 silent ones: a segment of 800ms
func utterance() []byte {
	return append(pcm(13, loud), pcm(4, 0)...)
}

func deliver(t *testing.T, s *Session, raw []byte) {
	t.Helper()
	if err := s.Deliver(raw); err != nil {
		t.Fatalf("Failed to deliver audio: %v", err)
	}
}

func TestSessionEndToEnd(t *testing.T) {
	tr := &fakeTranscriber{respond: says("我頭很痛", "zh")}
	c := &fakeCompleter{fast: "Head hurts", quality: "I have a bad headache"}
	mgr := newTestManager(t, testManagerConfig(), tr, c)

	rec := newRecorder()
	session, err := mgr.CreateSession(rec)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	deliver(t, session, utterance())
	session.Wait()

	want := []string{"started:1", "provisional:1", "final:1"}
	if got := rec.list(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected events %v, got %v", want, got)
	}

	tr.mu.Lock()
	length := tr.lengths[0]
	tr.mu.Unlock()
	if length != 850 {
		t.Errorf("Expected 850 samples transcribed, got %d", length)
	}

	records := session.Records()
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.SourceLang != "zh" || r.TargetLang != "en" || r.SpeakerRole != "patient" {
		t.Errorf("Unexpected routing: %s->%s as %s", r.SourceLang, r.TargetLang, r.SpeakerRole)
	}
	if r.QualityStatus != pipeline.StatusCompleted || r.TranslatedText != "I have a bad headache" {
		t.Errorf("Expected completed quality translation, got %s %q", r.QualityStatus, r.TranslatedText)
	}

	info := session.GetSessionInfo()
	if info.SegmentsTranscribed != 1 || info.BytesReceived != uint64(len(utterance())) {
		t.Errorf("Unexpected session info: %+v", info)
	}
	if info.Assembler.FramesProduced != 17 || info.Assembler.PendingBytes != 0 {
		t.Errorf("Expected 17 frames and no pending bytes, got %+v", info.Assembler)
	}
	if info.Segmenter.LastSegment.ID != 1 || info.Segmenter.LastSegment.State != segmenter.StateCompleted {
		t.Errorf("Expected segment 1 completed after hand-off, got %+v", info.Segmenter.LastSegment)
	}
}

func TestSessionRoutesSecondLanguage(t *testing.T) {
	tr := &fakeTranscriber{respond: says("Where does it hurt?", "en")}
	c := &fakeCompleter{fast: "哪裡痛？", quality: "你哪裡痛？"}
	mgr := newTestManager(t, testManagerConfig(), tr, c)

	rec := newRecorder()
	session, _ := mgr.CreateSession(rec)

	deliver(t, session, utterance())
	session.Wait()

	records := session.Records()
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.SourceLang != "en" || r.TargetLang != "zh" || r.SpeakerRole != "doctor" {
		t.Errorf("Unexpected routing: %s->%s as %s", r.SourceLang, r.TargetLang, r.SpeakerRole)
	}
}

func TestSessionShortBurstIsCancelled(t *testing.T) {
	tr := &fakeTranscriber{respond: says("x", "zh")}
	mgr := newTestManager(t, testManagerConfig(), tr, &fakeCompleter{fast: "x", quality: "x"})

	rec := newRecorder()
	session, _ := mgr.CreateSession(rec)

	deliver(t, session, append(pcm(3, loud), pcm(4, 0)...))
	session.Wait()

	want := "started:1,cancelled:1"
	if got := strings.Join(rec.list(), ","); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if tr.callCount() != 0 {
		t.Errorf("Expected no transcription for a cancelled segment, got %d", tr.callCount())
	}
}

func TestSessionFramesAcrossDeliveries(t *testing.T) {
	tr := &fakeTranscriber{respond: says("我們走吧", "zh")}
	mgr := newTestManager(t, testManagerConfig(), tr, &fakeCompleter{fast: "Let's go", quality: "x"})

	rec := newRecorder()
	session, _ := mgr.CreateSession(rec)

	// odd-sized writes must assemble into the same ticks
	raw := utterance()
	for len(raw) > 0 {
		n := 37
		if n > len(raw) {
			n = len(raw)
		}
		deliver(t, session, raw[:n])
		raw = raw[n:]
	}
	session.Wait()

	want := "started:1,provisional:1,final:1"
	if got := strings.Join(rec.list(), ","); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestSessionEmptyTranscription(t *testing.T) {
	tr := &fakeTranscriber{respond: says("", "zh")}
	mgr := newTestManager(t, testManagerConfig(), tr, &fakeCompleter{fast: "x", quality: "x"})

	rec := newRecorder()
	session, _ := mgr.CreateSession(rec)

	deliver(t, session, utterance())
	session.Wait()

	want := "started:1,cancelled:1"
	if got := strings.Join(rec.list(), ","); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if session.GetSessionInfo().NoSpeech != 1 {
		t.Error("Expected one no-speech segment")
	}
}

func TestSessionTranscriptionFailure(t *testing.T) {
	tr := &fakeTranscriber{respond: func([]int16) (transcription.Result, error) {
		return transcription.Result{}, errors.New("provider down")
	}}
	mgr := newTestManager(t, testManagerConfig(), tr, &fakeCompleter{fast: "x", quality: "x"})

	rec := newRecorder()
	session, _ := mgr.CreateSession(rec)

	deliver(t, session, utterance())
	session.Wait()

	if !rec.has("failed:1:transcription_failed") {
		t.Errorf("Expected transcription failure event, got %v", rec.list())
	}
	if session.GetSessionInfo().TranscriptionsFailed != 1 {
		t.Error("Expected one failed transcription")
	}
}

func TestSessionEndAndReset(t *testing.T) {
	tr := &fakeTranscriber{respond: says("我們走吧", "zh")}
	mgr := newTestManager(t, testManagerConfig(), tr, &fakeCompleter{fast: "Let's go", quality: "x"})

	rec := newRecorder()
	session, _ := mgr.CreateSession(rec)

	deliver(t, session, pcm(5, loud))
	session.End()

	if !rec.has("cancelled:1") {
		t.Errorf("Expected the in-flight segment to be cancelled, got %v", rec.list())
	}
	if err := session.Deliver(pcm(1, loud)); !errors.Is(err, ErrConversationEnded) {
		t.Errorf("Expected ErrConversationEnded, got %v", err)
	}
	if !session.GetSessionInfo().Ended {
		t.Error("Expected session to report ended")
	}

	session.Reset()
	deliver(t, session, utterance())
	session.Wait()

	if !rec.has("started:2") || !rec.has("final:2") {
		t.Errorf("Expected a fresh segment id after reset, got %v", rec.list())
	}
}

func TestSessionResetDropsInFlightSegment(t *testing.T) {
	tr := &fakeTranscriber{respond: says("我們走吧", "zh"), release: make(chan struct{})}
	mgr := newTestManager(t, testManagerConfig(), tr, &fakeCompleter{fast: "Let's go", quality: "x"})

	rec := newRecorder()
	session, _ := mgr.CreateSession(rec)

	deliver(t, session, utterance())
	session.Reset()
	close(tr.release)
	session.Wait()

	if rec.has("provisional:1") {
		t.Errorf("Expected the pre-reset segment to be dropped, got %v", rec.list())
	}
	if len(session.Records()) != 0 {
		t.Errorf("Expected no records after reset, got %d", len(session.Records()))
	}
}

func TestSessionPartialCaptions(t *testing.T) {
	config := testManagerConfig()
	config.Segmenter.PartialInterval = 500 * time.Millisecond
	config.Segmenter.PartialWindow = 400 * time.Millisecond
	config.Segmenter.MinPartialSamples = 300

	tr := &fakeTranscriber{respond: func(samples []int16) (transcription.Result, error) {
		if len(samples) == 400 {
			return transcription.Result{Text: "我頭", Language: "zh"}, nil
		}
		return transcription.Result{Text: "我頭很痛", Language: "zh"}, nil
	}}
	mgr := newTestManager(t, config, tr, &fakeCompleter{fast: "Head hurts", quality: "My head hurts badly"})

	rec := newRecorder()
	session, _ := mgr.CreateSession(rec)

	// the first partial is due on tick 13
	deliver(t, session, pcm(14, loud))
	waitFor(t, rec, "partial:1:我頭")

	deliver(t, session, append(pcm(2, loud), pcm(4, 0)...))
	session.Wait()

	if !rec.has("provisional:1") {
		t.Errorf("Expected the segment to be translated, got %v", rec.list())
	}
	if session.GetSessionInfo().PartialsSent != 1 {
		t.Errorf("Expected 1 partial sent, got %d", session.GetSessionInfo().PartialsSent)
	}
}

func TestSessionFlush(t *testing.T) {
	tr := &fakeTranscriber{respond: says("我們走吧", "zh")}
	mgr := newTestManager(t, testManagerConfig(), tr, &fakeCompleter{fast: "Let's go", quality: "x"})

	rec := newRecorder()
	session, _ := mgr.CreateSession(rec)

	deliver(t, session, pcm(12, loud))
	session.Flush()
	session.Wait()

	if !rec.has("provisional:1") {
		t.Errorf("Expected flushed segment to be translated, got %v", rec.list())
	}
}

func TestConversationRoute(t *testing.T) {
	c := Conversation{LanguageA: "zh-TW", LanguageB: "en", RoleA: "patient", RoleB: "doctor"}

	tests := []struct {
		detected string
		source   string
		target   string
		role     string
	}{
		{"zh", "zh-TW", "en", "patient"},
		{"zh-tw", "zh-TW", "en", "patient"},
		{"en", "en", "zh-TW", "doctor"},
		{"", "zh-TW", "en", "patient"},
		{"ja", "ja", "en", "patient"},
	}

	for _, tt := range tests {
		t.Run(tt.detected, func(t *testing.T) {
			source, target, role := c.Route(tt.detected)
			if source != tt.source || target != tt.target || role != tt.role {
				t.Errorf("Expected %s->%s as %s, got %s->%s as %s",
					tt.source, tt.target, tt.role, source, target, role)
			}
		})
	}
}
