package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/interp-service/internal/gate"
	"github.com/skypro1111/interp-service/internal/glossary"
	"github.com/skypro1111/interp-service/internal/metrics"
	"github.com/skypro1111/interp-service/internal/prompt"
	"github.com/skypro1111/interp-service/internal/raceguard"
)

// Completer invokes a translation model. Fast and Quality Passes use it
// identically with different prompts and models.
type Completer interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// Listener receives translation results. Callbacks run on pipeline goroutines
// and must not block for long.
type Listener interface {
	OnTranslationProvisional(rec Record)
	OnTranslationFinal(rec Record)
	OnQualityPassFailed(rec Record)
}

type nopListener struct{}

func (nopListener) OnTranslationProvisional(Record) {}
func (nopListener) OnTranslationFinal(Record)       {}
func (nopListener) OnQualityPassFailed(Record)      {}

// Utterance is the transcribed text of one finalized segment with its routing
type Utterance struct {
	SegmentID  uint64
	Text       string
	SourceLang string
	TargetLang string

	// SessionKey is the conversation the audio was captured in.
	// Empty means the current one.
	SessionKey string
}

// Config contains pipeline parameters
type Config struct {
	FastModel         string
	QualityModel      string
	MaxQualityRetries int
	ContextTurns      int
	StaleTimeout      time.Duration
	MaxRecords        int
	CostControl       gate.CostControl
	Weights           gate.Weights
}

// Bounds on the conversation turns quoted in a Quality Pass prompt
const (
	MinContextTurns = 3
	MaxContextTurns = 6
)

// DefaultConfig returns the reference pipeline configuration
func DefaultConfig() Config {
	return Config{
		FastModel:         "gpt-4o-mini",
		QualityModel:      "gpt-4o",
		MaxQualityRetries: 1,
		ContextTurns:      4,
		StaleTimeout:      raceguard.DefaultTimeout,
		MaxRecords:        DefaultMaxRecords,
		CostControl:       gate.DefaultCostControl(),
		Weights:           gate.DefaultWeights(),
	}
}

// Validate checks the pipeline configuration
func (c Config) Validate() error {
	if c.FastModel == "" {
		return fmt.Errorf("fast model cannot be empty")
	}
	if c.QualityModel == "" {
		return fmt.Errorf("quality model cannot be empty")
	}
	if c.MaxQualityRetries < 0 {
		return fmt.Errorf("max quality retries cannot be negative, got %d", c.MaxQualityRetries)
	}
	if c.ContextTurns < MinContextTurns || c.ContextTurns > MaxContextTurns {
		return fmt.Errorf("context turns must be between %d and %d, got %d",
			MinContextTurns, MaxContextTurns, c.ContextTurns)
	}
	if c.StaleTimeout <= 0 {
		return fmt.Errorf("stale timeout must be positive, got %v", c.StaleTimeout)
	}
	if err := c.CostControl.Validate(); err != nil {
		return fmt.Errorf("cost control: %w", err)
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("quality weights: %w", err)
	}
	return nil
}

// Stats represents pipeline counters
type Stats struct {
	Translations     uint64 `json:"translations"`
	FastFailures     uint64 `json:"fast_failures"`
	QualityLaunched  uint64 `json:"quality_launched"`
	QualityCompleted uint64 `json:"quality_completed"`
	QualityFailed    uint64 `json:"quality_failed"`
	QualitySkipped   uint64 `json:"quality_skipped"`
	QualityRetries   uint64 `json:"quality_retries"`
	StaleDropped     uint64 `json:"stale_dropped"`
	Records          int    `json:"records"`
	SessionActive    bool   `json:"session_active"`
}

// Pipeline runs the Fast Pass and, when the cost-control gate asks for it,
// a background Quality Pass for each utterance of one conversation
type Pipeline struct {
	config    Config
	completer Completer
	listener  Listener
	store     *Store
	scorer    *gate.Scorer
	guard     raceguard.Guard
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	// Quality Passes outlive the caller's context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats Stats
	mu    sync.Mutex
}

// New creates a pipeline for one conversation
func New(config Config, completer Completer, listener Listener, logger *slog.Logger, m *metrics.Metrics) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if completer == nil {
		return nil, fmt.Errorf("completer cannot be nil")
	}
	if listener == nil {
		listener = nopListener{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		config:    config,
		completer: completer,
		listener:  listener,
		store:     NewStore(config.MaxRecords),
		scorer:    gate.NewScorer(config.Weights),
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
	p.guard = raceguard.Guard{
		Timeout: config.StaleTimeout,
		Now:     func() time.Time { return p.now() },
	}
	return p, nil
}

type fastResult struct {
	record Record
	err    error
}

type qualityJob struct {
	utterance  Utterance
	role       string
	sessionKey string
	startedAt  time.Time
	fast       <-chan fastResult
}

// Translate runs the Fast Pass and returns its record as soon as it resolves.
// When the cost-control gate asks for a Quality Pass, it is launched before
// the Fast Pass and upgrades the record later. Failures are *SegmentError.
func (p *Pipeline) Translate(ctx context.Context, u Utterance, role string) (Record, error) {
	u.Text = strings.TrimSpace(u.Text)
	if u.Text == "" {
		return Record{}, ErrNoSpeech
	}

	key := p.store.SessionKey()
	if key == "" {
		return Record{}, &SegmentError{SegmentID: u.SegmentID, Reason: ReasonSessionClosed, Err: ErrStaleSession}
	}
	if u.SessionKey != "" && u.SessionKey != key {
		return Record{}, &SegmentError{SegmentID: u.SegmentID, Reason: ReasonSessionChanged, Err: ErrStaleSession}
	}

	decision := p.config.CostControl.Decide(u.Text, u.SourceLang)
	p.metrics.RecordCostControl(string(decision.Reason), decision.RunQualityPass)

	var fastDone chan fastResult
	if decision.RunQualityPass {
		fastDone = make(chan fastResult, 1)
		p.incr(&p.stats.QualityLaunched)
		p.wg.Add(1)
		go p.runQualityPass(qualityJob{
			utterance:  u,
			role:       role,
			sessionKey: key,
			startedAt:  p.now(),
			fast:       fastDone,
		})
	}

	rec, err := p.fastPass(ctx, u, role, key, decision)
	if fastDone != nil {
		fastDone <- fastResult{record: rec, err: err}
	}
	return rec, err
}

func (p *Pipeline) fastPass(ctx context.Context, u Utterance, role, key string, decision gate.Decision) (Record, error) {
	start := time.Now()
	out, err := p.completer.Complete(ctx, prompt.Fast(u.Text, u.SourceLang, u.TargetLang), p.config.FastModel)
	out = strings.TrimSpace(out)
	if err == nil && out == "" {
		err = ErrEmptyTranslation
	}
	p.metrics.RecordFastPass(time.Since(start).Seconds(), err != nil)

	if err != nil {
		p.incr(&p.stats.FastFailures)
		p.logger.Error("Fast Pass failed",
			slog.Uint64("segment_id", u.SegmentID),
			slog.String("model", p.config.FastModel),
			slog.String("error", err.Error()),
		)
		return Record{}, &SegmentError{SegmentID: u.SegmentID, Reason: ReasonFastPassFailed, Err: err}
	}

	now := p.now()
	rec := Record{
		SegmentID:      u.SegmentID,
		SpeakerRole:    role,
		SourceText:     u.Text,
		SourceLang:     u.SourceLang,
		TargetLang:     u.TargetLang,
		TranslatedText: out,
		Stage:          StageProvisional,
		QualityStatus:  StatusPending,
		Version:        1,
		SessionKey:     key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if decision.RunQualityPass {
		rec.transition(StatusProcessing)
	}

	stored, err := p.store.Add(rec)
	if err != nil {
		reason := ReasonSessionChanged
		if p.store.SessionKey() == "" {
			reason = ReasonSessionClosed
		}
		p.logger.Debug("Dropping Fast Pass result for a stale session",
			slog.Uint64("segment_id", u.SegmentID),
			slog.String("reason", string(reason)),
		)
		return Record{}, &SegmentError{SegmentID: u.SegmentID, Reason: reason, Err: err}
	}
	p.incr(&p.stats.Translations)
	p.listener.OnTranslationProvisional(stored)

	p.logger.Info("Provisional translation ready",
		slog.Uint64("segment_id", u.SegmentID),
		slog.String("cost_control", string(decision.Reason)),
		slog.Bool("quality_pass", decision.RunQualityPass),
	)

	if decision.RunQualityPass {
		return stored, nil
	}

	final, ok := p.store.Mutate(u.SegmentID, func(r *Record, _ string) {
		if r.transition(StatusSkipped) {
			r.promote()
			r.UpdatedAt = p.now()
		}
	})
	if !ok {
		return stored, nil
	}
	p.incr(&p.stats.QualitySkipped)
	p.metrics.RecordQualityOutcome(string(StatusSkipped), 0)
	p.listener.OnTranslationFinal(final)
	return final, nil
}

type qualityOutcome struct {
	text       string
	assessment gate.Assessment
	attempts   int
	err        error
}

func (p *Pipeline) runQualityPass(job qualityJob) {
	defer p.wg.Done()

	outcome := p.produceQuality(job)

	var fast fastResult
	select {
	case fast = <-job.fast:
	case <-p.ctx.Done():
		return
	}
	if fast.err != nil {
		p.logger.Debug("Discarding Quality Pass result without a Fast Pass record",
			slog.Uint64("segment_id", job.utterance.SegmentID),
		)
		return
	}

	p.applyQuality(job, fast.record, outcome)
}

// produceQuality runs the quality model, scoring each candidate, with at most
// MaxQualityRetries quality-driven retries. It returns the first passing
// candidate or the best-scoring one.
func (p *Pipeline) produceQuality(job qualityJob) qualityOutcome {
	u := job.utterance
	req := prompt.Request{
		Text:        u.Text,
		SourceLang:  u.SourceLang,
		TargetLang:  u.TargetLang,
		SpeakerRole: job.role,
		Context:     p.contextTurns(u.SegmentID),
		Glossary:    glossary.Terms(u.SourceLang, u.TargetLang),
	}

	var best, last qualityOutcome
	haveBest := false

	for attempt := 0; attempt <= p.config.MaxQualityRetries; attempt++ {
		text := prompt.Quality(req)
		if attempt > 0 {
			p.incr(&p.stats.QualityRetries)
			p.metrics.RecordQualityRetry()
			text = prompt.Retry(req, last.text, last.assessment.Issues)
		}

		out, err := p.completer.Complete(p.ctx, text, p.config.QualityModel)
		if err != nil {
			p.logger.Warn("Quality Pass request failed",
				slog.Uint64("segment_id", u.SegmentID),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			if haveBest {
				return best
			}
			return qualityOutcome{attempts: attempt + 1, err: err}
		}

		out = strings.TrimSpace(out)
		assessment := p.scorer.Detect(u.Text, out, u.SourceLang, u.TargetLang)
		p.metrics.ObserveQualityScore(assessment.Score)

		current := qualityOutcome{text: out, assessment: assessment, attempts: attempt + 1}
		if assessment.Passed {
			return current
		}
		if !haveBest || assessment.Score > best.assessment.Score {
			best, haveBest = current, true
		}
		last = current

		p.logger.Debug("Quality candidate rejected",
			slog.Uint64("segment_id", u.SegmentID),
			slog.Int("attempt", attempt+1),
			slog.Int("score", assessment.Score),
			slog.String("recommendation", string(assessment.Recommendation)),
		)
	}
	return best
}

// applyQuality performs the race-guarded check-and-apply under the store lock
func (p *Pipeline) applyQuality(job qualityJob, fast Record, out qualityOutcome) {
	var (
		verdict raceguard.Verdict
		notify  func(Record)
		touched bool
	)

	rec, found := p.store.Mutate(fast.SegmentID, func(r *Record, curKey string) {
		if r.QualityStatus != StatusProcessing {
			return
		}
		touched = true
		verdict = p.guard.Check(fast.Version, r.Version, job.sessionKey, curKey, job.startedAt)

		switch {
		case !verdict.Apply:
			// A vetoed record must not stay processing forever
			r.transition(StatusFailed)
		case out.err != nil:
			r.transition(StatusFailed)
			notify = p.listener.OnQualityPassFailed
		case out.assessment.Passed:
			r.setText(out.text)
			r.promote()
			r.transition(StatusCompleted)
			r.QualityScore = out.assessment.Score
			r.Issues = nil
			notify = p.listener.OnTranslationFinal
		default:
			r.transition(StatusFailed)
			fastScore := p.scorer.Detect(r.SourceText, r.TranslatedText, r.SourceLang, r.TargetLang).Score
			if out.text != "" && out.assessment.Score > fastScore {
				r.setText(out.text)
			}
			r.QualityScore = out.assessment.Score
			r.Issues = append([]gate.Issue(nil), out.assessment.Issues...)
			notify = p.listener.OnQualityPassFailed
		}
		r.UpdatedAt = p.now()
	})

	if !found {
		verdict.Reason = raceguard.ReasonSessionChanged
		if p.store.SessionKey() == "" {
			verdict.Reason = raceguard.ReasonSessionClosed
		}
	} else if !touched {
		return
	}

	latency := p.now().Sub(job.startedAt)

	if !verdict.Apply {
		p.incr(&p.stats.StaleDropped)
		p.metrics.RecordStaleResult(string(verdict.Reason))
		if found {
			p.incr(&p.stats.QualityFailed)
			p.metrics.RecordQualityOutcome(string(rec.QualityStatus), latency.Seconds())
		}
		p.logger.Debug("Dropping stale Quality Pass result",
			slog.Uint64("segment_id", fast.SegmentID),
			slog.String("reason", string(verdict.Reason)),
			slog.Duration("elapsed", latency),
		)
		return
	}

	switch rec.QualityStatus {
	case StatusCompleted:
		p.incr(&p.stats.QualityCompleted)
	default:
		p.incr(&p.stats.QualityFailed)
	}
	p.metrics.RecordQualityOutcome(string(rec.QualityStatus), latency.Seconds())

	p.logger.Info("Quality Pass applied",
		slog.Uint64("segment_id", rec.SegmentID),
		slog.String("status", string(rec.QualityStatus)),
		slog.String("stage", string(rec.Stage)),
		slog.Uint64("version", rec.Version),
		slog.Int("attempts", out.attempts),
		slog.Duration("elapsed", latency),
	)

	if notify != nil {
		notify(rec)
	}
}

func (p *Pipeline) contextTurns(segmentID uint64) []prompt.Turn {
	records := p.store.Context(segmentID, p.config.ContextTurns)
	turns := make([]prompt.Turn, len(records))
	for i, rec := range records {
		turns[i] = prompt.Turn{Role: rec.SpeakerRole, Source: rec.SourceText, Translation: rec.TranslatedText}
	}
	return turns
}

// ErrRecordNotFound is returned for edits of unknown segments
var ErrRecordNotFound = errors.New("record not found")

// EditTranslation replaces the displayed text of a record, e.g. after a manual
// correction. The version bump supersedes any in-flight Quality Pass.
func (p *Pipeline) EditTranslation(segmentID uint64, text string) (Record, error) {
	rec, ok := p.store.Mutate(segmentID, func(r *Record, _ string) {
		if r.setText(text) {
			r.UpdatedAt = p.now()
		}
	})
	if !ok {
		return Record{}, fmt.Errorf("segment %d: %w", segmentID, ErrRecordNotFound)
	}
	return rec, nil
}

// Reset starts a new conversation and invalidates in-flight Quality Passes
func (p *Pipeline) Reset() string {
	key := p.store.Rotate()
	p.logger.Info("Conversation reset")
	return key
}

// End closes the conversation; every in-flight result will be vetoed
func (p *Pipeline) End() {
	p.store.Close()
	p.logger.Info("Conversation ended")
}

// Record returns the current record for a segment
func (p *Pipeline) Record(segmentID uint64) (Record, bool) {
	return p.store.Get(segmentID)
}

// Records returns the visible records in creation order
func (p *Pipeline) Records() []Record {
	return p.store.Records()
}

// SessionKey returns the current conversation session key
func (p *Pipeline) SessionKey() string {
	return p.store.SessionKey()
}

// Wait blocks until every launched Quality Pass has finished
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Close cancels in-flight Quality Passes and waits for them to return
func (p *Pipeline) Close() {
	p.cancel()
	p.wg.Wait()
}

// GetStats returns current pipeline statistics
func (p *Pipeline) GetStats() Stats {
	p.mu.Lock()
	stats := p.stats
	p.mu.Unlock()

	stats.Records = p.store.Len()
	stats.SessionActive = p.store.SessionKey() != ""
	return stats
}

func (p *Pipeline) incr(counter *uint64) {
	p.mu.Lock()
	*counter++
	p.mu.Unlock()
}
