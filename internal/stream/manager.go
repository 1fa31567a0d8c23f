package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/interp-service/internal/audio"
	"github.com/skypro1111/interp-service/internal/metrics"
	"github.com/skypro1111/interp-service/internal/pipeline"
	"github.com/skypro1111/interp-service/internal/segmenter"
	"github.com/skypro1111/interp-service/internal/vad"
)

// ErrTooManySessions is returned when the session limit is reached
var ErrTooManySessions = errors.New("too many active sessions")

const defaultCleanupInterval = 30 * time.Second

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	Segmenter    segmenter.Config
	Pipeline     pipeline.Config
	Conversation Conversation

	MeterFullScale float64
	MeterSmoothing float64

	SessionTimeout  time.Duration
	MaxSessions     int
	CleanupInterval time.Duration
}

// Validate checks the manager configuration
func (c ManagerConfig) Validate() error {
	if err := c.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter config: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}
	if c.Conversation.LanguageA == "" || c.Conversation.LanguageB == "" {
		return fmt.Errorf("conversation needs two languages")
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("session timeout must be positive, got %v", c.SessionTimeout)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("max sessions must be at least 1, got %d", c.MaxSessions)
	}
	return nil
}

// Manager manages all live conversation sessions
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	config   ManagerConfig
	metrics  *metrics.Metrics

	transcriber Transcriber
	completer   pipeline.Completer

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewManager creates a session manager and starts its cleanup routine
func NewManager(logger *slog.Logger, config ManagerConfig, transcriber Transcriber, completer pipeline.Completer, m *metrics.Metrics) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if transcriber == nil {
		return nil, fmt.Errorf("transcriber cannot be nil")
	}
	if completer == nil {
		return nil, fmt.Errorf("completer cannot be nil")
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaultCleanupInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	mgr := &Manager{
		sessions:    make(map[string]*Session),
		logger:      logger,
		config:      config,
		metrics:     m,
		transcriber: transcriber,
		completer:   completer,
		ctx:         ctx,
		cancel:      cancel,
		cleanup:     make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr, nil
}

// CreateSession opens a new conversation whose events go to listener
func (m *Manager) CreateSession(listener Listener) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.config.MaxSessions {
		return nil, ErrTooManySessions
	}

	id := uuid.NewString()
	logger := m.logger.With(slog.String("session_id", id))

	assembler, err := audio.NewFrameAssembler(m.config.Segmenter.SampleRate, m.config.Segmenter.TickPeriod)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame assembler: %w", err)
	}

	meter, err := vad.NewMeter(m.config.MeterFullScale, m.config.MeterSmoothing)
	if err != nil {
		return nil, fmt.Errorf("failed to create activity meter: %w", err)
	}

	seg, err := segmenter.New(m.config.Segmenter)
	if err != nil {
		return nil, fmt.Errorf("failed to create segmenter: %w", err)
	}

	pipe, err := pipeline.New(m.config.Pipeline, m.completer, listener, logger, m.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	processingCtx, processingCancel := context.WithCancel(m.ctx)

	now := time.Now()
	session := &Session{
		ID:               id,
		StartTime:        now,
		LastActivity:     now,
		conversation:     m.config.Conversation,
		sampleRate:       m.config.Segmenter.SampleRate,
		tickPeriod:       m.config.Segmenter.TickPeriod,
		assembler:        assembler,
		meter:            meter,
		segmenter:        seg,
		pipeline:         pipe,
		transcriber:      m.transcriber,
		listener:         listener,
		manager:          m,
		logger:           m.logger,
		processingCtx:    processingCtx,
		processingCancel: processingCancel,
	}

	m.sessions[id] = session
	m.metrics.RecordSessionCreated()

	m.logger.Info("Created new conversation session",
		slog.String("session_id", id),
		slog.String("language_a", m.config.Conversation.LanguageA),
		slog.String("language_b", m.config.Conversation.LanguageB),
		slog.Int("active_sessions", len(m.sessions)),
	)

	return session, nil
}

// GetSession retrieves an existing session
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	return session, exists
}

// GetActiveSessionCount returns the number of currently active sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns a snapshot of all active sessions, oldest first
func (m *Manager) GetAllSessions() []*Session {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})
	return sessions
}

// RemoveSession removes a session and stops its processing
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	session, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !exists {
		return false
	}

	session.Close()

	info := session.GetSessionInfo()
	m.metrics.RecordSessionClosed(info.Duration.Seconds())

	m.logger.Info("Conversation session removed",
		slog.String("session_id", id),
		slog.Duration("duration", info.Duration),
		slog.Uint64("segments_transcribed", info.SegmentsTranscribed),
		slog.Uint64("translations", info.Pipeline.Translations),
		slog.Uint64("quality_completed", info.Pipeline.QualityCompleted),
	)

	return true
}

// Stop closes every session and the cleanup routine
func (m *Manager) Stop() {
	m.logger.Info("Stopping session manager...")

	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.RemoveSession(id)
	}

	// Cancel context to stop cleanup routine
	m.cancel()
	<-m.cleanup

	m.logger.Info("Session manager stopped",
		slog.Int("closed_sessions", len(ids)),
	)
}

// startCleanupRoutine runs in a separate goroutine to clean up idle sessions
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	m.logger.Info("Session cleanup routine started",
		slog.Duration("timeout", m.config.SessionTimeout),
		slog.Duration("check_interval", m.config.CleanupInterval),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Session cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupExpiredSessions(time.Now())
		}
	}
}

// cleanupExpiredSessions removes sessions that have received no audio for too long
func (m *Manager) cleanupExpiredSessions(now time.Time) int {
	expired := make([]string, 0)

	m.mu.RLock()
	for id, session := range m.sessions {
		if now.Sub(session.lastActivity()) > m.config.SessionTimeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) > 0 {
		m.logger.Info("Cleaning up idle sessions",
			slog.Int("expired_count", len(expired)),
		)

		for _, id := range expired {
			m.RemoveSession(id)
		}
	}
	return len(expired)
}
