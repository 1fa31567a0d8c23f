package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skypro1111/interp-service/internal/gate"
	"github.com/skypro1111/interp-service/internal/glossary"
	"github.com/skypro1111/interp-service/internal/pipeline"
	"github.com/skypro1111/interp-service/internal/segmenter"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Segmenter     SegmenterConfig     `yaml:"segmenter"`
	Conversation  ConversationConfig  `yaml:"conversation"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	CostControl   CostControlConfig   `yaml:"cost_control"`
	Quality       gate.Weights        `yaml:"quality"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Translation   TranslationConfig   `yaml:"translation"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port           int      `yaml:"port"`
	Address        string   `yaml:"address"`
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"` // empty allows any origin
}

// AudioConfig contains the frame source parameters
type AudioConfig struct {
	SampleRate     int `yaml:"sample_rate"`
	TickPeriodMs   int `yaml:"tick_period_ms"`
	SessionTimeout int `yaml:"session_timeout"` // seconds without audio before cleanup
	MaxSessions    int `yaml:"max_sessions"`
}

// VADConfig contains the activity level meter parameters
type VADConfig struct {
	FullScale float64 `yaml:"full_scale"` // RMS mapped to level 1.0
	Smoothing float64 `yaml:"smoothing"`  // weight of the newest block, 1 disables smoothing
}

// SegmenterConfig contains the hysteresis parameters
type SegmenterConfig struct {
	StartThreshold     float64 `yaml:"start_threshold"`
	EndThreshold       float64 `yaml:"end_threshold"`
	StartFrames        int     `yaml:"start_frames"`
	EndFrames          int     `yaml:"end_frames"`
	MinSpeechDuration  float64 `yaml:"min_speech_duration"`  // seconds
	MaxSpeechDuration  float64 `yaml:"max_speech_duration"`  // seconds
	PartialInterval    float64 `yaml:"partial_interval"`     // seconds, 0 disables partials
	PartialWindow      float64 `yaml:"partial_window"`       // seconds
	MinPartialDuration float64 `yaml:"min_partial_duration"` // seconds
}

// ConversationConfig describes the two parties of a conversation
type ConversationConfig struct {
	LanguageA string `yaml:"language_a"`
	LanguageB string `yaml:"language_b"`
	RoleA     string `yaml:"role_a"`
	RoleB     string `yaml:"role_b"`
}

// PipelineConfig contains the two-pass translation parameters
type PipelineConfig struct {
	FastModel         string `yaml:"fast_model"`
	QualityModel      string `yaml:"quality_model"`
	MaxQualityRetries int    `yaml:"max_quality_retries"`
	ContextTurns      int    `yaml:"context_turns"`
	StaleTimeout      int    `yaml:"stale_timeout"` // seconds
	MaxRecords        int    `yaml:"max_records"`
}

// CostControlConfig contains the Quality Pass gate parameters
type CostControlConfig struct {
	Language      string `yaml:"language"`
	MinChars      int    `yaml:"min_chars"`
	CarefulLength int    `yaml:"careful_length"`
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Language      string `yaml:"language"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// TranslationConfig contains completion API configuration
type TranslationConfig struct {
	BaseURL       string  `yaml:"base_url"`
	APIKey        string  `yaml:"api_key"`
	SystemPrompt  string  `yaml:"system_prompt"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	Timeout       int     `yaml:"timeout"` // seconds
	MaxRetries    int     `yaml:"max_retries"`
	MaxConcurrent int     `yaml:"max_concurrent"`

	// Separate limits keep background Quality Passes from queueing Fast Passes
	FastMaxConcurrent    int `yaml:"fast_max_concurrent"`
	QualityMaxConcurrent int `yaml:"quality_max_concurrent"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration with every tunable at its reference value.
// Provider endpoints and keys have no defaults.
func Default() Config {
	seg := segmenter.DefaultConfig()
	pipe := pipeline.DefaultConfig()
	cc := gate.DefaultCostControl()

	return Config{
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "0.0.0.0",
			Enabled: true,
		},
		Audio: AudioConfig{
			SampleRate:     seg.SampleRate,
			TickPeriodMs:   int(seg.TickPeriod / time.Millisecond),
			SessionTimeout: 300,
			MaxSessions:    100,
		},
		VAD: VADConfig{
			FullScale: 8000,
			Smoothing: 0.5,
		},
		Segmenter: SegmenterConfig{
			StartThreshold:     seg.StartThreshold,
			EndThreshold:       seg.EndThreshold,
			StartFrames:        seg.StartFrames,
			EndFrames:          seg.EndFrames,
			MinSpeechDuration:  seg.MinSpeechDuration.Seconds(),
			MaxSpeechDuration:  seg.MaxSpeechDuration.Seconds(),
			PartialInterval:    seg.PartialInterval.Seconds(),
			PartialWindow:      seg.PartialWindow.Seconds(),
			MinPartialDuration: float64(seg.MinPartialSamples) / float64(seg.SampleRate),
		},
		Conversation: ConversationConfig{
			LanguageA: "zh",
			LanguageB: "en",
			RoleA:     "patient",
			RoleB:     "doctor",
		},
		Pipeline: PipelineConfig{
			FastModel:         pipe.FastModel,
			QualityModel:      pipe.QualityModel,
			MaxQualityRetries: pipe.MaxQualityRetries,
			ContextTurns:      pipe.ContextTurns,
			StaleTimeout:      int(pipe.StaleTimeout / time.Second),
			MaxRecords:        pipe.MaxRecords,
		},
		CostControl: CostControlConfig{
			Language:      cc.Language,
			MinChars:      cc.MinChars,
			CarefulLength: cc.CarefulLength,
		},
		Quality: gate.DefaultWeights(),
		Transcription: TranscriptionConfig{
			Model:         "whisper-1",
			Timeout:       30,
			MaxRetries:    2,
			MaxConcurrent: 10,
		},
		Translation: TranslationConfig{
			Temperature:          0.2,
			Timeout:              30,
			MaxRetries:           2,
			MaxConcurrent:        10,
			FastMaxConcurrent:    10,
			QualityMaxConcurrent: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment and omitted keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.SegmenterSettings().Validate(); err != nil {
		return fmt.Errorf("segmenter config: %w", err)
	}

	if err := c.Conversation.Validate(); err != nil {
		return fmt.Errorf("conversation config: %w", err)
	}

	if err := c.PipelineSettings().Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Translation.Validate(); err != nil {
		return fmt.Errorf("translation config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.TickPeriodMs < 10 || a.TickPeriodMs > 200 {
		return fmt.Errorf("tick_period_ms must be between 10 and 200, got %d", a.TickPeriodMs)
	}

	if a.SampleRate*a.TickPeriodMs%1000 != 0 {
		return fmt.Errorf("tick_period_ms %d does not hold a whole number of samples at %d Hz", a.TickPeriodMs, a.SampleRate)
	}

	if a.SessionTimeout < 1 {
		return fmt.Errorf("session_timeout must be at least 1 second, got %d", a.SessionTimeout)
	}

	if a.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", a.MaxSessions)
	}

	return nil
}

// Validate validates level meter configuration
func (v *VADConfig) Validate() error {
	if v.FullScale <= 0 || v.FullScale > 32767 {
		return fmt.Errorf("full_scale must be in (0, 32767], got %f", v.FullScale)
	}

	if v.Smoothing <= 0 || v.Smoothing > 1 {
		return fmt.Errorf("smoothing must be in (0, 1], got %f", v.Smoothing)
	}

	return nil
}

// Validate validates the conversation parties
func (c *ConversationConfig) Validate() error {
	if c.LanguageA == "" || c.LanguageB == "" {
		return fmt.Errorf("language_a and language_b are required")
	}

	if glossary.SameLanguage(c.LanguageA, c.LanguageB) {
		return fmt.Errorf("language_a and language_b must differ, got %s and %s", c.LanguageA, c.LanguageB)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	if t.FastMaxConcurrent < 1 {
		return fmt.Errorf("fast_max_concurrent must be at least 1, got %d", t.FastMaxConcurrent)
	}

	if t.QualityMaxConcurrent < 1 {
		return fmt.Errorf("quality_max_concurrent must be at least 1, got %d", t.QualityMaxConcurrent)
	}

	return nil
}

// Validate validates completion API configuration
func (t *TranslationConfig) Validate() error {
	if t.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if t.Temperature < 0 || t.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", t.Temperature)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	if t.FastMaxConcurrent < 1 {
		return fmt.Errorf("fast_max_concurrent must be at least 1, got %d", t.FastMaxConcurrent)
	}

	if t.QualityMaxConcurrent < 1 {
		return fmt.Errorf("quality_max_concurrent must be at least 1, got %d", t.QualityMaxConcurrent)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// anything besides stdout and stderr is a file path
	if strings.TrimSpace(l.Output) == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// SegmenterSettings assembles the segmenter configuration from the audio and segmenter sections
func (c *Config) SegmenterSettings() segmenter.Config {
	s := c.Segmenter
	return segmenter.Config{
		SampleRate:        c.Audio.SampleRate,
		TickPeriod:        c.Audio.GetTickPeriod(),
		StartThreshold:    s.StartThreshold,
		EndThreshold:      s.EndThreshold,
		StartFrames:       s.StartFrames,
		EndFrames:         s.EndFrames,
		MinSpeechDuration: seconds(s.MinSpeechDuration),
		MaxSpeechDuration: seconds(s.MaxSpeechDuration),
		PartialInterval:   seconds(s.PartialInterval),
		PartialWindow:     seconds(s.PartialWindow),
		MinPartialSamples: int(s.MinPartialDuration * float64(c.Audio.SampleRate)),
	}
}

// TranslationModelLimits maps each pass's model to its concurrency limit.
// When both passes use one model, the Fast Pass limit applies.
func (c *Config) TranslationModelLimits() map[string]int {
	limits := map[string]int{c.Pipeline.QualityModel: c.Translation.QualityMaxConcurrent}
	limits[c.Pipeline.FastModel] = c.Translation.FastMaxConcurrent
	return limits
}

// PipelineSettings assembles the pipeline configuration from the pipeline,
// cost_control and quality sections
func (c *Config) PipelineSettings() pipeline.Config {
	p := c.Pipeline
	return pipeline.Config{
		FastModel:         p.FastModel,
		QualityModel:      p.QualityModel,
		MaxQualityRetries: p.MaxQualityRetries,
		ContextTurns:      p.ContextTurns,
		StaleTimeout:      time.Duration(p.StaleTimeout) * time.Second,
		MaxRecords:        p.MaxRecords,
		CostControl: gate.CostControl{
			Language:      c.CostControl.Language,
			MinChars:      c.CostControl.MinChars,
			CarefulLength: c.CostControl.CarefulLength,
		},
		Weights: c.Quality,
	}
}

// Redacted returns a copy safe to expose over the API
func (c *Config) Redacted() Config {
	out := *c
	if out.Transcription.APIKey != "" {
		out.Transcription.APIKey = "***"
	}
	if out.Translation.APIKey != "" {
		out.Translation.APIKey = "***"
	}
	out.HTTP.AllowedOrigins = append([]string(nil), c.HTTP.AllowedOrigins...)
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// GetTickPeriod returns the tick period as a time.Duration
func (a *AudioConfig) GetTickPeriod() time.Duration {
	return time.Duration(a.TickPeriodMs) * time.Millisecond
}

// GetSessionTimeoutDuration returns the idle session timeout as a time.Duration
func (a *AudioConfig) GetSessionTimeoutDuration() time.Duration {
	return time.Duration(a.SessionTimeout) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the completion timeout as a time.Duration
func (t *TranslationConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
