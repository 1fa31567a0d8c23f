package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the interpretation service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsClosed  prometheus.Counter
	SessionDuration prometheus.Histogram
	SessionResets   prometheus.Counter
	AudioBytes      prometheus.Counter
	FramesProcessed prometheus.Counter
	ActivityLevel   prometheus.Histogram

	// Segmenter metrics
	SegmentEvents   *prometheus.CounterVec
	ForcedCutoffs   prometheus.Counter
	SegmentDuration prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter

	// Model invocation metrics
	CompletionRequests *prometheus.CounterVec
	CompletionDuration *prometheus.HistogramVec
	CompletionRetries  prometheus.Counter

	// Pipeline metrics
	FastPassDuration     prometheus.Histogram
	FastPassFailures     prometheus.Counter
	CostControlDecisions *prometheus.CounterVec
	QualityOutcomes      *prometheus.CounterVec
	QualityRetries       prometheus.Counter
	QualityScore         prometheus.Histogram
	QualityLatency       prometheus.Histogram
	StaleResults         *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
	WebsocketMessages   *prometheus.CounterVec
}

// New creates all metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		// Session metrics
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "interp_active_sessions",
			Help: "Current number of active conversation sessions",
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "interp_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "interp_sessions_closed_total",
			Help: "Total number of sessions closed",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "interp_session_duration_seconds",
			Help:    "Duration of conversation sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),
		SessionResets: f.NewCounter(prometheus.CounterOpts{
			Name: "interp_session_resets_total",
			Help: "Total number of conversation resets",
		}),
		AudioBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "interp_audio_bytes_received_total",
			Help: "Total PCM bytes received from frame sources",
		}),
		FramesProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "interp_frames_processed_total",
			Help: "Total number of ticks delivered to segmenters",
		}),
		ActivityLevel: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "interp_activity_level",
			Help:    "Per-tick activity level",
			Buckets: prometheus.LinearBuckets(0, 0.05, 11), // 0.0 to 0.5
		}),

		// Segmenter metrics
		SegmentEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "interp_segment_events_total",
			Help: "Total number of segmenter events by type",
		}, []string{"event"}),
		ForcedCutoffs: f.NewCounter(prometheus.CounterOpts{
			Name: "interp_segment_forced_cutoffs_total",
			Help: "Total number of segments finalized by the maximum duration cutoff",
		}),
		SegmentDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "interp_segment_duration_seconds",
			Help:    "Audio duration of finalized segments",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 7), // 0.5s to 32s
		}),

		// Transcription metrics
		TranscriptionRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "interp_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: f.NewCounter(prometheus.CounterOpts{
			Name: "interp_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "interp_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "interp_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}),
		TranscriptionRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "interp_transcription_retries_total",
			Help: "Total number of transcription request retries",
		}),

		// Model invocation metrics
		CompletionRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "interp_completion_requests_total",
			Help: "Total number of model completion requests",
		}, []string{"model", "outcome"}),
		CompletionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "interp_completion_duration_seconds",
			Help:    "Duration of model completion requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"model"}),
		CompletionRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "interp_completion_retries_total",
			Help: "Total number of transport-level completion retries",
		}),

		// Pipeline metrics
		FastPassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "interp_fast_pass_duration_seconds",
			Help:    "Latency from Fast Pass start to provisional translation",
			Buckets: prometheus.ExponentialBuckets(0.1, 1.5, 10),
		}),
		FastPassFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "interp_fast_pass_failures_total",
			Help: "Total number of failed Fast Passes",
		}),
		CostControlDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "interp_cost_control_decisions_total",
			Help: "Cost-control decisions by reason",
		}, []string{"reason", "quality_pass"}),
		QualityOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "interp_quality_pass_outcomes_total",
			Help: "Quality Pass terminal statuses",
		}, []string{"status"}),
		QualityRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "interp_quality_pass_retries_total",
			Help: "Total number of quality-driven retries",
		}),
		QualityScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "interp_quality_score",
			Help:    "QualityGate scores of Quality Pass candidates",
			Buckets: prometheus.LinearBuckets(0, 10, 11), // 0 to 100
		}),
		QualityLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "interp_quality_pass_duration_seconds",
			Help:    "Latency from Quality Pass launch to application",
			Buckets: prometheus.ExponentialBuckets(0.5, 1.5, 10),
		}),
		StaleResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "interp_stale_results_total",
			Help: "Background results dropped by the race guard, by reason",
		}, []string{"reason"}),

		// HTTP API metrics
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "interp_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "interp_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "interp_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
		WebsocketMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "interp_websocket_messages_total",
			Help: "Websocket messages by direction and type",
		}, []string{"direction", "type"}),
	}
}

// RecordSessionCreated increments the created counter and the active gauge
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionClosed decrements the active gauge and records the duration
func (m *Metrics) RecordSessionClosed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionsClosed.Inc()
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionReset increments the reset counter
func (m *Metrics) RecordSessionReset() {
	if m == nil {
		return
	}
	m.SessionResets.Inc()
}

// RecordAudio records received PCM bytes
func (m *Metrics) RecordAudio(bytes int) {
	if m == nil {
		return
	}
	m.AudioBytes.Add(float64(bytes))
}

// RecordFrame records one tick and its activity level
func (m *Metrics) RecordFrame(level float64) {
	if m == nil {
		return
	}
	m.FramesProcessed.Inc()
	m.ActivityLevel.Observe(level)
}

// RecordSegmentEvent counts a segmenter event by name
func (m *Metrics) RecordSegmentEvent(event string) {
	if m == nil {
		return
	}
	m.SegmentEvents.WithLabelValues(event).Inc()
}

// RecordSegmentFinalized records the duration of a finalized segment
func (m *Metrics) RecordSegmentFinalized(durationSeconds float64, forced bool) {
	if m == nil {
		return
	}
	m.SegmentDuration.Observe(durationSeconds)
	if forced {
		m.ForcedCutoffs.Inc()
	}
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	if m == nil {
		return
	}
	m.TranscriptionRetries.Inc()
}

// RecordCompletion records one model invocation
func (m *Metrics) RecordCompletion(model string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.CompletionRequests.WithLabelValues(model, outcome).Inc()
	m.CompletionDuration.WithLabelValues(model).Observe(durationSeconds)
}

// RecordCompletionRetry increments the transport retry counter
func (m *Metrics) RecordCompletionRetry() {
	if m == nil {
		return
	}
	m.CompletionRetries.Inc()
}

// RecordFastPass records the Fast Pass latency and outcome
func (m *Metrics) RecordFastPass(durationSeconds float64, failed bool) {
	if m == nil {
		return
	}
	m.FastPassDuration.Observe(durationSeconds)
	if failed {
		m.FastPassFailures.Inc()
	}
}

// RecordCostControl counts a cost-control decision
func (m *Metrics) RecordCostControl(reason string, run bool) {
	if m == nil {
		return
	}
	m.CostControlDecisions.WithLabelValues(reason, strconv.FormatBool(run)).Inc()
}

// RecordQualityOutcome counts a terminal Quality Pass status
func (m *Metrics) RecordQualityOutcome(status string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.QualityOutcomes.WithLabelValues(status).Inc()
	if latencySeconds > 0 {
		m.QualityLatency.Observe(latencySeconds)
	}
}

// RecordQualityRetry increments the quality-driven retry counter
func (m *Metrics) RecordQualityRetry() {
	if m == nil {
		return
	}
	m.QualityRetries.Inc()
}

// ObserveQualityScore records a QualityGate score
func (m *Metrics) ObserveQualityScore(score int) {
	if m == nil {
		return
	}
	m.QualityScore.Observe(float64(score))
}

// RecordStaleResult counts a result vetoed by the race guard
func (m *Metrics) RecordStaleResult(reason string) {
	if m == nil {
		return
	}
	m.StaleResults.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

// RecordWebsocketMessage counts a websocket message
func (m *Metrics) RecordWebsocketMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WebsocketMessages.WithLabelValues(direction, msgType).Inc()
}
