package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/skypro1111/interp-service/internal/config"
	"github.com/skypro1111/interp-service/internal/metrics"
	"github.com/skypro1111/interp-service/internal/stream"
	"github.com/skypro1111/interp-service/internal/transcription"
	"github.com/skypro1111/interp-service/internal/translation"
)

const (
	serviceName    = "interp-service"
	serviceVersion = "1.0.0"
)

// HTTPServer provides the websocket endpoint plus HTTP API endpoints for
// monitoring and management
type HTTPServer struct {
	server    *http.Server
	handler   http.Handler
	logger    *slog.Logger
	config    *config.Config
	streamMgr *stream.Manager
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer

	// Provider clients; either may be nil
	transcriber *transcription.Client
	translator  *translation.Client

	origins map[string]struct{}

	// Server state
	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server. gatherer serves /metrics;
// nil uses the default Prometheus registry.
func NewHTTPServer(logger *slog.Logger, appConfig *config.Config, streamMgr *stream.Manager,
	transcriber *transcription.Client, translator *translation.Client,
	m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:      logger,
		config:      appConfig,
		streamMgr:   streamMgr,
		metrics:     m,
		gatherer:    gatherer,
		transcriber: transcriber,
		translator:  translator,
		origins:     make(map[string]struct{}),
		startTime:   time.Now(),
	}
	for _, origin := range appConfig.HTTP.AllowedOrigins {
		h.origins[strings.TrimSpace(origin)] = struct{}{}
	}

	// Create HTTP server with routes
	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	// No write timeout: websocket connections are long-lived
	h.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", appConfig.HTTP.Address, appConfig.HTTP.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return h
}

// Handler returns the routed handler, for embedding and tests
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session monitoring endpoints
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}", h.handleSessionDetail))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Conversation websocket; the upgrade hijacks the writer so no metrics wrapper
	mux.HandleFunc("/ws", h.handleWebsocket)

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	components := map[string]any{
		"session_manager": map[string]any{
			"status":          "running",
			"active_sessions": h.streamMgr.GetActiveSessionCount(),
		},
	}
	if h.transcriber != nil {
		stats := h.transcriber.GetStats()
		components["transcription"] = map[string]any{
			"status":          "running",
			"total_requests":  stats.TotalRequests,
			"success_rate":    stats.SuccessRate,
			"active_requests": stats.ActiveRequests,
		}
	}
	if h.translator != nil {
		stats := h.translator.GetStats()
		components["translation"] = map[string]any{
			"status":          "running",
			"total_requests":  stats.TotalRequests,
			"success_rate":    stats.SuccessRate,
			"active_requests": stats.ActiveRequests,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": components,
	})
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.streamMgr.GetAllSessions()
	infos := make([]stream.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, session.GetSessionInfo())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	})
}

// handleSessionDetail implements the /sessions/{id} endpoint
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if id == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	session, exists := h.streamMgr.GetSession(id)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session": session.GetSessionInfo(),
		"records": session.Records(),
	})
}

// handleConfig implements the /config endpoint; secrets are redacted
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := yaml.Marshal(h.config.Redacted())
	if err != nil {
		h.logger.Error("Failed to encode configuration", slog.String("error", err.Error()))
		http.Error(w, "Failed to encode configuration", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.Write(data)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var totals struct {
		SegmentsTranscribed uint64 `json:"segments_transcribed"`
		Translations        uint64 `json:"translations"`
		QualityLaunched     uint64 `json:"quality_launched"`
		QualityCompleted    uint64 `json:"quality_completed"`
		QualityFailed       uint64 `json:"quality_failed"`
		QualitySkipped      uint64 `json:"quality_skipped"`
		StaleDropped        uint64 `json:"stale_dropped"`
	}
	for _, session := range h.streamMgr.GetAllSessions() {
		info := session.GetSessionInfo()
		totals.SegmentsTranscribed += info.SegmentsTranscribed
		totals.Translations += info.Pipeline.Translations
		totals.QualityLaunched += info.Pipeline.QualityLaunched
		totals.QualityCompleted += info.Pipeline.QualityCompleted
		totals.QualityFailed += info.Pipeline.QualityFailed
		totals.QualitySkipped += info.Pipeline.QualitySkipped
		totals.StaleDropped += info.Pipeline.StaleDropped
	}

	stats := map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]any{
			"active_count": h.streamMgr.GetActiveSessionCount(),
		},
		"pipeline": totals,
	}
	if h.transcriber != nil {
		stats["transcription"] = h.transcriber.GetStats()
	}
	if h.translator != nil {
		stats["translation"] = h.translator.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service": "Medical Interpretation Service",
		"version": serviceVersion,
		"endpoints": map[string]any{
			"GET /":              "API documentation",
			"GET /health":        "Service health check",
			"GET /sessions":      "List all active conversation sessions",
			"GET /sessions/{id}": "Get session details and translation records",
			"GET /config":        "Get service configuration (secrets redacted)",
			"GET /stats":         "Get service statistics",
			"GET /metrics":       "Prometheus metrics",
			"GET /ws":            "Conversation websocket: binary PCM-16 in, JSON events out",
		},
		"timestamp": time.Now().UTC(),
	})
}
