package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/skypro1111/interp-service/internal/config"
	"github.com/skypro1111/interp-service/internal/metrics"
	"github.com/skypro1111/interp-service/internal/server"
	"github.com/skypro1111/interp-service/internal/stream"
	"github.com/skypro1111/interp-service/internal/transcription"
	"github.com/skypro1111/interp-service/internal/translation"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "interp-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	envFile := flag.String("env", ".env", "Optional .env file with provider credentials")
	flag.Parse()

	// A missing .env file is fine; the environment may already be set
	envLoaded := godotenv.Load(*envFile) == nil

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
		slog.Bool("env_file_loaded", envLoaded),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.HTTP.Port),
		slog.String("http_address", cfg.HTTP.Address),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("tick_period_ms", cfg.Audio.TickPeriodMs),
		slog.Int("max_sessions", cfg.Audio.MaxSessions),
		slog.Float64("start_threshold", cfg.Segmenter.StartThreshold),
		slog.Float64("end_threshold", cfg.Segmenter.EndThreshold),
		slog.String("language_a", cfg.Conversation.LanguageA),
		slog.String("language_b", cfg.Conversation.LanguageB),
		slog.String("fast_model", cfg.Pipeline.FastModel),
		slog.String("quality_model", cfg.Pipeline.QualityModel),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("translation_base_url", cfg.Translation.BaseURL),
		slog.String("log_level", cfg.Logging.Level),
	)

	if !cfg.HTTP.Enabled {
		logger.Error("HTTP must be enabled: conversations are served over websocket")
		os.Exit(1)
	}

	// Initialize Prometheus metrics on a dedicated registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(registry)
	logger.Info("Prometheus metrics initialized")

	// Initialize provider clients
	transcriber, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Model:         cfg.Transcription.Model,
		Language:      cfg.Transcription.Language,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
	}, appMetrics)
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer transcriber.Close()

	translator, err := translation.NewClient(translation.Config{
		BaseURL:       cfg.Translation.BaseURL,
		APIKey:        cfg.Translation.APIKey,
		SystemPrompt:  cfg.Translation.SystemPrompt,
		Temperature:   cfg.Translation.Temperature,
		MaxTokens:     cfg.Translation.MaxTokens,
		Timeout:       cfg.Translation.GetTimeoutDuration(),
		MaxRetries:    cfg.Translation.MaxRetries,
		MaxConcurrent: cfg.Translation.MaxConcurrent,
		ModelLimits:   cfg.TranslationModelLimits(),
	}, appMetrics)
	if err != nil {
		logger.Error("Failed to create translation client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize session manager
	managerConfig := stream.ManagerConfig{
		Segmenter: cfg.SegmenterSettings(),
		Pipeline:  cfg.PipelineSettings(),
		Conversation: stream.Conversation{
			LanguageA: cfg.Conversation.LanguageA,
			LanguageB: cfg.Conversation.LanguageB,
			RoleA:     cfg.Conversation.RoleA,
			RoleB:     cfg.Conversation.RoleB,
		},
		MeterFullScale: cfg.VAD.FullScale,
		MeterSmoothing: cfg.VAD.Smoothing,
		SessionTimeout: cfg.Audio.GetSessionTimeoutDuration(),
		MaxSessions:    cfg.Audio.MaxSessions,
	}
	streamMgr, err := stream.NewManager(logger, managerConfig, transcriber, translator, appMetrics)
	if err != nil {
		logger.Error("Failed to create session manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session manager initialized",
		slog.Duration("session_timeout", managerConfig.SessionTimeout),
		slog.Duration("tick_period", managerConfig.Segmenter.TickPeriod),
	)

	// Initialize HTTP API server
	httpServer := server.NewHTTPServer(logger, cfg, streamMgr, transcriber, translator, appMetrics, registry)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new connections)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop session manager (close sessions and stop background routines)
	streamMgr.Stop()

	// Get final statistics
	tStats := transcriber.GetStats()
	cStats := translator.GetStats()
	logger.Info("Final service statistics",
		slog.Uint64("transcription_requests", tStats.TotalRequests),
		slog.Uint64("transcription_failures", tStats.FailedRequests),
		slog.Uint64("completion_requests", cStats.TotalRequests),
		slog.Uint64("completion_failures", cStats.FailedRequests),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
