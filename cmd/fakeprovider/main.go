// Command fakeprovider serves canned transcription and chat-completion
// responses so the service can run locally without provider credentials.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/skypro1111/interp-service/internal/audio"
)

type phrase struct {
	Text        string
	Language    string
	Translation string
}

// phrases are returned in rotation, one per transcription request
var phrases = []phrase{
	{"我頭很痛，已經三天了", "zh", "I have had a bad headache for three days."},
	{"How often do you take the medicine?", "en", "你多久吃一次藥？"},
	{"一天兩次，每次兩顆", "zh", "Twice a day, two tablets each time."},
	{"Are you allergic to penicillin?", "en", "你對盤尼西林過敏嗎？"},
	{"我不過敏", "zh", "I am not allergic."},
	{"好", "zh", "OK."},
}

type fakeProvider struct {
	logger  *slog.Logger
	latency time.Duration
	next    atomic.Uint64
}

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

func (p *fakeProvider) handleTranscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	samples, sampleRate, err := audio.DecodeWAV(audioData)
	if err != nil {
		p.logger.Warn("Rejected transcription upload",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()),
		)
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]any{"error": map[string]string{"message": err.Error()}})
		return
	}
	duration := audio.Duration(len(samples), sampleRate)

	time.Sleep(p.latency)

	ph := phrases[int(p.next.Add(1)-1)%len(phrases)]

	p.logger.Info("Transcription request",
		slog.String("filename", header.Filename),
		slog.String("model", r.FormValue("model")),
		slog.String("language_hint", r.FormValue("language")),
		slog.Int("sample_rate", sampleRate),
		slog.Duration("duration", duration),
		slog.String("text", ph.Text),
	)

	writeJSON(w, transcriptionResponse{Text: ph.Text, Language: ph.Language, Duration: duration.Seconds()})
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (p *fakeProvider) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]any{"error": map[string]string{"message": "invalid request body"}})
		return
	}

	time.Sleep(p.latency)

	var prompt string
	for _, m := range req.Messages {
		if m.Role == "user" {
			prompt = m.Content
		}
	}

	// Match the newest phrase in the prompt; context turns may quote older ones
	translation := "I did not catch that."
	best := -1
	for _, ph := range phrases {
		if i := strings.LastIndex(prompt, ph.Text); i > best {
			best = i
			translation = ph.Translation
		}
	}

	p.logger.Info("Completion request",
		slog.String("model", req.Model),
		slog.Int("prompt_length", len(prompt)),
		slog.String("translation", translation),
	)

	writeJSON(w, map[string]any{
		"id":      "chatcmpl-" + uuid.NewString(),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": translation},
			"finish_reason": "stop",
		}},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	latency := flag.Duration("latency", 200*time.Millisecond, "Simulated provider latency")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	p := &fakeProvider{logger: logger, latency: *latency}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/transcriptions", p.handleTranscription)
	mux.HandleFunc("/v1/chat/completions", p.handleChatCompletions)

	logger.Info("Fake provider starting",
		slog.String("address", *addr),
		slog.String("transcription_endpoint", fmt.Sprintf("http://localhost%s/v1/audio/transcriptions", *addr)),
		slog.String("translation_base_url", fmt.Sprintf("http://localhost%s/v1", *addr)),
	)

	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
