package translation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestCompleteSendsChatRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Expected /v1/chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected bearer auth, got %q", r.Header.Get("Authorization"))
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("Expected model gpt-4o-mini, got %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "Translate: 你好" {
			t.Errorf("Unexpected messages: %+v", req.Messages)
		}

		fmt.Fprint(w, `{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"  Hello \n"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/v1")
	text, err := client.Complete(context.Background(), "Translate: 你好", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("Failed to complete: %v", err)
	}
	if text != "Hello" {
		t.Errorf("Expected Hello, got %q", text)
	}
	if client.GetStats().SuccessRequests != 1 {
		t.Error("Expected one successful request")
	}
}

func TestCompleteRetriesRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	text, err := client.Complete(context.Background(), "p", "m")
	if err != nil {
		t.Fatalf("Expected success after retry, got %v", err)
	}
	if text != "ok" {
		t.Errorf("Expected ok, got %q", text)
	}
	if client.GetStats().TotalRetries != 1 {
		t.Errorf("Expected 1 retry, got %d", client.GetStats().TotalRetries)
	}
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCalls  int32
		wantStatus int
	}{
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":{"message":"bad model"}}`, wantCalls: 1, wantStatus: 400},
		{name: "server error exhausts retries", status: http.StatusBadGateway, body: "upstream", wantCalls: 3, wantStatus: 502},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			_, err := client.Complete(context.Background(), "p", "m")
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Errorf("Expected %d calls, got %d", tt.wantCalls, got)
			}

			var apiErr *APIError
			if tt.wantStatus != 0 {
				if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.wantStatus {
					t.Errorf("Expected APIError %d, got %v", tt.wantStatus, err)
				}
			}
			if client.GetStats().FailedRequests != 1 {
				t.Error("Expected one failed request")
			}
		})
	}
}

func TestCompleteHonorsCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := newTestClient(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.Complete(ctx, "p", "m"); err == nil {
		t.Error("Expected error after context deadline")
	}
}

func TestModelLimitsIsolateModels(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model == "quality" {
			started <- struct{}{}
			<-release
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		BaseURL:       server.URL,
		APIKey:        "test-key",
		MaxConcurrent: 1,
		ModelLimits:   map[string]int{"fast": 1, "quality": 1},
	}, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := client.Complete(context.Background(), "p", "quality")
		done <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := client.Complete(ctx, "p", "fast"); err != nil {
		t.Errorf("Expected fast model to run while quality is busy, got %v", err)
	}

	// The quality lane is full
	queued, cancelQueued := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelQueued()
	if _, err := client.Complete(queued, "p", "quality"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected second quality call to wait for its lane, got %v", err)
	}
	if active := client.GetStats().ActiveRequests; active != 1 {
		t.Errorf("Expected 1 active request, got %d", active)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("Failed to complete quality call: %v", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{APIKey: "k"}, nil); err == nil {
		t.Error("Expected error for missing base URL")
	}
	if _, err := NewClient(Config{BaseURL: "http://x"}, nil); err == nil {
		t.Error("Expected error for missing API key")
	}
	if _, err := NewClient(Config{BaseURL: "http://x", APIKey: "k", ModelLimits: map[string]int{"m": 0}}, nil); err == nil {
		t.Error("Expected error for non-positive model limit")
	}
}
