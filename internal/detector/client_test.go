package detector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAnalyzeSendsPromptAndReturnsRawBody(t *testing.T) {
	const payload = `{"status":"approved","analysis":{"risk":0.1}}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/analyze" {
			t.Errorf("path = %s, want /api/analyze", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if _, ok := r.Header["X-Api-Key"]; ok {
			t.Error("unexpected auth header without a configured key")
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("request body not JSON: %v", err)
		}
		if req.Prompt != "hello there" {
			t.Errorf("prompt = %q, want %q", req.Prompt, "hello there")
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, payload)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	raw, err := c.Analyze(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if string(raw) != payload {
		t.Errorf("body = %s, want %s", raw, payload)
	}
}

func TestAnalyzeSendsAPIKeyWhenConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("X-API-Key"); key != "detector-secret" {
			t.Errorf("X-API-Key = %q, want detector-secret", key)
		}
		io.WriteString(w, `{"status":"approved","analysis":{}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "detector-secret", 5*time.Second)
	if _, err := c.Analyze(context.Background(), "hi"); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
}

func TestAnalyzeNon2xxIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	_, err := c.Analyze(context.Background(), "hi")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
}

func TestAnalyzeConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Analyze(context.Background(), "hi")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
}

func TestAnalyzeHonorsContextCancellation(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	c := NewClient(srv.URL, "", 10*time.Second)
	_, err := c.Analyze(ctx, "hi")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
}
