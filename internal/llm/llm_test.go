package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loqalabs/loqa-reader/internal/gemini"
	"github.com/loqalabs/loqa-reader/internal/prompt"
	"github.com/loqalabs/loqa-reader/internal/reading"
	"github.com/loqalabs/loqa-reader/internal/response"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

const article = `{"title":"t","summaryQuote":"q","content":"c","readingTimeMinutes":2,"sourceName":"s"}`

func textReply(text string) map[string]any {
	return map[string]any{
		"candidates": []any{map[string]any{
			"content":      map[string]any{"parts": []any{map[string]any{"text": text}}},
			"finishReason": "STOP",
		}},
	}
}

func TestGeminiGeneratorRequestShape(t *testing.T) {
	var captured []gemini.GenerateRequest
	var paths []string
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gemini.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		captured = append(captured, req)
		paths = append(paths, r.URL.Path)
		keys = append(keys, r.Header.Get("x-goog-api-key"))
		_ = json.NewEncoder(w).Encode(textReply(article))
	}))
	t.Cleanup(srv.Close)

	gen := NewGeminiGenerator(gemini.NewClient(srv.URL, 5*time.Second, newLogger()), "test-model")
	cfg := reading.DefaultConfiguration()

	structured, err := prompt.Build("some pasted text", cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	retrieval, err := prompt.Build("https://example.com/post", cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, req := range []prompt.Request{structured, retrieval} {
		raw, err := gen.Generate(context.Background(), "key-123", req)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if _, err := response.ParseRequest(raw, req); err != nil {
			t.Fatalf("parse reply: %v", err)
		}
	}

	if len(captured) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(captured))
	}
	if paths[0] != "/models/test-model:generateContent" {
		t.Fatalf("unexpected path %s", paths[0])
	}
	if keys[0] != "key-123" {
		t.Fatalf("expected api key header, got %q", keys[0])
	}

	s := captured[0]
	if len(s.Tools) != 0 || s.GenerationConfig.ResponseSchema == nil || s.GenerationConfig.ResponseMimeType != "application/json" {
		t.Fatalf("structured request must declare a schema and no tools: %+v", s)
	}
	r := captured[1]
	if len(r.Tools) != 1 || r.Tools[0].GoogleSearch == nil {
		t.Fatalf("retrieval request must enable search: %+v", r.Tools)
	}
	if r.GenerationConfig.ResponseSchema != nil || r.GenerationConfig.ResponseMimeType != "" {
		t.Fatalf("retrieval request must not declare a schema: %+v", r.GenerationConfig)
	}
	if r.GenerationConfig.Temperature == nil || *r.GenerationConfig.Temperature != prompt.DefaultTemperature {
		t.Fatalf("expected temperature %v", prompt.DefaultTemperature)
	}
}

func TestGeminiGeneratorErrorCategories(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   any
		want   reading.Category
	}{
		{"quota", http.StatusTooManyRequests, map[string]any{"error": map[string]any{"code": 429, "message": "Resource has been exhausted (e.g. check quota).", "status": "RESOURCE_EXHAUSTED"}}, reading.CategoryQuota},
		{"invalid key", http.StatusBadRequest, map[string]any{"error": map[string]any{"code": 400, "message": "API key not valid. Please pass a valid API key.", "status": "INVALID_ARGUMENT"}}, reading.CategoryInvalidKey},
		{"overloaded", http.StatusServiceUnavailable, map[string]any{"error": map[string]any{"code": 503, "message": "The model is overloaded.", "status": "UNAVAILABLE"}}, reading.CategoryUnavailable},
		{"blocked", http.StatusOK, map[string]any{"promptFeedback": map[string]any{"blockReason": "SAFETY"}}, reading.CategoryBlocked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(tc.body)
			}))
			defer srv.Close()

			gen := NewGeminiGenerator(gemini.NewClient(srv.URL, 5*time.Second, newLogger()), "")
			req, _ := prompt.Build("text", reading.DefaultConfiguration())
			_, err := gen.Generate(context.Background(), "key", req)
			var ce *reading.ContentError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ContentError, got %v", err)
			}
			if ce.Category != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, ce.Category)
			}
		})
	}
}

func TestGeminiGeneratorEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(textReply("  "))
	}))
	defer srv.Close()

	gen := NewGeminiGenerator(gemini.NewClient(srv.URL, 5*time.Second, newLogger()), "")
	req, _ := prompt.Build("text", reading.DefaultConfiguration())
	_, err := gen.Generate(context.Background(), "key", req)
	var pe *reading.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestMockGeneratorRepliesParse(t *testing.T) {
	gen := NewMockGenerator()
	for _, input := range []string{"hello there", "https://example.com"} {
		req, err := prompt.Build(input, reading.DefaultConfiguration())
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		raw, err := gen.Generate(context.Background(), "", req)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if _, err := response.ParseRequest(raw, req); err != nil {
			t.Fatalf("mock reply for %q does not parse: %v", input, err)
		}
	}
}

func TestNewExecGeneratorParsesCommand(t *testing.T) {
	if _, err := NewExecGenerator(""); err == nil {
		t.Fatal("expected error for empty command")
	}
	if _, err := NewExecGenerator(`echo "unterminated`); err == nil {
		t.Fatal("expected shell parse error")
	}
	if _, err := NewExecGenerator(`my-llm --model "fast one"`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
