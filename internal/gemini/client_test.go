package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loqalabs/loqa-reader/internal/reading"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestGenerateContentSendsKeyHeader(t *testing.T) {
	var gotPath, gotKey, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotKey, gotQuery = r.URL.Path, r.Header.Get("x-goog-api-key"), r.URL.RawQuery
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"hel"},{"text":"lo"}]}}]}`)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL+"/", time.Second, newLogger())
	resp, err := c.GenerateContent(context.Background(), "secret", "m1", GenerateRequest{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if gotPath != "/models/m1:generateContent" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotKey != "secret" || gotQuery != "" {
		t.Fatalf("key must travel in the header only, got header %q query %q", gotKey, gotQuery)
	}
	if resp.Text() != "hello" {
		t.Fatalf("unexpected text %q", resp.Text())
	}
}

func TestGenerateContentCategories(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   reading.Category
	}{
		{"quota", http.StatusTooManyRequests, `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`, reading.CategoryQuota},
		{"invalid key", http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`, reading.CategoryInvalidKey},
		{"overloaded", http.StatusServiceUnavailable, `{"error":{"code":503,"message":"The model is overloaded."}}`, reading.CategoryUnavailable},
		{"prompt blocked", http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`, reading.CategoryBlocked},
		{"candidate blocked", http.StatusOK, `{"candidates":[{"content":{"parts":[]},"finishReason":"PROHIBITED_CONTENT"}]}`, reading.CategoryBlocked},
		{"other", http.StatusBadRequest, `{"error":{"code":400,"message":"Invalid JSON payload"}}`, reading.CategoryUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			t.Cleanup(srv.Close)

			_, err := NewClient(srv.URL, time.Second, newLogger()).GenerateContent(context.Background(), "k", "m", GenerateRequest{})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := Category(err); got != tc.want {
				t.Fatalf("Category = %q, want %q (err %v)", got, tc.want, err)
			}
		})
	}
}

func TestCategoryTimeout(t *testing.T) {
	if got := Category(context.DeadlineExceeded); got != reading.CategoryUnavailable {
		t.Fatalf("unexpected %q", got)
	}
	if got := Category(errors.New("boom")); got != reading.CategoryUnknown {
		t.Fatalf("unexpected %q", got)
	}
}

func TestInlineDataSkipsTextParts(t *testing.T) {
	resp := &GenerateResponse{Candidates: []Candidate{{Content: Content{Parts: []Part{
		{Text: "preamble"},
		{InlineData: &Blob{MimeType: "audio/L16;rate=24000", Data: "AAA="}},
	}}}}}
	blob := resp.InlineData()
	if blob == nil || blob.Data != "AAA=" {
		t.Fatalf("unexpected blob %+v", blob)
	}
	if (&GenerateResponse{}).InlineData() != nil {
		t.Fatal("expected nil for empty response")
	}
}
