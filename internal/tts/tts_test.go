package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/loqalabs/loqa-reader/internal/gemini"
	"github.com/loqalabs/loqa-reader/internal/reading"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestGeminiSynthRequestAndPayload(t *testing.T) {
	pcm := base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})
	var got gemini.GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{map[string]any{
					"inlineData": map[string]any{"mimeType": "audio/L16;codec=pcm;rate=24000", "data": pcm},
				}}},
			}},
		})
	}))
	defer srv.Close()

	synth := NewGeminiSynth(gemini.NewClient(srv.URL, 5*time.Second, newLogger()), "")
	payload, err := synth.Synthesize(context.Background(), "key", Request{Text: "Bonjour", Voice: reading.VoicePuck})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(payload.Segments) != 1 || payload.Segments[0] != pcm {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	cfg := got.GenerationConfig
	if cfg == nil || len(cfg.ResponseModalities) != 1 || cfg.ResponseModalities[0] != "AUDIO" {
		t.Fatalf("expected audio modality, got %+v", cfg)
	}
	if cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Puck" {
		t.Fatalf("unexpected voice %+v", cfg.SpeechConfig)
	}
	if got.Contents[0].Parts[0].Text != "Bonjour" {
		t.Fatalf("unexpected text %+v", got.Contents)
	}
}

func TestGeminiSynthWithoutAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"candidates": []any{map[string]any{
			"content": map[string]any{"parts": []any{map[string]any{"text": "no audio today"}}},
		}}})
	}))
	defer srv.Close()

	synth := NewGeminiSynth(gemini.NewClient(srv.URL, 5*time.Second, newLogger()), "")
	payload, err := synth.Synthesize(context.Background(), "key", Request{Text: "x", Voice: reading.VoiceKore})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if !payload.Empty() {
		t.Fatalf("expected empty payload, got %+v", payload)
	}
}

func TestMockSynthReturnsSilence(t *testing.T) {
	payload, err := NewMockSynth(24000).Synthesize(context.Background(), "", Request{Text: "hello", Voice: reading.VoiceKore})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	data, err := base64.StdEncoding.DecodeString(payload.Segments[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(data) != 24000 {
		t.Fatalf("expected 24000 bytes, got %d", len(data))
	}
}

func TestExecSynthReadsSegments(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	script := `sh -c 'cat >/dev/null; echo "{\"pcm_base64\":\"AQI=\"}"; echo "{\"pcm_base64\":\"AwQ=\",\"final\":true}"'`
	synth, err := NewExecSynth(script, 24000)
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	payload, err := synth.Synthesize(context.Background(), "", Request{Text: "hi", Voice: reading.VoiceCharon})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(payload.Segments) != 2 || payload.Segments[0] != "AQI=" || payload.Segments[1] != "AwQ=" {
		t.Fatalf("unexpected segments: %+v", payload.Segments)
	}
}
