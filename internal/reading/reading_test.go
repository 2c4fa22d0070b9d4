package reading

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestLanguageCodeIsTotal(t *testing.T) {
	want := map[Language]string{
		French:   "FR",
		English:  "EN",
		Spanish:  "ES",
		German:   "DE",
		Italian:  "IT",
		Japanese: "JP",
	}
	seen := make(map[string]bool)
	for _, l := range Languages {
		code := LanguageCode(l)
		if code != want[l] {
			t.Fatalf("language %s: expected %s, got %s", l, want[l], code)
		}
		if LanguageCode(l) != code {
			t.Fatalf("language %s: mapping not deterministic", l)
		}
		seen[code] = true
	}
	if len(seen) != 6 {
		t.Fatalf("expected 6 distinct codes, got %d", len(seen))
	}
	if got := LanguageCode(Language("KLINGON")); got != "FR" {
		t.Fatalf("expected FR default, got %s", got)
	}
}

func TestParseEnums(t *testing.T) {
	if l, err := ParseLanguage(" english "); err != nil || l != English {
		t.Fatalf("parse language: %v %v", l, err)
	}
	if _, err := ParseTone("sarcastic"); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration, got %v", err)
	}
	if m, err := ParseMode("summary"); err != nil || m != ModeSummary {
		t.Fatalf("parse mode: %v %v", m, err)
	}
	if v, err := ParseVoice("zephyr"); err != nil || v != VoiceZephyr {
		t.Fatalf("parse voice: %v %v", v, err)
	}
	cfg := Configuration{Language: English, Tone: Tone("LOUD"), Mode: ModeFull}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown tone")
	}
	if err := DefaultConfiguration().Validate(); err != nil {
		t.Fatalf("default configuration invalid: %v", err)
	}
}

func TestIDGeneratorNeverRepeats(t *testing.T) {
	var gen IDGenerator
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	first := gen.Next(now)
	second := gen.Next(now)
	third := gen.Next(now.Add(-time.Second))
	if first == second || second == third || first == third {
		t.Fatalf("expected unique ids, got %s %s %s", first, second, third)
	}
}

func TestFormatDate(t *testing.T) {
	day := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	cases := map[Language]string{
		French:   "16 octobre 2026",
		English:  "October 16, 2026",
		Spanish:  "16 de octubre de 2026",
		German:   "16. Oktober 2026",
		Italian:  "16 ottobre 2026",
		Japanese: "2026年10月16日",
	}
	for lang, want := range cases {
		if got := FormatDate(day, lang); got != want {
			t.Fatalf("%s: expected %q, got %q", lang, want, got)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		status  int
		message string
		want    Category
	}{
		{http.StatusTooManyRequests, "", CategoryQuota},
		{http.StatusBadRequest, "RESOURCE_EXHAUSTED: quota exceeded", CategoryQuota},
		{http.StatusBadRequest, "API key not valid. Please pass a valid API key.", CategoryInvalidKey},
		{http.StatusForbidden, "", CategoryInvalidKey},
		{http.StatusServiceUnavailable, "The model is overloaded", CategoryUnavailable},
		{http.StatusOK, "prompt blocked: SAFETY", CategoryBlocked},
		{http.StatusBadRequest, "something odd", CategoryUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.status, tc.message); got != tc.want {
			t.Fatalf("classify(%d, %q): expected %s, got %s", tc.status, tc.message, tc.want, got)
		}
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("boom")
	parseErr := fmt.Errorf("normalize: %w", &ParseError{Reason: "missing title"})
	if !errors.Is(parseErr, ErrContentRequest) {
		t.Fatal("parse error must be a content request error")
	}
	if CategoryOf(parseErr) != CategoryParse {
		t.Fatalf("expected parse category, got %s", CategoryOf(parseErr))
	}

	contentErr := NewContentError(CategoryQuota, cause)
	if !errors.Is(contentErr, ErrContentRequest) || !errors.Is(contentErr, cause) {
		t.Fatal("content error must wrap sentinel and cause")
	}
	if contentErr.UserMessage() == cause.Error() {
		t.Fatal("user message must not leak provider text")
	}

	synthErr := &SynthesisError{Err: ErrNoAudio}
	if !errors.Is(synthErr, ErrSynthesis) || !errors.Is(synthErr, ErrNoAudio) {
		t.Fatal("synthesis error must wrap sentinel and cause")
	}
	if errors.Is(synthErr, ErrContentRequest) {
		t.Fatal("synthesis error is not a content error")
	}
}

func TestWithoutAudio(t *testing.T) {
	a := Article{ID: "1", AudioURL: "/audio/x.wav"}
	if a.WithoutAudio().AudioURL != "" {
		t.Fatal("expected audio url stripped")
	}
	if a.AudioURL == "" {
		t.Fatal("original must be untouched")
	}
}
