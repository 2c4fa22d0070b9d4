package response

import (
	"errors"
	"testing"

	"github.com/loqalabs/loqa-reader/internal/reading"
)

const sample = `{"title":"Le titre","summaryQuote":"Une accroche.","content":"# Titre\n\nParagraphe.","readingTimeMinutes":4,"sourceName":"Le Monde"}`

func TestParseFencedEqualsUnfenced(t *testing.T) {
	plain, err := Parse(sample, true)
	if err != nil {
		t.Fatalf("parse plain: %v", err)
	}
	variants := []string{
		"```json\n" + sample + "\n```",
		"```JSON" + sample + "```",
		"  ```\n" + sample + "\n```  \n",
	}
	for _, v := range variants {
		fenced, err := Parse(v, true)
		if err != nil {
			t.Fatalf("parse fenced %q: %v", v, err)
		}
		if fenced != plain {
			t.Fatalf("fenced parse differs: %+v vs %+v", fenced, plain)
		}
	}
	if plain.ReadingTimeMinutes != 4 || plain.SourceName != "Le Monde" {
		t.Fatalf("unexpected fields: %+v", plain)
	}
}

func TestParseStructuredDoesNotStripFences(t *testing.T) {
	if _, err := Parse("```json\n"+sample+"\n```", false); err == nil {
		t.Fatal("structured replies are schema enforced and must not be fence stripped")
	}
}

func TestParseFailures(t *testing.T) {
	cases := map[string]string{
		"empty":           "   ",
		"not json":        "Sorry, I cannot read that page.",
		"missing content": `{"title":"t","summaryQuote":"q","readingTimeMinutes":1,"sourceName":"s"}`,
		"blank title":     `{"title":" ","summaryQuote":"q","content":"c","readingTimeMinutes":1,"sourceName":"s"}`,
		"missing minutes": `{"title":"t","summaryQuote":"q","content":"c","sourceName":"s"}`,
		"bad minutes":     `{"title":"t","summaryQuote":"q","content":"c","readingTimeMinutes":"soon","sourceName":"s"}`,
	}
	for name, raw := range cases {
		_, err := Parse(raw, true)
		var pe *reading.ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("%s: expected ParseError, got %v", name, err)
		}
		if !errors.Is(err, reading.ErrContentRequest) {
			t.Fatalf("%s: parse error must be a content request error", name)
		}
	}
}

func TestParseAcceptsStringMinutes(t *testing.T) {
	raw := `{"title":"t","summaryQuote":"q","content":"c","readingTimeMinutes":"6","sourceName":"s"}`
	f, err := Parse(raw, false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.ReadingTimeMinutes != 6 {
		t.Fatalf("expected 6 minutes, got %d", f.ReadingTimeMinutes)
	}
}

func TestFieldsArticle(t *testing.T) {
	f, err := Parse(sample, false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := reading.Configuration{Language: reading.German, Tone: reading.Formal, Mode: reading.ModeSummary}

	fromText := f.Article(cfg, "")
	if fromText.OriginalURL != "" {
		t.Fatal("text input must not carry an original url")
	}
	if fromText.LanguageCode != "DE" {
		t.Fatalf("expected DE, got %s", fromText.LanguageCode)
	}
	if fromText.Config != cfg {
		t.Fatalf("config not attached: %+v", fromText.Config)
	}

	fromURL := f.Article(cfg, "https://example.com/a")
	if fromURL.OriginalURL != "https://example.com/a" {
		t.Fatalf("expected original url, got %q", fromURL.OriginalURL)
	}
}
