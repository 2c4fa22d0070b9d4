package reading

import (
	"fmt"
	"strings"
	"time"
)

// Language is the target language of a processed article.
type Language string

const (
	French   Language = "FRENCH"
	English  Language = "ENGLISH"
	Spanish  Language = "SPANISH"
	German   Language = "GERMAN"
	Italian  Language = "ITALIAN"
	Japanese Language = "JAPANESE"
)

// Languages lists every supported target language.
var Languages = []Language{French, English, Spanish, German, Italian, Japanese}

// Tone is the register the rewritten text should adopt.
type Tone string

const (
	Neutral  Tone = "NEUTRAL"
	Formal   Tone = "FORMAL"
	Casual   Tone = "CASUAL"
	Academic Tone = "ACADEMIC"
)

var Tones = []Tone{Neutral, Formal, Casual, Academic}

// Mode selects between a faithful full translation and a condensed summary.
type Mode string

const (
	ModeFull    Mode = "FULL"
	ModeSummary Mode = "SUMMARY"
)

var Modes = []Mode{ModeFull, ModeSummary}

// Voice is one of the prebuilt narration voices.
type Voice string

const (
	VoiceKore   Voice = "Kore"
	VoicePuck   Voice = "Puck"
	VoiceCharon Voice = "Charon"
	VoiceFenrir Voice = "Fenrir"
	VoiceZephyr Voice = "Zephyr"
)

var Voices = []Voice{VoiceKore, VoicePuck, VoiceCharon, VoiceFenrir, VoiceZephyr}

// Configuration is chosen once by the user before submission and never
// mutated after it is attached to an article.
type Configuration struct {
	Language Language `json:"targetLanguage"`
	Tone     Tone     `json:"tone"`
	Mode     Mode     `json:"mode"`
}

func DefaultConfiguration() Configuration {
	return Configuration{Language: French, Tone: Neutral, Mode: ModeFull}
}

// Validate rejects values outside the closed enums.
func (c Configuration) Validate() error {
	if _, err := ParseLanguage(string(c.Language)); err != nil {
		return err
	}
	if _, err := ParseTone(string(c.Tone)); err != nil {
		return err
	}
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	return nil
}

func ParseLanguage(value string) (Language, error) {
	v := Language(strings.ToUpper(strings.TrimSpace(value)))
	for _, l := range Languages {
		if l == v {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: language %q", ErrInvalidConfiguration, value)
}

func ParseTone(value string) (Tone, error) {
	v := Tone(strings.ToUpper(strings.TrimSpace(value)))
	for _, t := range Tones {
		if t == v {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: tone %q", ErrInvalidConfiguration, value)
}

func ParseMode(value string) (Mode, error) {
	v := Mode(strings.ToUpper(strings.TrimSpace(value)))
	for _, m := range Modes {
		if m == v {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: mode %q", ErrInvalidConfiguration, value)
}

// ParseVoice matches voice names case-insensitively.
func ParseVoice(value string) (Voice, error) {
	v := strings.TrimSpace(value)
	for _, voice := range Voices {
		if strings.EqualFold(string(voice), v) {
			return voice, nil
		}
	}
	return "", fmt.Errorf("%w: voice %q", ErrInvalidConfiguration, value)
}

var languageCodes = map[Language]string{
	French:   "FR",
	English:  "EN",
	Spanish:  "ES",
	German:   "DE",
	Italian:  "IT",
	Japanese: "JP",
}

// LanguageCode returns the two letter code shown next to an article.
// Unknown languages fall back to FR.
func LanguageCode(l Language) string {
	if code, ok := languageCodes[l]; ok {
		return code
	}
	return "FR"
}

// Article is a processed article as displayed and kept in history.
type Article struct {
	ID                 string        `json:"id"`
	OriginalURL        string        `json:"originalUrl,omitempty"`
	Title              string        `json:"title"`
	SummaryQuote       string        `json:"summaryQuote"`
	Content            string        `json:"content"`
	ReadingTimeMinutes int           `json:"readingTimeMinutes"`
	SourceName         string        `json:"sourceName"`
	LanguageCode       string        `json:"languageCode"`
	Date               string        `json:"date"`
	CreatedAt          time.Time     `json:"createdAt"`
	Config             Configuration `json:"config"`
	// AudioURL points at a handle that only lives as long as the process.
	AudioURL string `json:"audioUrl,omitempty"`
}

// WithoutAudio returns a copy safe for durable storage.
func (a Article) WithoutAudio() Article {
	a.AudioURL = ""
	return a
}
