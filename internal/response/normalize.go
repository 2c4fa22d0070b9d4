package response

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-reader/internal/prompt"
	"github.com/loqalabs/loqa-reader/internal/reading"
)

// Fields are the article fields produced by the content capability.
type Fields struct {
	Title              string
	SummaryQuote       string
	Content            string
	ReadingTimeMinutes int
	SourceName         string
}

type wireFields struct {
	Title              *string     `json:"title"`
	SummaryQuote       *string     `json:"summaryQuote"`
	Content            *string     `json:"content"`
	ReadingTimeMinutes *flexMinute `json:"readingTimeMinutes"`
	SourceName         *string     `json:"sourceName"`
}

// flexMinute accepts 7, 7.0 and "7".
type flexMinute int

func (m *flexMinute) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("readingTimeMinutes is not a number: %w", err)
	}
	*m = flexMinute(int(f + 0.5))
	return nil
}

// StripFences removes a leading ``` or ```json marker and a trailing ```
// marker, along with surrounding whitespace.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = s[4:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Parse validates a capability reply. Replies produced in retrieval mode
// were not schema-enforced and may be fenced.
func Parse(raw string, retrievalModeUsed bool) (Fields, error) {
	text := strings.TrimSpace(raw)
	if retrievalModeUsed {
		text = StripFences(text)
	}
	if text == "" {
		return Fields{}, &reading.ParseError{Reason: "empty response"}
	}

	var wire wireFields
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&wire); err != nil {
		return Fields{}, &reading.ParseError{Reason: "invalid json", Err: err}
	}

	var missing []string
	requireString := func(name string, v *string) string {
		if v == nil || strings.TrimSpace(*v) == "" {
			missing = append(missing, name)
			return ""
		}
		return strings.TrimSpace(*v)
	}
	fields := Fields{
		Title:        requireString(prompt.FieldTitle, wire.Title),
		SummaryQuote: requireString(prompt.FieldSummaryQuote, wire.SummaryQuote),
		Content:      requireString(prompt.FieldContent, wire.Content),
		SourceName:   requireString(prompt.FieldSourceName, wire.SourceName),
	}
	if wire.ReadingTimeMinutes == nil {
		missing = append(missing, prompt.FieldReadingTimeMinutes)
	} else {
		fields.ReadingTimeMinutes = int(*wire.ReadingTimeMinutes)
	}
	if len(missing) > 0 {
		return Fields{}, &reading.ParseError{
			Reason: "missing required fields",
			Err:    errors.New(strings.Join(missing, ", ")),
		}
	}
	if fields.ReadingTimeMinutes < 0 {
		return Fields{}, &reading.ParseError{Reason: "negative readingTimeMinutes"}
	}
	return fields, nil
}

// ParseRequest parses the reply to req.
func ParseRequest(raw string, req prompt.Request) (Fields, error) {
	return Parse(raw, req.UseRetrieval())
}

// Article fills in the capability fields of an article. sourceURL is set
// only for retrieval requests.
func (f Fields) Article(cfg reading.Configuration, sourceURL string) reading.Article {
	return reading.Article{
		OriginalURL:        sourceURL,
		Title:              f.Title,
		SummaryQuote:       f.SummaryQuote,
		Content:            f.Content,
		ReadingTimeMinutes: f.ReadingTimeMinutes,
		SourceName:         f.SourceName,
		LanguageCode:       reading.LanguageCode(cfg.Language),
		Config:             cfg,
	}
}
