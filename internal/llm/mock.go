package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/loqalabs/loqa-reader/internal/prompt"
)

type mockGenerator struct{}

// NewMockGenerator returns a generator that echoes a canned article. It
// fences retrieval replies the way the real capability sometimes does.
func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) Generate(ctx context.Context, _ string, req prompt.Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}

	source := "Pasted text"
	if req.UseRetrieval() {
		source = req.Source()
	}
	words := len(strings.Fields(req.Instructions()))
	payload, err := json.Marshal(map[string]any{
		prompt.FieldTitle:              "[mock] " + string(req.Configuration().Mode),
		prompt.FieldSummaryQuote:       "A mock article generated without calling the capability.",
		prompt.FieldContent:            "# Mock\n\n" + firstLine(req.Instructions()),
		prompt.FieldReadingTimeMinutes: words/200 + 1,
		prompt.FieldSourceName:         source,
	})
	if err != nil {
		return "", err
	}
	if req.UseRetrieval() {
		return "```json\n" + string(payload) + "\n```", nil
	}
	return string(payload), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
