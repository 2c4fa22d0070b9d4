package llm

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/gemini"
	"github.com/loqalabs/loqa-reader/internal/prompt"
)

// Generator is the content capability: given a built request it returns
// the raw text reply. Failures are reported as *reading.ContentError.
type Generator interface {
	Generate(ctx context.Context, apiKey string, req prompt.Request) (string, error)
}

// NewGenerator builds the backend selected by cfg.Mode.
func NewGenerator(cfg config.LLMConfig, client *gemini.Client) (Generator, error) {
	switch cfg.Mode {
	case "gemini":
		if client == nil {
			return nil, fmt.Errorf("gemini client required for llm mode gemini")
		}
		return NewGeminiGenerator(client, cfg.Model), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	case "mock", "":
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown llm mode %q", cfg.Mode)
	}
}
