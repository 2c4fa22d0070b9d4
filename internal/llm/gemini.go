package llm

import (
	"context"
	"strings"

	"github.com/loqalabs/loqa-reader/internal/gemini"
	"github.com/loqalabs/loqa-reader/internal/prompt"
	"github.com/loqalabs/loqa-reader/internal/reading"
)

const DefaultModel = "gemini-2.5-flash"

type geminiGenerator struct {
	client *gemini.Client
	model  string
}

func NewGeminiGenerator(client *gemini.Client, model string) Generator {
	if model == "" {
		model = DefaultModel
	}
	return &geminiGenerator{client: client, model: model}
}

func (g *geminiGenerator) Generate(ctx context.Context, apiKey string, req prompt.Request) (string, error) {
	resp, err := g.client.GenerateContent(ctx, apiKey, g.model, contentRequest(req))
	if err != nil {
		return "", reading.NewContentError(gemini.Category(err), err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &reading.ParseError{Reason: "empty response"}
	}
	return text, nil
}

// contentRequest maps a prompt request onto the wire. Retrieval requests
// enable the search tool and never declare a schema.
func contentRequest(req prompt.Request) gemini.GenerateRequest {
	temperature := req.Temperature()
	out := gemini.GenerateRequest{
		Contents: []gemini.Content{{
			Role:  "user",
			Parts: []gemini.Part{{Text: req.Instructions()}},
		}},
		GenerationConfig: &gemini.GenerationConfig{Temperature: &temperature},
	}
	switch r := req.(type) {
	case prompt.FreeTextJSONRequest:
		out.Tools = []gemini.Tool{{GoogleSearch: &gemini.GoogleSearch{}}}
	case prompt.StructuredRequest:
		out.GenerationConfig.ResponseMimeType = "application/json"
		out.GenerationConfig.ResponseSchema = r.Schema()
	}
	return out
}
