package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/loqalabs/loqa-reader/internal/prompt"
	"github.com/loqalabs/loqa-reader/internal/reading"
)

// execGenerator pipes the request as JSON to a local command and reads a
// single JSON object back.
type execGenerator struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Instructions string         `json:"instructions"`
	Schema       *prompt.Schema `json:"schema,omitempty"`
	UseRetrieval bool           `json:"use_retrieval"`
	Source       string         `json:"source,omitempty"`
	Temperature  float64        `json:"temperature"`
	APIKey       string         `json:"api_key,omitempty"`
}

type execResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
	Status  int    `json:"status,omitempty"`
}

func NewExecGenerator(command string) (Generator, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse llm command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("llm command empty")
	}
	return &execGenerator{cmd: args}, nil
}

func (g *execGenerator) Generate(ctx context.Context, apiKey string, req prompt.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	input, err := json.Marshal(execRequest{
		Instructions: req.Instructions(),
		Schema:       req.Schema(),
		UseRetrieval: req.UseRetrieval(),
		Source:       req.Source(),
		Temperature:  req.Temperature(),
		APIKey:       apiKey,
	})
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, g.cmd[0], g.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return "", reading.NewContentError(reading.CategoryUnavailable, fmt.Errorf("llm exec command failed: %w", err))
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return "", &reading.ParseError{Reason: "decode llm exec response", Err: err}
	}
	if resp.Error != "" {
		return "", reading.NewContentError(reading.Classify(resp.Status, resp.Error), fmt.Errorf("llm exec: %s", resp.Error))
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", &reading.ParseError{Reason: "empty response"}
	}
	return resp.Content, nil
}
