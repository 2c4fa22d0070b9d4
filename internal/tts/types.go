package tts

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/gemini"
	"github.com/loqalabs/loqa-reader/internal/reading"
)

// Request asks for narration of Text with one of the preset voices.
type Request struct {
	Text  string
	Voice reading.Voice
}

// Payload is the audio returned by the capability: base64 encoded raw
// 16-bit mono PCM, possibly split into several segments.
type Payload struct {
	MimeType string
	Segments []string
}

func (p Payload) Empty() bool {
	for _, s := range p.Segments {
		if s != "" {
			return false
		}
	}
	return true
}

// Synthesizer is the speech capability.
type Synthesizer interface {
	Synthesize(ctx context.Context, apiKey string, req Request) (Payload, error)
}

// NewSynthesizer builds the backend selected by cfg.Mode.
func NewSynthesizer(cfg config.TTSConfig, client *gemini.Client) (Synthesizer, error) {
	switch cfg.Mode {
	case "gemini":
		if client == nil {
			return nil, fmt.Errorf("gemini client required for tts mode gemini")
		}
		return NewGeminiSynth(client, cfg.Model), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate)
	case "mock", "":
		return NewMockSynth(cfg.SampleRate), nil
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}
