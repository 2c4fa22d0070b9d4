package tts

import (
	"context"

	"github.com/loqalabs/loqa-reader/internal/gemini"
)

const DefaultModel = "gemini-2.5-flash-preview-tts"

type geminiSynth struct {
	client *gemini.Client
	model  string
}

func NewGeminiSynth(client *gemini.Client, model string) Synthesizer {
	if model == "" {
		model = DefaultModel
	}
	return &geminiSynth{client: client, model: model}
}

func (g *geminiSynth) Synthesize(ctx context.Context, apiKey string, req Request) (Payload, error) {
	resp, err := g.client.GenerateContent(ctx, apiKey, g.model, gemini.GenerateRequest{
		Contents: []gemini.Content{{Parts: []gemini.Part{{Text: req.Text}}}},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &gemini.SpeechConfig{
				VoiceConfig: gemini.VoiceConfig{
					PrebuiltVoiceConfig: gemini.PrebuiltVoiceConfig{VoiceName: string(req.Voice)},
				},
			},
		},
	})
	if err != nil {
		return Payload{}, err
	}
	blob := resp.InlineData()
	if blob == nil {
		return Payload{}, nil
	}
	return Payload{MimeType: blob.MimeType, Segments: []string{blob.Data}}, nil
}
