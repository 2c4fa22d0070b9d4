package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"
)

type mockSynth struct {
	sampleRate int
}

// NewMockSynth returns half a second of silence for any request.
func NewMockSynth(sampleRate int) Synthesizer {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &mockSynth{sampleRate: sampleRate}
}

func (m *mockSynth) Synthesize(ctx context.Context, _ string, req Request) (Payload, error) {
	select {
	case <-ctx.Done():
		return Payload{}, ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}
	if req.Text == "" {
		return Payload{}, nil
	}
	silence := make([]byte, m.sampleRate) // 0.5s of 16-bit mono
	return Payload{
		MimeType: fmt.Sprintf("audio/L16;codec=pcm;rate=%d", m.sampleRate),
		Segments: []string{base64.StdEncoding.EncodeToString(silence)},
	}, nil
}
