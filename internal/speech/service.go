package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/loqalabs/loqa-reader/internal/reading"
	"github.com/loqalabs/loqa-reader/internal/tts"
)

const (
	DefaultMaxChars = 4000
	TruncatedMarker = "... (truncated)"
)

// Service turns text into a playable audio handle.
type Service struct {
	synth    tts.Synthesizer
	registry *audio.Registry
	format   audio.Format
	maxChars int
	log      *slog.Logger
}

type Option func(*Service)

func WithMaxChars(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxChars = n
		}
	}
}

func WithSampleRate(rate int) Option {
	return func(s *Service) {
		if rate > 0 {
			s.format.SampleRate = rate
		}
	}
}

func NewService(synth tts.Synthesizer, registry *audio.Registry, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		synth:    synth,
		registry: registry,
		format:   audio.SpeechFormat,
		maxChars: DefaultMaxChars,
		log:      log.With(slog.String("component", "speech")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NarrationText is what gets read aloud for an article.
func NarrationText(a reading.Article) string {
	return a.Title + "\n\n" + a.SummaryQuote + "\n\n" + a.Content
}

// Truncate cuts text to max characters and marks the cut.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max]) + TruncatedMarker
}

// Synthesize renders text with voice and registers the result. Every
// failure is a *reading.SynthesisError.
func (s *Service) Synthesize(ctx context.Context, apiKey, text string, voice reading.Voice) (audio.Handle, error) {
	wav, err := s.Encode(ctx, apiKey, text, voice)
	if err != nil {
		return audio.Handle{}, err
	}
	return s.registry.Acquire(wav), nil
}

// Encode renders text with voice and returns the wave container without
// registering it.
func (s *Service) Encode(ctx context.Context, apiKey, text string, voice reading.Voice) ([]byte, error) {
	ctx, span := otel.Tracer("github.com/loqalabs/loqa-reader/speech").Start(ctx, "speech.synthesize")
	defer span.End()

	text = Truncate(text, s.maxChars)
	span.SetAttributes(
		attribute.String("speech.voice", string(voice)),
		attribute.Int("speech.chars", utf8.RuneCountInString(text)),
	)

	payload, err := s.synth.Synthesize(ctx, apiKey, tts.Request{Text: text, Voice: voice})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesize")
		return nil, &reading.SynthesisError{Err: err}
	}
	if payload.Empty() {
		span.SetStatus(codes.Error, "no audio")
		return nil, &reading.SynthesisError{Err: reading.ErrNoAudio}
	}

	pcm, err := decodeSegments(payload.Segments)
	if err != nil {
		span.RecordError(err)
		return nil, &reading.SynthesisError{Err: err}
	}
	if len(pcm) == 0 {
		return nil, &reading.SynthesisError{Err: reading.ErrNoAudio}
	}

	format := s.format
	if rate := sampleRate(payload.MimeType); rate > 0 {
		format.SampleRate = rate
	}
	s.log.Debug("speech synthesized",
		slog.String("voice", string(voice)),
		slog.Int("pcm_bytes", len(pcm)),
		slog.Int("sample_rate", format.SampleRate),
	)
	return audio.EncodeWAVFormat(pcm, format), nil
}

func decodeSegments(segments []string) ([]byte, error) {
	var pcm []byte
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(seg)
		if err != nil {
			return nil, fmt.Errorf("decode audio segment %d: %w", i, err)
		}
		pcm = append(pcm, data...)
	}
	if len(pcm)%2 != 0 {
		return nil, errors.New("audio payload is not 16-bit aligned")
	}
	return pcm, nil
}

// sampleRate reads the rate parameter of an audio/L16 mime type, e.g.
// "audio/L16;codec=pcm;rate=24000".
func sampleRate(mimeType string) int {
	for _, part := range strings.Split(mimeType, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(key, "rate") {
			continue
		}
		if rate, err := strconv.Atoi(value); err == nil && rate > 0 {
			return rate
		}
	}
	return 0
}
