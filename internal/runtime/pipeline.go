package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/gemini"
	"github.com/loqalabs/loqa-reader/internal/history"
	"github.com/loqalabs/loqa-reader/internal/llm"
	"github.com/loqalabs/loqa-reader/internal/prompt"
	"github.com/loqalabs/loqa-reader/internal/reading"
	"github.com/loqalabs/loqa-reader/internal/router"
	"github.com/loqalabs/loqa-reader/internal/session"
	"github.com/loqalabs/loqa-reader/internal/speech"
	"github.com/loqalabs/loqa-reader/internal/tts"
)

// Pipeline is the in-process reader: orchestrator plus the resources it
// owns. Both the daemon and the CLI build one.
type Pipeline struct {
	Orchestrator *session.Orchestrator
	History      *history.Store
	Registry     *audio.Registry
	// Speech is nil when tts is disabled.
	Speech       *speech.Service
	Defaults     reading.Configuration
	DefaultVoice reading.Voice
}

func NewPipeline(ctx context.Context, cfg config.Config, notifier session.Notifier, logger *slog.Logger) (*Pipeline, error) {
	defaults, voice, err := sessionDefaults(cfg)
	if err != nil {
		return nil, err
	}

	store, err := history.Open(ctx, cfg.History, logger)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	var llmClient *gemini.Client
	if cfg.LLM.Mode == "gemini" {
		llmClient = gemini.NewClient(cfg.LLM.Endpoint, millis(cfg.LLM.TimeoutMS), logger)
	}
	generator, err := llm.NewGenerator(cfg.LLM, llmClient)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("llm backend: %w", err)
	}

	registry := audio.NewRegistry(cfg.Audio.URLPrefix, cfg.Audio.MaxHandles, logger)

	var narrator *speech.Service
	if cfg.TTS.Enabled {
		var ttsClient *gemini.Client
		if cfg.TTS.Mode == "gemini" {
			ttsClient = gemini.NewClient(cfg.TTS.Endpoint, millis(cfg.TTS.TimeoutMS), logger)
		}
		synth, err := tts.NewSynthesizer(cfg.TTS, ttsClient)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("tts backend: %w", err)
		}
		narrator = speech.NewService(synth, registry, logger,
			speech.WithMaxChars(cfg.TTS.MaxChars),
			speech.WithSampleRate(cfg.TTS.SampleRate),
		)
	}

	orch, err := session.New(session.Deps{
		Builder:      prompt.NewBuilder(cfg.LLM.Temperature),
		Generator:    generator,
		Speech:       narrator,
		Registry:     registry,
		History:      store,
		Notifier:     notifier,
		FallbackKey:  cfg.Session.APIKey,
		DefaultVoice: voice,
	}, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	logger.Info("pipeline ready",
		slog.String("llm_mode", cfg.LLM.Mode),
		slog.Bool("tts_enabled", cfg.TTS.Enabled),
		slog.String("history", cfg.History.RetentionMode),
	)

	return &Pipeline{
		Orchestrator: orch,
		History:      store,
		Registry:     registry,
		Speech:       narrator,
		Defaults:     defaults,
		DefaultVoice: voice,
	}, nil
}

// Close cancels work in flight, revokes every audio handle and closes the
// history.
func (p *Pipeline) Close() error {
	p.Orchestrator.Close()
	p.Registry.Close()
	return p.History.Close()
}

// sessionDefaults reads the configured reading options and voice.
func sessionDefaults(cfg config.Config) (reading.Configuration, reading.Voice, error) {
	defaults, voice, err := router.Resolve(reading.DefaultConfiguration(),
		cfg.Session.DefaultLanguage, cfg.Session.DefaultTone, cfg.Session.DefaultMode, cfg.TTS.Voice)
	if err != nil {
		return defaults, voice, fmt.Errorf("session defaults: %w", err)
	}
	return defaults, voice, nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
