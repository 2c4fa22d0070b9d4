package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-reader/internal/bus"
	"github.com/loqalabs/loqa-reader/internal/protocol"
	"github.com/loqalabs/loqa-reader/internal/reading"
	"github.com/loqalabs/loqa-reader/internal/session"
)

const processTimeout = 3 * time.Minute

// Processor is the slice of the orchestrator the bus bridge drives.
type Processor interface {
	Process(ctx context.Context, input string, cfg reading.Configuration, apiKey string, opts ...session.ProcessOption) (session.Result, error)
}

// Service bridges the orchestrator onto the bus: it answers process
// requests and announces processed articles.
type Service struct {
	bus      *bus.Client
	proc     Processor
	defaults reading.Configuration
	logger   *slog.Logger
	sub      *nats.Subscription
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewService(parent context.Context, busClient *bus.Client, proc Processor, defaults reading.Configuration, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:      busClient,
		proc:     proc,
		defaults: defaults,
		logger:   logger.With(slog.String("component", "router")),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetProcessor attaches the orchestrator once it exists. The notifier side
// of the service is needed before that.
func (s *Service) SetProcessor(proc Processor) { s.proc = proc }

func (s *Service) Start() error {
	if s.proc == nil {
		return errors.New("router: processor not set")
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectArticleProcess, s.handleProcess)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.sub != nil && s.bus.Healthy()
}

// Notify publishes an ArticleProcessed event.
func (s *Service) Notify(_ context.Context, evt protocol.ArticleProcessed) error {
	return s.bus.PublishJSON(protocol.SubjectArticleProcessed, evt)
}

func (s *Service) handleProcess(msg *nats.Msg) {
	var req protocol.ProcessRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("router failed to decode process request", slogError(err))
		s.respond(msg, protocol.ProcessReply{Error: "bad_request", Message: "request is not valid JSON"})
		return
	}

	cfg, voice, err := Resolve(s.defaults, req.Language, req.Tone, req.Mode, req.Voice)
	if err != nil {
		s.respond(msg, protocol.ProcessReply{Error: "bad_request", Message: err.Error()})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, processTimeout)
		defer cancel()

		res, err := s.proc.Process(ctx, req.Input, cfg, req.APIKey, session.WithVoice(voice))
		if err != nil {
			s.respond(msg, protocol.ProcessReply{
				Error:   ErrorCode(err),
				Message: session.UserMessage(err),
			})
			return
		}
		s.respond(msg, protocol.ProcessReply{
			ArticleID: res.Article.ID,
			Title:     res.Article.Title,
			Outcome:   string(res.Outcome),
			AudioURL:  res.Article.AudioURL,
			Warning:   res.Warning,
		})
	}()
}

func (s *Service) respond(msg *nats.Msg, reply protocol.ProcessReply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Warn("router failed to encode reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("router failed to respond", slogError(err))
	}
}

// Resolve overlays the provided option names on defaults. Empty values
// keep the default.
func Resolve(defaults reading.Configuration, language, tone, mode, voice string) (reading.Configuration, reading.Voice, error) {
	cfg := defaults
	var err error
	if language != "" {
		if cfg.Language, err = reading.ParseLanguage(language); err != nil {
			return cfg, "", err
		}
	}
	if tone != "" {
		if cfg.Tone, err = reading.ParseTone(tone); err != nil {
			return cfg, "", err
		}
	}
	if mode != "" {
		if cfg.Mode, err = reading.ParseMode(mode); err != nil {
			return cfg, "", err
		}
	}
	var v reading.Voice
	if voice != "" {
		if v, err = reading.ParseVoice(voice); err != nil {
			return cfg, "", err
		}
	}
	return cfg, v, nil
}

// ErrorCode names the failure of a pipeline error for API replies.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, reading.ErrMissingKey):
		return "missing_key"
	case errors.Is(err, reading.ErrEmptyInput), errors.Is(err, reading.ErrInvalidConfiguration):
		return "bad_request"
	case errors.Is(err, reading.ErrArticleNotFound):
		return "not_found"
	case errors.Is(err, reading.ErrSynthesis):
		return "synthesis"
	case errors.Is(err, context.Canceled):
		return "superseded"
	default:
		return string(reading.CategoryOf(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
