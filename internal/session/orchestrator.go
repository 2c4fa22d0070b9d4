package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/loqalabs/loqa-reader/internal/history"
	"github.com/loqalabs/loqa-reader/internal/llm"
	"github.com/loqalabs/loqa-reader/internal/prompt"
	"github.com/loqalabs/loqa-reader/internal/protocol"
	"github.com/loqalabs/loqa-reader/internal/reading"
	"github.com/loqalabs/loqa-reader/internal/response"
	"github.com/loqalabs/loqa-reader/internal/speech"
)

const (
	WarnNarrationFailed   = "Narration could not be generated; the article is available as text."
	WarnNarrationDisabled = "Narration is disabled."

	maxIDAttempts = 3
)

var errNarrationDisabled = errors.New("narration disabled")

// History is the persistence the orchestrator needs.
type History interface {
	Append(ctx context.Context, article reading.Article) error
	Get(ctx context.Context, id string) (reading.Article, error)
	Clear(ctx context.Context) error
	APIKey(ctx context.Context) (string, error)
}

// Notifier announces processed articles. A nil Notifier is a no-op.
type Notifier interface {
	Notify(ctx context.Context, evt protocol.ArticleProcessed) error
}

type Deps struct {
	Builder   *prompt.Builder
	Generator llm.Generator
	// Speech may be nil when narration is disabled.
	Speech       *speech.Service
	Registry     *audio.Registry
	History      History
	Notifier     Notifier
	FallbackKey  string
	DefaultVoice reading.Voice
}

// Orchestrator sequences one article through content, normalization and
// speech, and owns the session state. A new Process cancels the one in
// flight.
type Orchestrator struct {
	deps  Deps
	log   *slog.Logger
	ids   reading.IDGenerator
	clock func() time.Time

	tracer    trace.Tracer
	processed metric.Int64Counter
	failed    metric.Int64Counter
	warnings  metric.Int64Counter

	mu         sync.Mutex
	state      State
	inflight   context.CancelFunc
	generation uint64
}

func New(deps Deps, log *slog.Logger) (*Orchestrator, error) {
	if deps.Generator == nil {
		return nil, errors.New("session: generator required")
	}
	if deps.History == nil {
		return nil, errors.New("session: history required")
	}
	if deps.Registry == nil {
		return nil, errors.New("session: audio registry required")
	}
	if deps.Builder == nil {
		deps.Builder = prompt.NewBuilder(prompt.DefaultTemperature)
	}
	if deps.DefaultVoice == "" {
		deps.DefaultVoice = reading.VoiceKore
	}
	o := &Orchestrator{
		deps:   deps,
		log:    log.With(slog.String("component", "session")),
		clock:  time.Now,
		tracer: otel.Tracer("github.com/loqalabs/loqa-reader/session"),
	}
	if err := o.initMetrics(); err != nil {
		o.log.Warn("failed to initialize metrics", slogError(err))
	}
	return o, nil
}

func (o *Orchestrator) initMetrics() error {
	meter := otel.Meter("github.com/loqalabs/loqa-reader/session")
	var err error
	if o.processed, err = meter.Int64Counter("reader.articles.processed",
		metric.WithDescription("Articles processed successfully")); err != nil {
		return err
	}
	if o.failed, err = meter.Int64Counter("reader.articles.failed",
		metric.WithDescription("Articles that failed the content step")); err != nil {
		return err
	}
	o.warnings, err = meter.Int64Counter("reader.speech.warnings",
		metric.WithDescription("Articles delivered without narration"))
	return err
}

type processOptions struct {
	voice reading.Voice
}

type ProcessOption func(*processOptions)

// WithVoice selects the narration voice for one Process call.
func WithVoice(v reading.Voice) ProcessOption {
	return func(p *processOptions) {
		if v != "" {
			p.voice = v
		}
	}
}

// Process turns input into an article. Failures of the content step are
// returned; a failed speech step yields OutcomePartial with a warning.
func (o *Orchestrator) Process(ctx context.Context, input string, cfg reading.Configuration, apiKey string, opts ...ProcessOption) (Result, error) {
	po := processOptions{voice: o.deps.DefaultVoice}
	for _, opt := range opts {
		opt(&po)
	}

	key, err := o.resolveKey(ctx, apiKey)
	if err != nil {
		o.recordError(err)
		return Result{}, err
	}
	if err := cfg.Validate(); err != nil {
		o.recordError(err)
		return Result{}, err
	}

	ctx, gen := o.begin(ctx)
	defer o.finish(gen)

	ctx, span := o.tracer.Start(ctx, "session.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("reader.language", string(cfg.Language)),
		attribute.String("reader.mode", string(cfg.Mode)),
		attribute.Bool("reader.retrieval", prompt.IsURL(input)),
	)

	article, err := o.content(ctx, key, input, cfg)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		category := reading.CategoryOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(category))
		o.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("category", string(category))))
		o.recordError(err)
		o.log.Warn("content step failed", slogError(err), slog.String("category", string(category)))
		return Result{}, err
	}

	now := o.clock()
	article.Date = reading.FormatDate(now, cfg.Language)
	article.CreatedAt = now.UTC()

	result := Result{Article: article, Outcome: OutcomeComplete}
	handle, warning := o.narrate(ctx, key, article, po.voice)
	if ctxErr := ctx.Err(); ctxErr != nil {
		o.deps.Registry.Release(handle.ID)
		return Result{}, ctxErr
	}
	if warning != "" {
		result.Outcome = OutcomePartial
		result.Warning = warning
		o.warnings.Add(ctx, 1)
	} else {
		result.Article.AudioURL = handle.URL
	}

	if err := o.commit(ctx, gen, now, &result); err != nil {
		o.deps.Registry.Release(handle.ID)
		if !errors.Is(err, context.Canceled) {
			o.recordError(err)
		}
		return Result{}, err
	}

	o.processed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(result.Outcome))))
	o.log.Info("article processed",
		slog.String("id", result.Article.ID),
		slog.String("outcome", string(result.Outcome)),
		slog.Bool("retrieval", article.OriginalURL != ""),
	)
	o.notify(ctx, result)
	return result, nil
}

func (o *Orchestrator) content(ctx context.Context, key, input string, cfg reading.Configuration) (reading.Article, error) {
	ctx, span := o.tracer.Start(ctx, "session.content")
	defer span.End()

	req, err := o.deps.Builder.Build(input, cfg)
	if err != nil {
		return reading.Article{}, err
	}
	raw, err := o.deps.Generator.Generate(ctx, key, req)
	if err != nil {
		if !errors.Is(err, reading.ErrContentRequest) {
			err = reading.NewContentError(reading.CategoryUnknown, err)
		}
		return reading.Article{}, err
	}
	fields, err := response.ParseRequest(raw, req)
	if err != nil {
		return reading.Article{}, err
	}
	return fields.Article(cfg, req.Source()), nil
}

// narrate runs the speech step. It never fails the flow: problems come
// back as a warning.
func (o *Orchestrator) narrate(ctx context.Context, key string, article reading.Article, voice reading.Voice) (audio.Handle, string) {
	if o.deps.Speech == nil {
		return audio.Handle{}, WarnNarrationDisabled
	}
	o.setSynthesizing(true)
	defer o.setSynthesizing(false)

	handle, err := o.deps.Speech.Synthesize(ctx, key, speech.NarrationText(article), voice)
	if err != nil {
		if ctx.Err() == nil {
			o.log.Warn("speech step failed", slogError(err), slog.String("voice", string(voice)))
		}
		return audio.Handle{}, WarnNarrationFailed
	}
	return handle, ""
}

// commit assigns the ID, appends to history and makes the article current,
// unless a newer Process superseded this one.
func (o *Orchestrator) commit(ctx context.Context, gen uint64, now time.Time, result *Result) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return context.Canceled
	}

	var err error
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		result.Article.ID = o.ids.Next(now)
		err = o.deps.History.Append(ctx, result.Article)
		if !errors.Is(err, history.ErrDuplicateID) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("save to history: %w", err)
	}

	o.replaceCurrentLocked(result.Article)
	o.state.LastWarning = result.Warning
	o.state.LastError = ""
	return nil
}

// Resynthesize narrates a history article again (the current one when id
// is empty). The new handle lives only in the session view; the stored
// article is unchanged. Unlike Process, a speech failure is returned.
func (o *Orchestrator) Resynthesize(ctx context.Context, id, apiKey string, voice reading.Voice) (reading.Article, error) {
	key, err := o.resolveKey(ctx, apiKey)
	if err != nil {
		o.recordError(err)
		return reading.Article{}, err
	}
	if o.deps.Speech == nil {
		return reading.Article{}, &reading.SynthesisError{Err: errNarrationDisabled}
	}
	if voice == "" {
		voice = o.deps.DefaultVoice
	}

	article, err := o.lookup(ctx, id)
	if err != nil {
		return reading.Article{}, err
	}

	ctx, span := o.tracer.Start(ctx, "session.resynthesize")
	defer span.End()

	o.setSynthesizing(true)
	wav, err := o.deps.Speech.Encode(ctx, key, speech.NarrationText(article), voice)
	o.setSynthesizing(false)
	if err != nil {
		span.RecordError(err)
		o.recordError(err)
		return reading.Article{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	previous := ""
	if o.state.Current != nil && o.state.Current.ID == article.ID {
		previous = o.state.Current.AudioURL
	}
	article.AudioURL = o.deps.Registry.Replace(previous, wav).URL
	o.replaceCurrentLocked(article)
	o.state.LastError = ""
	o.state.LastWarning = ""
	return article, nil
}

// Select makes a history article current, without audio.
func (o *Orchestrator) Select(ctx context.Context, id string) (reading.Article, error) {
	o.mu.Lock()
	if o.state.Current != nil && o.state.Current.ID == id {
		current := *o.state.Current
		o.mu.Unlock()
		return current, nil
	}
	o.mu.Unlock()

	article, err := o.deps.History.Get(ctx, id)
	if err != nil {
		return reading.Article{}, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.replaceCurrentLocked(article)
	return article, nil
}

// ClearHistory empties the history and the current view.
func (o *Orchestrator) ClearHistory(ctx context.Context) error {
	if err := o.deps.History.Clear(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Current != nil {
		o.deps.Registry.Release(o.state.Current.AudioURL)
	}
	o.state.Current = nil
	o.state.LastWarning = ""
	o.state.LastError = ""
	return nil
}

// Snapshot returns a copy of the session state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Close cancels any Process in flight.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight != nil {
		o.inflight()
		o.inflight = nil
	}
}

func (o *Orchestrator) lookup(ctx context.Context, id string) (reading.Article, error) {
	o.mu.Lock()
	if o.state.Current != nil && (id == "" || o.state.Current.ID == id) {
		current := *o.state.Current
		o.mu.Unlock()
		return current, nil
	}
	o.mu.Unlock()
	if id == "" {
		return reading.Article{}, reading.ErrArticleNotFound
	}
	return o.deps.History.Get(ctx, id)
}

func (o *Orchestrator) resolveKey(ctx context.Context, explicit string) (string, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return key, nil
	}
	stored, err := o.deps.History.APIKey(ctx)
	if err != nil {
		o.log.Warn("failed to read stored api key", slogError(err))
	}
	if key := strings.TrimSpace(stored); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(o.deps.FallbackKey); key != "" {
		return key, nil
	}
	return "", reading.ErrMissingKey
}

func (o *Orchestrator) begin(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight != nil {
		o.log.Info("superseding article in flight")
		o.inflight()
	}
	o.generation++
	o.inflight = cancel
	o.state.Processing = true
	o.state.LastError = ""
	return ctx, o.generation
}

func (o *Orchestrator) finish(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return
	}
	if o.inflight != nil {
		o.inflight()
		o.inflight = nil
	}
	o.state.Processing = false
	o.state.Synthesizing = false
}

func (o *Orchestrator) setSynthesizing(v bool) {
	o.mu.Lock()
	o.state.Synthesizing = v
	o.mu.Unlock()
}

// replaceCurrentLocked makes article current and revokes the audio of the
// article it supersedes.
func (o *Orchestrator) replaceCurrentLocked(article reading.Article) {
	if prev := o.state.Current; prev != nil && prev.AudioURL != "" && prev.AudioURL != article.AudioURL {
		o.deps.Registry.Release(prev.AudioURL)
	}
	o.state.Current = &article
}

func (o *Orchestrator) recordError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.LastError = userMessage(err)
}

func (o *Orchestrator) notify(ctx context.Context, result Result) {
	if o.deps.Notifier == nil {
		return
	}
	a := result.Article
	evt := protocol.ArticleProcessed{
		ArticleID:    a.ID,
		Title:        a.Title,
		SourceName:   a.SourceName,
		OriginalURL:  a.OriginalURL,
		LanguageCode: a.LanguageCode,
		Mode:         string(a.Config.Mode),
		Outcome:      string(result.Outcome),
		HasAudio:     a.AudioURL != "",
		Warning:      result.Warning,
		Timestamp:    a.CreatedAt,
	}
	if err := o.deps.Notifier.Notify(ctx, evt); err != nil {
		o.log.Warn("failed to announce article", slogError(err))
	}
}

// UserMessage is the sentence shown for a pipeline error. Provider text
// never reaches it.
func UserMessage(err error) string { return userMessage(err) }

func userMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, reading.ErrMissingKey):
		return "Add an API key to process articles."
	case errors.Is(err, reading.ErrEmptyInput):
		return "Paste a URL or some text first."
	case errors.Is(err, reading.ErrInvalidConfiguration):
		return "The reading options are not valid."
	case errors.Is(err, reading.ErrArticleNotFound):
		return "That article is no longer in the history."
	case errors.Is(err, reading.ErrSynthesis):
		return "Narration could not be generated."
	case errors.Is(err, reading.ErrContentRequest):
		return reading.CategoryOf(err).UserMessage()
	default:
		return reading.CategoryUnknown.UserMessage()
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
