package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/loqalabs/loqa-reader/internal/reading"
	"github.com/loqalabs/loqa-reader/internal/router"
	"github.com/loqalabs/loqa-reader/internal/session"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type processBody struct {
	Input    string `json:"input"`
	Language string `json:"language"`
	Tone     string `json:"tone"`
	Mode     string `json:"mode"`
	Voice    string `json:"voice"`
	APIKey   string `json:"apiKey"`
}

type audioBody struct {
	Voice  string `json:"voice"`
	APIKey string `json:"apiKey"`
}

type keyBody struct {
	APIKey string `json:"apiKey"`
}

// API serves the pipeline over HTTP.
type API struct {
	pipeline *Pipeline
	limiter  *rateLimiter
	metrics  http.Handler
	ready    func() bool
	log      *slog.Logger
}

func NewAPI(p *Pipeline, ratePerMinute int, metrics http.Handler, ready func() bool, log *slog.Logger) *API {
	log = log.With(slog.String("component", "api"))
	if ready == nil {
		ready = func() bool { return true }
	}
	return &API{
		pipeline: p,
		limiter:  newRateLimiter(ratePerMinute, log),
		metrics:  metrics,
		ready:    ready,
		log:      log,
	}
}

func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), a.requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/readyz", a.handleReady)
	if a.metrics != nil {
		r.GET("/metrics", gin.WrapH(a.metrics))
	}

	api := r.Group("/api")
	api.POST("/articles", a.limiter.middleware(), a.handleProcess)
	api.GET("/articles", a.handleList)
	api.DELETE("/articles", a.handleClear)
	api.GET("/articles/export", a.handleExport)
	api.POST("/articles/import", a.handleImport)
	api.GET("/articles/:id", a.handleSelect)
	api.POST("/articles/:id/audio", a.limiter.middleware(), a.handleAudio)
	api.PUT("/key", a.handleSetKey)
	api.DELETE("/key", a.handleClearKey)
	api.GET("/session", a.handleSession)

	r.GET(strings.TrimSuffix(a.pipeline.Registry.Prefix(), "/")+"/:file", a.handleStream)
	return r
}

func (a *API) handleReady(c *gin.Context) {
	if a.ready() {
		c.String(http.StatusOK, "ready")
		return
	}
	c.String(http.StatusServiceUnavailable, "not ready")
}

func (a *API) handleProcess(c *gin.Context) {
	var body processBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "Request body must be JSON."})
		return
	}
	cfg, voice, err := router.Resolve(a.pipeline.Defaults, body.Language, body.Tone, body.Mode, body.Voice)
	if err != nil {
		a.fail(c, err)
		return
	}
	res, err := a.pipeline.Orchestrator.Process(c.Request.Context(), body.Input, cfg, body.APIKey, session.WithVoice(voice))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (a *API) handleList(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "limit must be a non-negative integer."})
			return
		}
		limit = n
	}
	articles, err := a.pipeline.History.List(c.Request.Context(), limit)
	if err != nil {
		a.fail(c, err)
		return
	}
	if articles == nil {
		articles = []reading.Article{}
	}
	c.JSON(http.StatusOK, gin.H{"articles": articles})
}

func (a *API) handleSelect(c *gin.Context) {
	article, err := a.pipeline.Orchestrator.Select(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (a *API) handleAudio(c *gin.Context) {
	var body audioBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "Request body must be JSON."})
			return
		}
	}
	var voice reading.Voice
	if body.Voice != "" {
		v, err := reading.ParseVoice(body.Voice)
		if err != nil {
			a.fail(c, err)
			return
		}
		voice = v
	}
	article, err := a.pipeline.Orchestrator.Resynthesize(c.Request.Context(), c.Param("id"), body.APIKey, voice)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (a *API) handleClear(c *gin.Context) {
	if err := a.pipeline.Orchestrator.ClearHistory(c.Request.Context()); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleExport(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", `attachment; filename="reader-history.json"`)
	if err := a.pipeline.History.Export(c.Request.Context(), c.Writer); err != nil {
		a.log.Error("export failed", slogError(err))
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}

func (a *API) handleImport(c *gin.Context) {
	n, err := a.pipeline.History.Import(c.Request.Context(), c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "The file is not a reader history export."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

func (a *API) handleSetKey(c *gin.Context) {
	var body keyBody
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.APIKey) == "" {
		c.JSON(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "apiKey must not be empty."})
		return
	}
	if err := a.pipeline.History.SetAPIKey(c.Request.Context(), strings.TrimSpace(body.APIKey)); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleClearKey(c *gin.Context) {
	if err := a.pipeline.History.ClearAPIKey(c.Request.Context()); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, a.pipeline.Orchestrator.Snapshot())
}

func (a *API) handleStream(c *gin.Context) {
	data, err := a.pipeline.Registry.Open(c.Param("file"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorBody{Error: "not_found", Message: "This audio is no longer available."})
		return
	}
	if info, err := audio.Inspect(data); err == nil {
		c.Header("X-Audio-Duration-Ms", strconv.FormatInt(info.Duration.Milliseconds(), 10))
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "audio/wav", data)
}

func (a *API) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Warn("request failed", slog.String("path", c.FullPath()), slogError(err))
	}
	c.JSON(status, errorBody{Error: router.ErrorCode(err), Message: session.UserMessage(err)})
}

func statusFor(err error) int {
	var pe *reading.ParseError
	var ce *reading.ContentError
	switch {
	case errors.Is(err, reading.ErrMissingKey):
		return http.StatusUnauthorized
	case errors.Is(err, reading.ErrEmptyInput), errors.Is(err, reading.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, reading.ErrArticleNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled):
		return http.StatusConflict
	case errors.As(err, &pe):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ce):
		switch ce.Category {
		case reading.CategoryQuota:
			return http.StatusTooManyRequests
		case reading.CategoryInvalidKey:
			return http.StatusForbidden
		case reading.CategoryUnavailable:
			return http.StatusServiceUnavailable
		case reading.CategoryBlocked:
			return http.StatusUnavailableForLegalReasons
		default:
			return http.StatusBadGateway
		}
	case errors.Is(err, reading.ErrSynthesis):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
