package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loqalabs/loqa-reader/internal/bus"
	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/natsserver"
	"github.com/loqalabs/loqa-reader/internal/router"
	"github.com/loqalabs/loqa-reader/internal/session"
)

type Runtime struct {
	cfg         config.Config
	version     string
	logger      *slog.Logger
	httpServer  *http.Server
	metricsSrv  *http.Server
	tracerClose func(context.Context) error
	embedded    *natsserver.EmbeddedServer
	bus         *bus.Client
	router      *router.Service
	pipeline    *Pipeline
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, version string, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		version: version,
		logger:  logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.version, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	var notifier session.Notifier
	if r.cfg.Bus.Enabled {
		if err := r.startBus(ctx); err != nil {
			r.shutdown()
			return err
		}
		notifier = r.router
	}

	pipeline, err := NewPipeline(ctx, r.cfg, notifier, r.logger)
	if err != nil {
		r.shutdown()
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	r.pipeline = pipeline

	if r.router != nil {
		r.router.SetProcessor(pipeline.Orchestrator)
		if err := r.router.Start(); err != nil {
			r.shutdown()
			return fmt.Errorf("failed to start router: %w", err)
		}
	}

	apiMetrics := metricsHandler
	if r.cfg.Telemetry.PrometheusBind != "" && metricsHandler != nil {
		apiMetrics = nil
		r.serveMetrics(metricsHandler)
	}

	gin.SetMode(gin.ReleaseMode)
	api := NewAPI(pipeline, r.cfg.HTTP.RatePerMinute, apiMetrics, r.healthy, r.logger)
	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr), slog.Bool("bus", r.bus != nil))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	r.shutdown()
	return nil
}

func (r *Runtime) startBus(ctx context.Context) error {
	defaults, _, err := sessionDefaults(r.cfg)
	if err != nil {
		return err
	}
	busCfg := r.cfg.Bus
	embedded, err := natsserver.Start(busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	r.embedded = embedded
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}

	client, err := bus.Connect(r.cfg.RuntimeName, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	r.bus = client
	r.router = router.NewService(ctx, client, nil, defaults, r.logger)
	return nil
}

func (r *Runtime) serveMetrics(handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	r.metricsSrv = &http.Server{
		Addr:              r.cfg.Telemetry.PrometheusBind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("metrics listener started", slog.String("addr", r.cfg.Telemetry.PrometheusBind))
}

func (r *Runtime) healthy() bool {
	if !r.ready.Load() {
		return false
	}
	if r.router != nil && !r.router.Healthy() {
		return false
	}
	return true
}

func (r *Runtime) shutdown() {
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	for _, srv := range []*http.Server{r.httpServer, r.metricsSrv} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.router != nil {
		r.router.Close()
	}
	if r.pipeline != nil {
		if err := r.pipeline.Close(); err != nil {
			r.logger.Error("pipeline close error", slog.String("error", err.Error()))
		}
	}
	if r.bus != nil {
		r.bus.Close()
	}
	r.embedded.Shutdown()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}
