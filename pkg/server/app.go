package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"QuantBoard/internal/domain/models"
	domrepo "QuantBoard/internal/domain/repository"
	"QuantBoard/internal/engine"
	"QuantBoard/internal/features"
	"QuantBoard/internal/pipeline"
	"QuantBoard/internal/poller"
	"QuantBoard/internal/stream"
	"QuantBoard/pkg/backoff"
	"QuantBoard/pkg/config"
	xhttp "QuantBoard/pkg/http"
	applogger "QuantBoard/pkg/logger"
)

// App encapsulates the entire application lifecycle: the ingest loops, the
// derivation loops, the retention pruner, and the HTTP server.
type App struct {
	cfg *config.Config
	log *applogger.Logger

	streamMgr *stream.Manager
	poller    *poller.Poller
	pipeline  *pipeline.Pipeline
	computer  *features.Computer
	engine    *engine.Engine

	metricStore  domrepo.MetricStore
	featureStore domrepo.FeatureStore
	signalStore  domrepo.SignalStore
	publisher    domrepo.Publisher

	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
}

// New creates an App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	streamMgr *stream.Manager,
	p *poller.Poller,
	pipe *pipeline.Pipeline,
	computer *features.Computer,
	eng *engine.Engine,
	metricStore domrepo.MetricStore,
	featureStore domrepo.FeatureStore,
	signalStore domrepo.SignalStore,
	publisher domrepo.Publisher,
) *App {
	return &App{
		cfg:          cfg,
		log:          log,
		streamMgr:    streamMgr,
		poller:       p,
		pipeline:     pipe,
		computer:     computer,
		engine:       eng,
		metricStore:  metricStore,
		featureStore: featureStore,
		signalStore:  signalStore,
		publisher:    publisher,
	}
}

// SetHTTPHandler injects the route handler; kept separate so DI can build
// the handler after the App skeleton exists.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts everything and blocks until a shutdown signal arrives.
// Producers and the pipeline run under separate contexts so producers can be
// stopped first, leaving the pipeline to drain and make its final flush.
func (a *App) Run() error {
	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := a.metricStore.Init(initCtx); err != nil {
		cancel()
		return err
	}
	cancel()
	a.log.Info("schema ready", applogger.String("database", a.cfg.ClickHouse.Database))

	produceCtx, stopProducers := context.WithCancel(context.Background())
	pipeCtx, stopPipeline := context.WithCancel(context.Background())
	defer stopProducers()
	defer stopPipeline()

	pipeDone := make(chan struct{})
	go func() {
		a.pipeline.Run(pipeCtx)
		close(pipeDone)
	}()

	if err := a.streamMgr.Start(produceCtx, a.cfg.Symbols, func(ev *models.RawEvent) error {
		a.pipeline.Put(ev)
		return nil
	}); err != nil {
		return err
	}

	go a.poller.Run(produceCtx, a.cfg.Symbols, a.pipeline.Put, a.cfg.Poll.Interval)

	go a.computer.Run(produceCtx, a.cfg.Symbols)

	a.engine.OnBatch(func(batch *models.EngineBatch) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.publisher.PublishBatch(ctx, batch); err != nil {
			a.log.Warn("batch publish failed", applogger.Error(err))
		}
	})
	go a.engine.Run(produceCtx, a.cfg.Symbols)

	go a.pruneLoop(produceCtx)

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		return err
	}
	a.log.Info("quantboard running",
		applogger.Strings("symbols", a.cfg.Symbols),
		applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	a.log.Info("shutdown signal received")

	return a.shutdown(stopProducers, stopPipeline, pipeDone)
}

// pruneLoop deletes aged-out rows on a jittered interval.
func (a *App) pruneLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff.JitterInterval(a.cfg.Retention.PruneInterval, 0.1)):
			cutoff := time.Now().UTC().Add(-a.cfg.Retention.MaxAge)
			pruneCtx, cancel := context.WithTimeout(ctx, time.Minute)
			if err := a.metricStore.Prune(pruneCtx, cutoff); err != nil {
				a.log.Warn("metric prune failed", applogger.Error(err))
			}
			if err := a.featureStore.Prune(pruneCtx, cutoff); err != nil {
				a.log.Warn("feature prune failed", applogger.Error(err))
			}
			if err := a.signalStore.Prune(pruneCtx, cutoff); err != nil {
				a.log.Warn("signal prune failed", applogger.Error(err))
			}
			cancel()
			a.log.Debug("retention prune done", applogger.Any("cutoff", cutoff))
		}
	}
}

// shutdown stops producers first so the pipeline can drain, then unwinds
// the rest in dependency order.
func (a *App) shutdown(stopProducers, stopPipeline context.CancelFunc, pipeDone chan struct{}) error {
	a.streamMgr.Stop()
	stopProducers()

	stopPipeline()
	select {
	case <-pipeDone:
	case <-time.After(10 * time.Second):
		a.log.Warn("pipeline drain timed out")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Warn("http shutdown error", applogger.Error(err))
		}
	}

	if err := a.publisher.Close(); err != nil {
		a.log.Warn("publisher close error", applogger.Error(err))
	}
	if err := a.metricStore.Close(); err != nil {
		a.log.Warn("storage close error", applogger.Error(err))
	}

	a.log.Info("shutdown complete")
	return nil
}
