package di

import (
	"fmt"
	"time"

	"QuantBoard/internal/domain/repository"
	"QuantBoard/internal/engine"
	"QuantBoard/internal/features"
	"QuantBoard/internal/handler/api"
	"QuantBoard/internal/pipeline"
	"QuantBoard/internal/poller"
	internalrepo "QuantBoard/internal/repository"
	"QuantBoard/internal/stream"
	"QuantBoard/internal/usecase"
	"QuantBoard/pkg/cache"
	pkgch "QuantBoard/pkg/clickhouse"
	"QuantBoard/pkg/config"
	xhttp "QuantBoard/pkg/http"
	pkgkafka "QuantBoard/pkg/kafka"
	applogger "QuantBoard/pkg/logger"
	"QuantBoard/pkg/metrics"
	"QuantBoard/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates the ClickHouse client pool.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideMetricStore creates the canonical row store, cached behind Redis
// when it is enabled.
func ProvideMetricStore(client *pkgch.Client, cfg *config.Config) (repository.MetricStore, error) {
	store := internalrepo.NewMetricStore(client)
	if !cfg.Redis.Enabled {
		return store, nil
	}
	redis, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return internalrepo.NewCachedMetricStore(store, redis, 2*time.Second), nil
}

// ProvideFeatureStore creates the feature snapshot store.
func ProvideFeatureStore(client *pkgch.Client) repository.FeatureStore {
	return internalrepo.NewFeatureStore(client)
}

// ProvideSignalStore creates the engine output store.
func ProvideSignalStore(client *pkgch.Client) repository.SignalStore {
	return internalrepo.NewSignalStore(client)
}

// ProvidePublisher creates the Kafka publisher, or a no-op when disabled.
func ProvidePublisher(cfg *config.Config) (repository.Publisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NopPublisher{}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic), nil
}

// ProvideStreamManager creates the websocket stream manager.
func ProvideStreamManager(cfg *config.Config, log *applogger.Logger, m repository.Metrics) *stream.Manager {
	return stream.NewManager(stream.Config{
		URL:               cfg.Stream.URL,
		Suffixes:          cfg.Stream.Suffixes,
		MaxStreamsPerConn: cfg.Stream.MaxStreamsPerConn,
		ReadTimeout:       cfg.Stream.ReadTimeout,
		StopTimeout:       cfg.Stream.StopTimeout,
		MaxDispatch:       cfg.Stream.MaxDispatch,
	}, log, m)
}

// ProvidePoller creates the REST snapshot poller.
func ProvidePoller(cfg *config.Config, log *applogger.Logger, m repository.Metrics) *poller.Poller {
	client := poller.NewClient(cfg.Poll.BaseURL, cfg.Poll.Timeout)
	return poller.New(client, log, m, cfg.Poll.Concurrency, cfg.Poll.Cooldown)
}

// ProvidePipeline creates the ingestion pipeline.
func ProvidePipeline(cfg *config.Config, store repository.MetricStore, log *applogger.Logger, m repository.Metrics) *pipeline.Pipeline {
	return pipeline.New(pipeline.Config{
		QueueCapacity: cfg.Pipeline.QueueCapacity,
		BatchSize:     cfg.Pipeline.BatchSize,
		FlushInterval: cfg.Pipeline.FlushInterval,
		Timeframe:     repository.Timeframe(cfg.Pipeline.Timeframe),
	}, store, log, m)
}

// ProvideComputer creates the feature computer.
func ProvideComputer(cfg *config.Config, store repository.MetricStore, featStore repository.FeatureStore, log *applogger.Logger, m repository.Metrics) *features.Computer {
	return features.NewComputer(features.Config{
		Window:       cfg.Features.Window,
		ReturnWindow: cfg.Features.ReturnWindow,
		Interval:     cfg.Features.Interval,
		Workers:      cfg.Features.Workers,
		Timeframe:    repository.Timeframe(cfg.Pipeline.Timeframe),
	}, store, featStore, log, m)
}

// ProvideEngine creates the signal engine.
func ProvideEngine(cfg *config.Config, store repository.MetricStore, featStore repository.FeatureStore, signals repository.SignalStore, log *applogger.Logger, m repository.Metrics) *engine.Engine {
	return engine.New(engine.Config{
		Interval:      cfg.Engine.Interval,
		History:       cfg.Engine.History,
		MoveThreshold: cfg.Engine.MoveThreshold,
		Thresholds:    cfg.Engine.Thresholds,
		Timeframe:     repository.Timeframe(cfg.Pipeline.Timeframe),
	}, store, featStore, signals, log, m)
}

// ProvideHTTPHandler creates the Echo read-accessor handler.
func ProvideHTTPHandler(cfg *config.Config, log *applogger.Logger, store repository.MetricStore, featStore repository.FeatureStore, signals repository.SignalStore, streamMgr *stream.Manager, pipe *pipeline.Pipeline) xhttp.Handler {
	reader := usecase.NewMarketReader(store, featStore, signals, log)
	return api.NewMarketEchoHandler(log, reader, cfg.Symbols, streamMgr, pipe)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	streamMgr *stream.Manager,
	p *poller.Poller,
	pipe *pipeline.Pipeline,
	computer *features.Computer,
	eng *engine.Engine,
	store repository.MetricStore,
	featStore repository.FeatureStore,
	signals repository.SignalStore,
	publisher repository.Publisher,
	handler xhttp.Handler,
) *server.App {
	app := server.New(cfg, log, streamMgr, p, pipe, computer, eng, store, featStore, signals, publisher)
	app.SetHTTPHandler(handler)
	return app
}
