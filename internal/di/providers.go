package di

import (
	"context"
	"fmt"
	"time"

	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/domain/service"
	"FinCast/internal/handler/api"
	"FinCast/internal/repository"
	"FinCast/internal/service/cache"
	"FinCast/internal/service/coingecko"
	"FinCast/internal/service/events"
	"FinCast/internal/service/forecast"
	"FinCast/internal/usecase"
	pkgcache "FinCast/pkg/cache"
	pkgch "FinCast/pkg/clickhouse"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	"FinCast/pkg/logger"
	"FinCast/pkg/metrics"
	"FinCast/pkg/postgres"
	"FinCast/pkg/queue"
	"FinCast/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const connectTimeout = 10 * time.Second

// Stores groups the persistence ports of the configured backend.
type Stores struct {
	Assets    domrepo.AssetRepository
	History   domrepo.HistoryStore
	Models    domrepo.ModelStore
	Artifacts domrepo.ArtifactStore
}

// Pipeline is what the operator CLI needs: the pipeline use cases without
// the HTTP server, queue workers or Kafka consumer.
type Pipeline struct {
	Logger       *logger.Logger
	Assets       domrepo.AssetRepository
	Fetcher      *usecase.FetchUseCase
	Orchestrator *usecase.OrchestratorUseCase
	Onboarding   *usecase.OnboardingUseCase
	Cache        *cache.ForecastCache
}

func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideRegistry creates the registry every collector of the process uses.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.New(reg)
}

func ProvideArtifactStore(cfg *config.Config) *repository.FileArtifactStore {
	return repository.NewFileArtifactStore(cfg.Pipeline.ModelDir)
}

// ProvideStores builds the in-memory backend, or Postgres (assets, models)
// plus ClickHouse (history) for the database backend.
func ProvideStores(cfg *config.Config, artifacts *repository.FileArtifactStore, lgr *logger.Logger) (*Stores, func(), error) {
	if cfg.Backend.Type != "database" {
		ms := repository.NewMemoryStore(artifacts)
		lgr.Warn("using in-memory backend, data is lost on exit")
		return &Stores{Assets: ms, History: ms, Models: ms, Artifacts: artifacts}, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := postgres.Open(cfg.Postgres.DSN,
		postgres.WithPool(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns, cfg.Postgres.ConnMaxLifetime),
		postgres.WithLogLevel(cfg.Postgres.LogLevel),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	gs := repository.NewGormStore(db.Gorm, artifacts, lgr)
	if err := gs.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("postgres migrate: %w", err)
	}

	ch, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := ch.Connect(ctx, repository.HistorySchema); err != nil {
		_ = ch.Close()
		_ = db.Close()
		return nil, nil, fmt.Errorf("clickhouse: %w", err)
	}
	lgr.Info("database backend ready",
		logger.String("clickhouse_db", cfg.ClickHouse.Database),
	)

	cleanup := func() {
		if err := ch.Close(); err != nil {
			lgr.Warn("clickhouse close failed", logger.Error(err))
		}
		if err := db.Close(); err != nil {
			lgr.Warn("postgres close failed", logger.Error(err))
		}
	}
	return &Stores{
		Assets:    gs,
		History:   repository.NewCHHistoryStore(ch.DB(), lgr),
		Models:    gs,
		Artifacts: artifacts,
	}, cleanup, nil
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Redis.Enabled || cfg.Queue.Mode == "redis" ||
		cfg.Cache.Type == "redis" || cfg.Cache.Type == "layered"
}

// ProvideRedisClient returns nil when neither the cache nor the queue uses Redis.
func ProvideRedisClient(cfg *config.Config, lgr *logger.Logger) (*redis.Client, func(), error) {
	if !needsRedis(cfg) {
		return nil, func() {}, nil
	}
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	return rc, func() {
		if err := rc.Close(); err != nil {
			lgr.Warn("redis close failed", logger.Error(err))
		}
	}, nil
}

// ProvideCacheStore returns the configured cache backend, or nil for "none".
func ProvideCacheStore(cfg *config.Config, rc *redis.Client) (pkgcache.Store, func(), error) {
	var store pkgcache.Store
	switch cfg.Cache.Type {
	case "none":
		return nil, func() {}, nil
	case "redis":
		store = pkgcache.NewRedisCacheFromClient(rc, cfg.Redis.Prefix+"cache:")
	case "layered":
		store = pkgcache.NewLayeredCache(
			pkgcache.NewRedisCacheFromClient(rc, cfg.Redis.Prefix+"cache:"),
			pkgcache.WithLayeredMemorySize(cfg.Cache.MaxSize),
			pkgcache.WithLayeredHotTTL(cfg.Cache.HotTTL),
		)
	default:
		store = pkgcache.NewMemoryCache(
			pkgcache.WithMemoryMaxSize(cfg.Cache.MaxSize),
			pkgcache.WithMemoryDefaultTTL(cfg.Cache.DefaultTTL),
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := store.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("cache connect: %w", err)
	}
	// the redis client is closed by its own provider
	if cfg.Cache.Type == "memory" {
		return store, func() { _ = store.Close() }, nil
	}
	return store, func() {}, nil
}

func ProvideForecastCache(store pkgcache.Store, rec *metrics.Recorder, lgr *logger.Logger) *cache.ForecastCache {
	return cache.New(store, rec, lgr)
}

// ProvideLocker guards training sweeps with the cache backend's lock.
func ProvideLocker(store pkgcache.Store) usecase.Locker {
	if store == nil {
		return nil
	}
	return store
}

func ProvideQueue(cfg *config.Config, rc *redis.Client, rec *metrics.Recorder, lgr *logger.Logger) queue.Queue {
	qc := &queue.QueueConfig{
		Workers:      cfg.Queue.Workers,
		RetryLimit:   cfg.Queue.RetryLimit,
		RetryDelay:   cfg.Queue.RetryDelay,
		PollInterval: cfg.Queue.PollInterval,
	}
	if cfg.Queue.Mode == "redis" {
		return queue.NewRedisQueue(lgr, qc, rc, queue.ModeProducerConsumer,
			queue.WithKeyPrefix(cfg.Queue.Name),
			queue.WithObserver(rec),
		)
	}
	return queue.NewLocalQueue(lgr, qc, rec)
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry, lgr *logger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() {
		if err := producer.Close(); err != nil {
			lgr.Warn("kafka producer close failed", logger.Error(err))
		}
	}, nil
}

// ProvideEventPublisher announces models on Kafka, or only logs them when
// Kafka is disabled.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer, lgr *logger.Logger) service.EventPublisher {
	if producer == nil {
		return events.NewLogPublisher(lgr)
	}
	return events.NewKafkaPublisher(producer, cfg.Kafka.Topic, lgr)
}

func ProvideModelEventsHandler(cfg *config.Config, fc *cache.ForecastCache, rec *metrics.Recorder, lgr *logger.Logger) *usecase.ModelEventsHandler {
	return usecase.NewModelEventsHandler(cfg.Kafka.Topic, fc, rec, lgr)
}

// ProvideKafkaConsumer returns nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, h *usecase.ModelEventsHandler, reg *prometheus.Registry, lgr *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(lgr,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(h)
	return consumer, nil
}

func ProvideCoinGecko(cfg *config.Config, lgr *logger.Logger) *coingecko.Client {
	return coingecko.New(lgr,
		coingecko.WithBaseURL(cfg.Provider.BaseURL),
		coingecko.WithAPIKey(cfg.Provider.APIKey),
		coingecko.WithHTTPClient(xhttp.NewClient(xhttp.WithTimeout(cfg.Provider.Timeout))),
		coingecko.WithRequestsPerMinute(cfg.Provider.RequestsPerMin),
	)
}

func ProvideForecaster() *forecast.Forecaster {
	return forecast.New()
}

func ProvideFetchUseCase(cfg *config.Config, stores *Stores, client *coingecko.Client, rec *metrics.Recorder, lgr *logger.Logger) *usecase.FetchUseCase {
	return usecase.NewFetchUseCase(stores.Assets, stores.History, client, rec, lgr, usecase.FetchConfig{
		LookbackDays:   cfg.Provider.LookbackDays,
		RetryDelay:     cfg.Provider.RateLimitDelay,
		RateLimitTries: cfg.Provider.RateLimitTries,
		TransientTries: cfg.Provider.TransientTries,
	})
}

func ProvideTrainUseCase(
	cfg *config.Config,
	stores *Stores,
	forecaster *forecast.Forecaster,
	publisher service.EventPublisher,
	rec *metrics.Recorder,
	lgr *logger.Logger,
) *usecase.TrainUseCase {
	return usecase.NewTrainUseCase(stores.Assets, stores.History, stores.Models, stores.Artifacts,
		forecaster, publisher, rec, lgr, usecase.TrainConfig{
			ReferenceAsset:    cfg.Pipeline.ReferenceAsset,
			MinSamples:        cfg.Pipeline.MinSamples,
			Horizon:           cfg.Pipeline.Horizon,
			RegressorFallback: cfg.Pipeline.RegressorFallback,
			ReferenceTries:    cfg.Pipeline.ReferenceTries,
			ReferenceDelay:    cfg.Pipeline.ReferenceDelay,
			KeepVersions:      cfg.Pipeline.KeepVersions,
		})
}

func ProvideOrchestrator(cfg *config.Config, stores *Stores, trainer *usecase.TrainUseCase, locker usecase.Locker, lgr *logger.Logger) *usecase.OrchestratorUseCase {
	return usecase.NewOrchestratorUseCase(stores.Assets, trainer, locker, cfg.Pipeline.Concurrency, lgr)
}

func ProvideOnboarding(
	cfg *config.Config,
	stores *Stores,
	fetcher *usecase.FetchUseCase,
	trainer *usecase.TrainUseCase,
	q queue.Queue,
	lgr *logger.Logger,
) *usecase.OnboardingUseCase {
	return usecase.NewOnboardingUseCase(stores.Assets, fetcher, trainer, q, cfg.Pipeline.OnboardDelay, lgr)
}

func ProvideJobs(
	stores *Stores,
	fetcher *usecase.FetchUseCase,
	trainer *usecase.TrainUseCase,
	orchestrator *usecase.OrchestratorUseCase,
	onboarding *usecase.OnboardingUseCase,
	q queue.Queue,
	lgr *logger.Logger,
) *usecase.JobsUseCase {
	return usecase.NewJobsUseCase(stores.Assets, fetcher, trainer, orchestrator, onboarding, q, lgr)
}

func ProvideQuery(
	cfg *config.Config,
	stores *Stores,
	forecaster *forecast.Forecaster,
	client *coingecko.Client,
	fc *cache.ForecastCache,
) *usecase.QueryUseCase {
	return usecase.NewQueryUseCase(stores.Assets, stores.History, stores.Models, forecaster, client, fc, cfg.Pipeline.ReferenceAsset)
}

func ProvideHTTPServer(
	cfg *config.Config,
	query *usecase.QueryUseCase,
	onboarding *usecase.OnboardingUseCase,
	reg *prometheus.Registry,
	lgr *logger.Logger,
) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins...),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg, reg))
	}
	handlers := []xhttp.Handler{api.NewForecastEchoHandler(lgr, query, onboarding)}
	return xhttp.NewServer(lgr, handlers, opts...)
}

func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	httpServer *xhttp.Server,
	q queue.Queue,
	jobs *usecase.JobsUseCase,
	onboarding *usecase.OnboardingUseCase,
	consumer *pkgkafka.Consumer,
) *server.App {
	return server.New(cfg, lgr, httpServer, q, jobs, onboarding, consumer)
}

func ProvidePipeline(
	lgr *logger.Logger,
	stores *Stores,
	fetcher *usecase.FetchUseCase,
	orchestrator *usecase.OrchestratorUseCase,
	onboarding *usecase.OnboardingUseCase,
	fc *cache.ForecastCache,
) *Pipeline {
	return &Pipeline{
		Logger:       lgr,
		Assets:       stores.Assets,
		Fetcher:      fetcher,
		Orchestrator: orchestrator,
		Onboarding:   onboarding,
		Cache:        fc,
	}
}
