//go:build wireinject
// +build wireinject

package di

import (
	"FinCast/pkg/config"
	"FinCast/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideArtifactStore,
	ProvideStores,
	ProvideRedisClient,
	ProvideCacheStore,
	ProvideForecastCache,
	ProvideLocker,
	ProvideQueue,
	ProvideKafkaProducer,
	ProvideEventPublisher,
	ProvideCoinGecko,
	ProvideForecaster,
)

var pipelineSet = wire.NewSet(
	infraSet,
	ProvideFetchUseCase,
	ProvideTrainUseCase,
	ProvideOrchestrator,
	ProvideOnboarding,
)

// InitializeApp wires the API server, queue workers, scheduler and Kafka consumer.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		pipelineSet,
		ProvideJobs,
		ProvideQuery,
		ProvideModelEventsHandler,
		ProvideKafkaConsumer,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializePipeline wires the pipeline use cases for one-shot CLI commands.
func InitializePipeline(cfg *config.Config) (*Pipeline, func(), error) {
	wire.Build(
		pipelineSet,
		ProvidePipeline,
	)
	return nil, nil, nil
}
