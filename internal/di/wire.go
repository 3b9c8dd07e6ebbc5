//go:build wireinject
// +build wireinject

package di

import (
	"PolyEdge/pkg/config"
	"PolyEdge/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideTracing,
		ProvideMetrics,

		// Storage
		ProvideSQLiteClient,
		ProvideTradeStore,
		ProvideMarketStore,
		ProvideRedisCache,
		ProvideCache,
		ProvideClickHouseClient,
		ProvideCandleStore,
		ProvideEvaluationSink,

		// Messaging
		ProvideKafkaProducer,
		ProvideLogCollector,
		ProvideHub,
		ProvidePublishPipeline,
		ProvideEventPublisher,

		// Strategy and settlement
		ProvideModels,
		ProvideEvaluator,
		ProvideDecisionEngine,
		ProvideDecider,
		ProvideTradeRecorder,
		ProvideResultChecker,
		ProvideMarketResolver,
		ProvideCandlesUseCase,
		ProvideJobQueue,
		ProvideKafkaConsumer,
		ProvidePaperTrader,

		// HTTP
		ProvideRateLimiter,
		ProvideHandler,
		ProvideHTTPServer,

		wire.Struct(new(Components), "*"),
		ProvideApp,
	)
	return &server.App{}, nil
}
