//go:build wireinject
// +build wireinject

package di

import (
	"PriceWatch/pkg/config"
	"PriceWatch/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedis,
		ProvideCache,
		ProvidePostgres,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideNATS,

		// Repositories and outbound adapters
		ProvideConditionPersistence,
		ProvideHistoryStore,
		ProvideEventSinks,
		ProvideEventPipeline,
		ProvideFeed,
		ProvideNotificationSink,
		ProvideIDNode,

		// Use cases
		ProvideConditionStore,
		ProvideCooldownGuard,
		ProvideDispatcher,
		ProvideSupervisor,
		ProvideAlertEngine,
		ProvideAlertCommandHandler,
		ProvideKafkaConsumer,
		ProvideCommandQueue,

		// Delivery
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
