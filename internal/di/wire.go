//go:build wireinject
// +build wireinject

package di

import (
	"SpotAgent/pkg/config"
	"SpotAgent/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// The returned cleanup closes clients in reverse construction order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvidePostgresClient,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideCache,
		ProvideQueue,
		ProvideTelegramBot,
		ProvideRateLimiter,

		// Repositories
		ProvideTradeStore,
		ProvideJournal,
		ProvideKafkaConsumer,
		ProvideEventPublisher,
		ProvideStatusCache,
		ProvideFiles,

		// Exchange
		ProvideKrakenStream,
		ProvideExchange,

		// Domain services
		ProvideNotifier,
		ProvideState,
		ProvideSignalEngine,
		ProvidePositionManager,

		// Use cases
		ProvideAgentConfig,
		ProvideOperator,
		ProvideAgent,

		// Handlers
		ProvideStatusHub,
		ProvideOperatorHandler,
		ProvideTelegramHandler,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
