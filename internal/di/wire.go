//go:build wireinject
// +build wireinject

package di

import (
	"TradePulse/pkg/config"
	"TradePulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideCache,

		// Market data and broker adapters
		ProvideFeed,
		ProvideBroker,

		// Ledger
		ProvideLedgerStore,
		ProvideLotsIndex,
		ProvideSignalsIndex,

		// Repositories
		ProvideTradeHistory,
		ProvideEventPublisher,

		// Engines
		ProvideCandleEngine,
		ProvideIndicatorEngine,
		ProvideJumpDetector,
		ProvideStrategyEngine,
		ProvideExecutionEngine,

		// Use cases
		ProvideTickRunner,
		ProvidePositionSync,

		// HTTP surface and application host
		ProvideStatusHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
