//go:build wireinject
// +build wireinject

package di

import (
	"TradePulse/pkg/config"
	"TradePulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideLimiter,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Services
		ProvideIndicatorCache,
		ProvideProviderClient,
		ProvideScorer,

		// Repositories
		ProvideSignalStore,
		ProvideSignalEvents,
		ProvideWorkQueue,
		ProvideCandidateQueue,

		// Streaming
		ProvideTickPipeline,
		ProvideFeedClient,

		// Use cases and HTTP surface
		ProvideCoordinator,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
