//go:build wireinject
// +build wireinject

package di

import (
	"QuantBoard/pkg/config"
	"QuantBoard/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvidePublisher,

		// Stores
		ProvideMetricStore,
		ProvideFeatureStore,
		ProvideSignalStore,

		// Ingest and derivation loops
		ProvideStreamManager,
		ProvidePoller,
		ProvidePipeline,
		ProvideComputer,
		ProvideEngine,

		// HTTP surface
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
