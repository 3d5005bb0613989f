//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SignalForge/internal/usecase"
	"SignalForge/pkg/config"
	"SignalForge/pkg/server"
)

var upstreamSet = wire.NewSet(
	ProvideMetrics,
	ProvideTracer,
	ProvideBreakers,
	ProvideLimiter,
	ProvideFinnhubREST,
	ProvidePolygon,
	ProvideBinanceREST,
	ProvidePingers,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		upstreamSet,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideRedisCache,
		ProvideClickHouseClient,

		// Repositories
		ProvideTipStore,
		ProvideArchive,
		ProvideBroadcasters,
		ProvideCandleSource,

		// Analysis pipeline
		ProvideSentimentScorer,
		ProvideOrderBook,
		ProvidePriceCache,
		ProvideOpportunityGate,
		ProvideTechnical,
		ProvideComposite,
		ProvideConsensus,
		ProvideQualityGate,
		ProvideHorizonSelector,
		ProvideEmitter,
		ProvideSignalProcessor,
		ProvideDispatcher,

		// Feeds and health
		ProvideStreams,
		ProvideTickArchiver,
		ProvideFeedCollector,
		ProvideHealthMonitor,

		// HTTP
		usecase.NewTipsUseCase,
		usecase.NewSymbolsUseCase,
		ProvideStatusUseCase,
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application server
		server.NewState,
		ProvideTimeouts,
		server.New,
	)
	return nil, nil, nil
}

// InitializePinger builds a health monitor that only pings upstream REST APIs.
func InitializePinger(cfg *config.Config) (*usecase.HealthMonitor, func(), error) {
	wire.Build(
		upstreamSet,
		ProvideConsoleLogger,
		ProvidePingMonitor,
	)
	return nil, nil, nil
}
