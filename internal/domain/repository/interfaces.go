package repository

import (
	"context"
	"time"

	"SignalForge/internal/domain/models"
)

// MarketStream is one upstream streaming feed.
type MarketStream interface {
	Name() string
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.PriceEvent, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// TipStore persists latest tips, app stats and notification analytics.
type TipStore interface {
	UpsertLatestTip(ctx context.Context, horizon models.Horizon, tip models.Tip) error
	LatestTip(ctx context.Context, horizon models.Horizon) (*models.StoredTip, error)
	// LatestTipTimes returns the last write time per slot. Slots never written are absent.
	LatestTipTimes(ctx context.Context) (map[models.Horizon]time.Time, error)
	UpdateStats(ctx context.Context, successRate, aiAccuracy int, at time.Time) (models.AppStats, error)
	Stats(ctx context.Context) (models.AppStats, error)
	AppendAnalytics(ctx context.Context, rec models.AnalyticsRecord) error
	Health(ctx context.Context) error
	Close() error
}

// Broadcaster publishes notifications to subscribers.
type Broadcaster interface {
	Name() string
	Broadcast(ctx context.Context, key string, n models.Notification) error
	Close() error
}

// Archive is an append-only analytical sink.
type Archive interface {
	StoreEvents(ctx context.Context, events []models.PriceEvent) error
	StoreAnalytics(ctx context.Context, rec models.AnalyticsRecord) error
	Health(ctx context.Context) error
	Close() error
}

// CandleSource serves historical hourly OHLCV bars, oldest first.
type CandleSource interface {
	HourlyCandles(ctx context.Context, inst models.Instrument, limit int) ([]models.Candle, error)
}

// Metrics records engine telemetry.
type Metrics interface {
	RecordEvent(source, symbol string)
	RecordDrop(reason string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordGateDecision(decision string)
	RecordEmission(horizon, result string)
	SetFeedConnected(feed string, up bool)
	SetBreakerState(name string, state int)
	SetFreshness(v float64)
}
