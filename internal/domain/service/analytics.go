package service

import (
	"context"
	"time"

	"SignalForge/internal/domain/models"
)

// NewsSource fetches company news headlines.
type NewsSource interface {
	CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsItem, error)
}

// InsiderSource fetches insider transactions.
type InsiderSource interface {
	InsiderTransactions(ctx context.Context, symbol string, from, to time.Time) ([]models.InsiderTransaction, error)
}

// FundamentalSource fetches basic financial ratios.
type FundamentalSource interface {
	Fundamentals(ctx context.Context, symbol string) (models.Fundamentals, error)
}

// SentimentScorer turns headlines into a score in [-2,2] and a confidence in [0,95].
// The keyword scorer is the default; an NLP service can implement this instead.
type SentimentScorer interface {
	Score(ctx context.Context, items []models.NewsItem) (score, confidence float64, err error)
}

// OrderBook exposes top-of-book imbalance in [-1,1] (bid heavy is positive).
type OrderBook interface {
	Imbalance(inst models.Instrument, maxAge time.Duration) (float64, bool)
}

// Pinger performs a cheap liveness request against an upstream REST API.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}
