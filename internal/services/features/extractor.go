package features

import (
	"math"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/pkg/util"
)

const (
	lowVolThreshold  = 0.005
	highVolThreshold = 0.03
	trendThreshold   = 0.5 // percent
)

// ComputeLogReturns computes log returns r_t = ln(P_t / P_{t-1}).
// It returns a slice of length len(points)-1, or nil if insufficient data.
func ComputeLogReturns(points []models.PricePoint) []float64 {
	if len(points) < 2 {
		return nil
	}
	out := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev := points[i-1].Price
		cur := points[i].Price
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// WindowVolatility is the realized volatility over the whole window, sqrt(sum r^2).
func WindowVolatility(logReturns []float64) float64 {
	var sum2 float64
	for _, r := range logReturns {
		sum2 += r * r
	}
	return util.Finite(math.Sqrt(sum2))
}

// Regime buckets window volatility.
func Regime(vol float64) models.VolatilityRegime {
	switch {
	case vol < lowVolThreshold:
		return models.VolatilityLow
	case vol > highVolThreshold:
		return models.VolatilityHigh
	default:
		return models.VolatilityNormal
	}
}

// RateOfChange is the percent change over the last n points.
func RateOfChange(points []models.PricePoint, n int) float64 {
	if n <= 0 || len(points) <= n {
		return 0
	}
	prev := points[len(points)-1-n].Price
	if prev <= 0 {
		return 0
	}
	return util.Finite((points[len(points)-1].Price - prev) / prev * 100)
}

// Trend compares the last price with the history mean.
func Trend(points []models.PricePoint) models.Sentiment {
	if len(points) < 2 {
		return models.Neutral
	}
	var sum float64
	for _, p := range points {
		sum += p.Price
	}
	mean := sum / float64(len(points))
	if mean <= 0 {
		return models.Neutral
	}
	change := (points[len(points)-1].Price - mean) / mean * 100
	switch {
	case change > trendThreshold:
		return models.Bullish
	case change < -trendThreshold:
		return models.Bearish
	default:
		return models.Neutral
	}
}

// Context builds the market context of a snapshot at now.
func Context(snap models.SymbolSnapshot, now time.Time, marketOpen func(time.Time) bool) models.MarketContext {
	if marketOpen == nil {
		marketOpen = util.IsMarketOpen
	}
	vol := WindowVolatility(ComputeLogReturns(snap.History))
	return models.MarketContext{
		MarketOpen:       marketOpen(now),
		Trend:            Trend(snap.History),
		VolatilityRegime: Regime(vol),
		RealizedVol:      util.Round(vol, 6),
	}
}
