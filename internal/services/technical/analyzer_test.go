package technical

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalForge/internal/domain/models"
)

var base = time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC)

func rising(n int, from, to float64, span time.Duration) []models.PricePoint {
	pts := make([]models.PricePoint, n)
	for i := 0; i < n; i++ {
		f := float64(i) / float64(n-1)
		pts[i] = models.PricePoint{
			Price:     from + (to-from)*f,
			Volume:    10,
			Timestamp: base.Add(time.Duration(f * float64(span))),
		}
	}
	return pts
}

func snapshot(sym string, pts []models.PricePoint) models.SymbolSnapshot {
	last := pts[len(pts)-1].Price
	prev := last
	if len(pts) > 1 {
		prev = pts[len(pts)-2].Price
	}
	return models.SymbolSnapshot{Instrument: models.Instrument(sym), CurrentPrice: last, PreviousPrice: prev, History: pts}
}

type stubCandles struct {
	candles []models.Candle
	err     error
	calls   int
}

func (s *stubCandles) HourlyCandles(context.Context, models.Instrument, int) ([]models.Candle, error) {
	s.calls++
	return s.candles, s.err
}

func TestIndicatorsOnRisingSeries(t *testing.T) {
	bars := TickBars("AAPL", rising(30, 100, 103.5, 5*time.Minute))
	ind := Compute(bars, 103.5)

	assert.Equal(t, 100.0, ind.RSI)
	assert.Greater(t, ind.MACD.Line, 0.0)
	assert.InDelta(t, 0.9*ind.MACD.Line, ind.MACD.Signal, 1e-12)
	assert.InDelta(t, 0.1*ind.MACD.Line, ind.MACD.Histogram, 1e-12)
	assert.Less(t, ind.VWAP, 103.5)
	assert.Greater(t, ind.OBV, 0.0)
	assert.InDelta(t, 3.5/29, ind.ATR, 1e-9)
	assert.Greater(t, ind.Bollinger.Upper, ind.Bollinger.Middle)
}

func TestATRFlooredOnFlatSeries(t *testing.T) {
	pts := rising(20, 300, 300, time.Minute)
	ind := Compute(TickBars("MSFT", pts), 300)

	assert.InDelta(t, 0.30, ind.ATR, 1e-9)
	assert.Equal(t, 50.0, ind.RSI)
	assert.Equal(t, 0.0, ind.MACD.Line)
}

func TestVolumeProfile(t *testing.T) {
	var bars []models.Candle
	for i := 0; i < 10; i++ {
		bars = append(bars, models.Candle{Close: 100 - float64(i), Volume: 100 + float64(i*10)})
	}
	vp := VolumeProfileOf(bars)
	assert.Equal(t, models.Bearish, vp.Trend)
	assert.InDelta(t, 1.0, vp.Strength, 1e-9)

	assert.Equal(t, models.Neutral, VolumeProfileOf(bars[:1]).Trend)
}

func TestBucket(t *testing.T) {
	pts := []models.PricePoint{
		{Price: 10, Volume: 1, Timestamp: base},
		{Price: 12, Volume: 2, Timestamp: base.Add(30 * time.Second)},
		{Price: 9, Volume: 3, Timestamp: base.Add(45 * time.Second)},
		{Price: 11, Volume: 4, Timestamp: base.Add(61 * time.Second)},
	}
	bars := Bucket("AAPL", pts, time.Minute)
	require.Len(t, bars, 2)
	assert.Equal(t, models.Candle{Bucket: base, Symbol: "AAPL", Open: 10, High: 12, Low: 9, Close: 9, Volume: 6}, bars[0])
	assert.Equal(t, 11.0, bars[1].Close)
}

func TestAnalyzeRisingTicksWithoutSimulation(t *testing.T) {
	a := NewAnalyzer(Config{}, nil, rand.New(rand.NewSource(1)), nil)
	res := a.Analyze(context.Background(), snapshot("AAPL", rising(30, 100, 103.5, 5*time.Minute)))

	require.Len(t, res, 4)
	assert.Equal(t, models.TF1m, res[0].Timeframe)
	assert.Equal(t, models.Bullish, res[0].Sentiment)
	assert.GreaterOrEqual(t, res[0].Strength, 4.0)
	assert.Contains(t, res[0].Reasoning, "tick_bars_1m")
	assert.False(t, res[0].Simulated)

	for _, r := range res[1:] {
		assert.Equal(t, models.Neutral, r.Sentiment)
		assert.LessOrEqual(t, r.Strength, 1.5)
		assert.Contains(t, r.Reasoning, models.ReasonInsufficientData)
	}
}

func TestAnalyzeSimulatedIsFlaggedAndSeeded(t *testing.T) {
	snap := snapshot("NVDA", rising(5, 100, 101, time.Minute))
	run := func() []models.TimeframeAnalysis {
		a := NewAnalyzer(Config{Simulate: true}, nil, rand.New(rand.NewSource(42)), nil)
		return a.Analyze(context.Background(), snap)
	}
	first, second := run(), run()
	assert.Equal(t, first, second)

	for _, r := range first {
		assert.True(t, r.Simulated)
		assert.Contains(t, r.Reasoning, "simulated_"+string(r.Timeframe))
		assert.GreaterOrEqual(t, r.Indicators.RSI, 15.0)
		assert.LessOrEqual(t, r.Indicators.RSI, 85.0)
		assert.GreaterOrEqual(t, r.Strength, 0.0)
		assert.LessOrEqual(t, r.Strength, 5.0)
		assert.GreaterOrEqual(t, r.Indicators.ATR, 0.101-1e-9)
	}
}

func TestAnalyzeUsesHourlyCandles(t *testing.T) {
	var candles []models.Candle
	for i := 0; i < 20; i++ {
		p := 200 - float64(i)
		candles = append(candles, models.Candle{Bucket: base.Add(time.Duration(i) * time.Hour), Open: p + 0.5, High: p + 1, Low: p - 1, Close: p, Volume: 1000})
	}
	src := &stubCandles{candles: candles}
	a := NewAnalyzer(Config{}, src, nil, nil)

	res := a.Analyze(context.Background(), snapshot("TSLA", rising(5, 181, 181, time.Minute)))
	hour := res[3]
	assert.Equal(t, models.TF1h, hour.Timeframe)
	assert.Contains(t, hour.Reasoning, "hourly_candles")
	assert.Equal(t, models.Bearish, hour.Sentiment)
	assert.InDelta(t, 2.0, hour.Indicators.ATR, 1e-9)
	assert.Equal(t, 1, src.calls)
}

func TestAnalyzeCandleErrorFallsBack(t *testing.T) {
	src := &stubCandles{err: errors.New("502")}
	a := NewAnalyzer(Config{}, src, nil, nil)

	res := a.Analyze(context.Background(), snapshot("TSLA", rising(5, 181, 182, time.Minute)))
	assert.Contains(t, res[3].Reasoning, models.ReasonInsufficientData)
}
