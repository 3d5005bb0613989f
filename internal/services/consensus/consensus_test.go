package consensus

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

var now = time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC)

func tf(tf models.Timeframe, s models.Sentiment, strength, atr float64) models.TimeframeAnalysis {
	return models.TimeframeAnalysis{Timeframe: tf, Sentiment: s, Strength: strength, Indicators: models.Indicators{ATR: atr}}
}

func flatSnap(sym string, price float64, n int) models.SymbolSnapshot {
	pts := make([]models.PricePoint, n)
	for i := range pts {
		pts[i] = models.PricePoint{Price: price, Volume: 10, Timestamp: now.Add(time.Duration(i-n) * time.Second)}
	}
	return models.SymbolSnapshot{Instrument: models.Instrument(sym), CurrentPrice: price, PreviousPrice: price, History: pts}
}

func risingSnap(sym string, from, to float64, n int) models.SymbolSnapshot {
	pts := make([]models.PricePoint, n)
	for i := range pts {
		p := from + (to-from)*float64(i)/float64(n-1)
		pts[i] = models.PricePoint{Price: p, Volume: 10, Timestamp: now.Add(time.Duration(i-n) * 10 * time.Second)}
	}
	return models.SymbolSnapshot{Instrument: models.Instrument(sym), CurrentPrice: to, PreviousPrice: pts[n-2].Price, History: pts}
}

type stubCandles struct {
	candles []models.Candle
	err     error
}

func (s stubCandles) HourlyCandles(context.Context, models.Instrument, int) ([]models.Candle, error) {
	return s.candles, s.err
}

func closed(time.Time) bool { return false }
func open(time.Time) bool   { return true }

func TestVoteNeedsMarginOfTwo(t *testing.T) {
	tests := []struct {
		name string
		in   []models.Sentiment
		want models.Sentiment
	}{
		{"unanimous bullish", []models.Sentiment{models.Bullish, models.Bullish, models.Bullish, models.Bullish}, models.Bullish},
		{"three to one", []models.Sentiment{models.Bearish, models.Bearish, models.Bearish, models.Bullish}, models.Bearish},
		{"two to one", []models.Sentiment{models.Bullish, models.Bullish, models.Bearish, models.Neutral}, models.Neutral},
		{"two to zero", []models.Sentiment{models.Bullish, models.Bullish, models.Neutral, models.Neutral}, models.Bullish},
		{"tie", []models.Sentiment{models.Bullish, models.Bearish}, models.Neutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tfs []models.TimeframeAnalysis
			for i, s := range tt.in {
				tfs = append(tfs, tf(models.AllTimeframes[i], s, 3, 0))
			}
			got, _, _ := Vote(tfs)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWeightedStrength(t *testing.T) {
	tfs := []models.TimeframeAnalysis{
		tf(models.TF1m, models.Bullish, 1, 0),
		tf(models.TF5m, models.Bullish, 2, 0),
		tf(models.TF15m, models.Bullish, 3, 0),
		tf(models.TF1h, models.Bullish, 4, 0),
	}
	assert.InDelta(t, (1*1+2*2+3*3+4*4)/10.0, WeightedStrength(tfs), 1e-9)

	tfs[3].Reasoning = []string{models.ReasonInsufficientData}
	assert.InDelta(t, (1*1+2*2+3*3)/6.0, WeightedStrength(tfs), 1e-9)
}

func TestLevelsShape(t *testing.T) {
	bull := Levels(100, 1, models.Bullish)
	assert.Equal(t, models.Levels{Entry: 100, StopLoss: 98, TakeProfit1: 105, TakeProfit2: 108}, bull)
	assert.InDelta(t, 2.5, bull.RiskReward(), 1e-9)

	bear := Levels(100, 1, models.Bearish)
	assert.True(t, bear.TakeProfit2 < bear.TakeProfit1 && bear.TakeProfit1 < bear.Entry && bear.Entry < bear.StopLoss)
}

func TestBuildBullishCandidate(t *testing.T) {
	e := New(nil, rand.New(rand.NewSource(1)), nil).WithMarketHours(open)
	tfs := []models.TimeframeAnalysis{
		tf(models.TF1m, models.Bullish, 4, 0.12),
		tf(models.TF5m, models.Bullish, 4, 0),
		tf(models.TF15m, models.Bullish, 4, 0),
		tf(models.TF1h, models.Bullish, 4, 0),
	}
	snap := risingSnap("AAPL", 100, 103.5, 30)
	comp := &models.CompositeResult{Sentiment: models.Neutral, Score: 0.1, Confidence: 20}

	c := e.Build(context.Background(), snap, tfs, comp, now)

	assert.Equal(t, models.Bullish, c.Sentiment)
	assert.Equal(t, 103.5, c.Levels.Entry)
	assert.InDelta(t, 0.12, c.ATR, 1e-9)
	assert.InDelta(t, 103.5-0.24, c.Levels.StopLoss, 1e-9)
	assert.InDelta(t, 103.5+0.6, c.Levels.TakeProfit1, 1e-9)
	assert.Equal(t, 2.5, c.RiskRewardRatio)
	// 4 + trend 0.3 + session 0.2
	assert.InDelta(t, 4.5, c.FinalStrength, 1e-9)
	assert.Contains(t, c.Reasoning, "atr_1m")
}

func TestBuildFlatSymbolIsWeak(t *testing.T) {
	e := New(nil, rand.New(rand.NewSource(1)), nil).WithMarketHours(open)
	tfs := []models.TimeframeAnalysis{
		tf(models.TF1m, models.Neutral, 1, 0.3),
		tf(models.TF5m, models.Neutral, 3, 0),
		tf(models.TF15m, models.Neutral, 3, 0),
		tf(models.TF1h, models.Neutral, 3, 0),
	}
	c := e.Build(context.Background(), flatSnap("MSFT", 300, 20), tfs, nil, now)

	assert.Equal(t, models.Neutral, c.Sentiment)
	assert.InDelta(t, 0.30, c.ATR, 1e-9)
	assert.Less(t, c.FinalStrength, 4.0)
	assert.True(t, c.Levels.Complete())
}

func TestCompositeAgreementAndOverride(t *testing.T) {
	e := New(nil, nil, nil).WithMarketHours(closed)
	snap := flatSnap("NVDA", 100, 20)

	agree := []models.TimeframeAnalysis{tf(models.TF1m, models.Bullish, 3, 0), tf(models.TF5m, models.Bullish, 3, 0)}
	c := e.Build(context.Background(), snap, agree, &models.CompositeResult{Sentiment: models.Bullish, Score: 1}, now)
	assert.Equal(t, 3.5, c.Strength)
	assert.Contains(t, c.Reasoning, "composite agrees")

	flat := []models.TimeframeAnalysis{tf(models.TF1m, models.Neutral, 2, 0), tf(models.TF5m, models.Neutral, 2, 0)}
	c = e.Build(context.Background(), snap, flat, &models.CompositeResult{Sentiment: models.Neutral}, now)
	assert.Equal(t, models.Neutral, c.Sentiment)
	assert.Equal(t, 2.5, c.Strength)
	assert.Contains(t, c.Reasoning, "composite agrees")

	weak := []models.TimeframeAnalysis{tf(models.TF1m, models.Bearish, 0.4, 0), tf(models.TF5m, models.Bearish, 0.4, 0)}
	c = e.Build(context.Background(), snap, weak, &models.CompositeResult{Sentiment: models.Bullish, Score: 1.8}, now)
	assert.Equal(t, models.Bullish, c.Sentiment)
	assert.Equal(t, 1.8, c.Strength)
	assert.Less(t, c.Levels.StopLoss, c.Levels.Entry)
}

func TestFinalStrengthClamped(t *testing.T) {
	e := New(nil, nil, nil).WithMarketHours(open)
	tfs := []models.TimeframeAnalysis{
		tf(models.TF1m, models.Bullish, 5, 1),
		tf(models.TF5m, models.Bullish, 5, 0),
	}
	snap := risingSnap("GME", 20, 25, 30)
	snap.PreviousPrice = 24
	c := e.Build(context.Background(), snap, tfs, &models.CompositeResult{Sentiment: models.Bullish, Score: 2}, now)

	assert.Equal(t, 5.0, c.FinalStrength)
	assert.Equal(t, 5.0, c.Strength)
}

func TestATRFallbacks(t *testing.T) {
	snap := flatSnap("AMD", 150, 20)
	sim := tf(models.TF1h, models.Bullish, 3, 9)
	sim.Simulated = true

	candles := []models.Candle{
		{High: 152, Low: 148, Close: 150},
		{High: 153, Low: 149, Close: 151},
	}
	e := New(stubCandles{candles: candles}, nil, nil)
	c := e.Build(context.Background(), snap, []models.TimeframeAnalysis{sim}, nil, now)
	assert.InDelta(t, 4.0, c.ATR, 1e-9)
	assert.Contains(t, c.Reasoning, "atr_ohlcv")
	assert.Contains(t, c.Reasoning, "simulated_1h")
	assert.Contains(t, c.Reasoning, models.ReasonFallback)

	e = New(stubCandles{err: errors.New("breaker open")}, nil, nil)
	c = e.Build(context.Background(), snap, []models.TimeframeAnalysis{sim}, nil, now)
	assert.InDelta(t, 0.15, c.ATR, 1e-9)
	assert.Contains(t, c.Reasoning, "atr_floor")
}

func TestNeutralDirectionFollowsMomentum(t *testing.T) {
	e := New(nil, rand.New(rand.NewSource(7)), nil).WithMarketHours(closed)
	tfs := []models.TimeframeAnalysis{tf(models.TF1m, models.Neutral, 2, 0.5)}

	up := e.Build(context.Background(), risingSnap("SPY", 500, 505, 30), tfs, nil, now)
	require.Equal(t, models.Neutral, up.Sentiment)
	assert.Greater(t, up.Levels.TakeProfit1, up.Levels.Entry)

	down := e.Build(context.Background(), risingSnap("SPY", 505, 500, 30), tfs, nil, now)
	assert.Less(t, down.Levels.TakeProfit1, down.Levels.Entry)
}
