package composite

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
)

var now = time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC)

type fakeNews struct {
	items []models.NewsItem
	err   error
	calls atomic.Int32
}

func (f *fakeNews) CompanyNews(context.Context, string, time.Time, time.Time) ([]models.NewsItem, error) {
	f.calls.Add(1)
	return f.items, f.err
}

type fakeInsider struct {
	txs   []models.InsiderTransaction
	err   error
	calls atomic.Int32
}

func (f *fakeInsider) InsiderTransactions(context.Context, string, time.Time, time.Time) ([]models.InsiderTransaction, error) {
	f.calls.Add(1)
	return f.txs, f.err
}

type fakeFundamentals struct {
	f     models.Fundamentals
	err   error
	calls atomic.Int32
}

func (f *fakeFundamentals) Fundamentals(context.Context, string) (models.Fundamentals, error) {
	f.calls.Add(1)
	return f.f, f.err
}

type fakeBook struct{ imb float64 }

func (f fakeBook) Imbalance(models.Instrument, time.Duration) (float64, bool) { return f.imb, true }

func history(sym string, prices ...float64) models.SymbolSnapshot {
	pts := make([]models.PricePoint, len(prices))
	for i, p := range prices {
		pts[i] = models.PricePoint{Price: p, Volume: 100, Timestamp: now.Add(time.Duration(i) * time.Second)}
	}
	return models.SymbolSnapshot{Instrument: models.Instrument(sym), CurrentPrice: prices[len(prices)-1], History: pts}
}

func bullishTimeframes() []models.TimeframeAnalysis {
	var out []models.TimeframeAnalysis
	for _, tf := range models.AllTimeframes {
		out = append(out, models.TimeframeAnalysis{Timeframe: tf, Sentiment: models.Bullish, Strength: 4})
	}
	return out
}

func TestBlendFormula(t *testing.T) {
	res := Blend(map[models.FactorName]models.FactorResult{
		models.FactorMomentum:  {Score: 2, Confidence: 80},
		models.FactorSentiment: {Score: -1, Confidence: 40},
		models.FactorInsider:   {Score: 0, Confidence: 0},
	})

	num := 2*0.25*0.8 + -1*0.20*0.4
	den := 0.25*0.8 + 0.20*0.4
	assert.InDelta(t, num/den, res.Score, 1e-4)
	assert.Equal(t, 60.0, res.Confidence)
	assert.Equal(t, models.Bullish, res.Sentiment)
}

func TestBlendGuards(t *testing.T) {
	res := Blend(map[models.FactorName]models.FactorResult{
		models.FactorMomentum: {Score: math.NaN(), Confidence: math.Inf(1)},
		models.FactorFlow:     {Score: math.Inf(-1), Confidence: 50},
	})
	assert.False(t, math.IsNaN(res.Score))
	assert.GreaterOrEqual(t, res.Score, -2.0)
	assert.LessOrEqual(t, res.Score, 2.0)
	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 95.0)

	empty := Blend(map[models.FactorName]models.FactorResult{})
	assert.Equal(t, 0.0, empty.Score)
	assert.Equal(t, models.Neutral, empty.Sentiment)
}

func TestBlendClampsHighConfidence(t *testing.T) {
	res := Blend(map[models.FactorName]models.FactorResult{
		models.FactorMomentum: {Score: 5, Confidence: 200},
	})
	assert.Equal(t, 2.0, res.Score)
	assert.Equal(t, 95.0, res.Confidence)
}

func TestAnalyzeAllSourcesHealthy(t *testing.T) {
	news := &fakeNews{items: []models.NewsItem{
		{Headline: "Apple beats estimates, shares surge to record"},
		{Headline: "Analysts upgrade Apple on strong growth"},
	}}
	insider := &fakeInsider{txs: []models.InsiderTransaction{{Change: 5000}, {Change: -1000}}}
	fund := &fakeFundamentals{f: models.Fundamentals{PERatio: 12, RevenueGrowth: 15, ROE: 30, DebtToEquity: 0.3}}

	a := NewAnalyzer(Sources{News: news, Insider: insider, Fundamentals: fund, Book: fakeBook{imb: 0.5}}, Config{}, nil).
		WithClock(func() time.Time { return now })

	snap := history("AAPL", 100, 100.5, 101, 101.5, 102, 102.5, 103, 103.5)
	res := a.Analyze(context.Background(), snap, bullishTimeframes())

	require.Len(t, res.Factors, 6)
	assert.Equal(t, models.Bullish, res.Sentiment)
	assert.Greater(t, res.Score, 0.5)
	assert.Greater(t, res.Factors[models.FactorSentiment].Score, 0.0)
	assert.InDelta(t, 2*4000.0/6000.0, res.Factors[models.FactorInsider].Score, 1e-9)
	assert.Greater(t, res.Factors[models.FactorFundamental].Score, 0.0)
	assert.Greater(t, res.Factors[models.FactorTechnical].Score, 0.0)
	assert.NotContains(t, res.Reasoning, models.ReasonAPIDownFallback)
}

func TestSentimentAndInsiderAreCached(t *testing.T) {
	clock := now
	news := &fakeNews{items: []models.NewsItem{{Headline: "record profit"}}}
	insider := &fakeInsider{txs: []models.InsiderTransaction{{Change: 10}}}
	a := NewAnalyzer(Sources{News: news, Insider: insider}, Config{}, nil).
		WithClock(func() time.Time { return clock })

	snap := history("MSFT", 300, 301, 302, 303, 304, 305)
	a.Analyze(context.Background(), snap, nil)
	a.Analyze(context.Background(), snap, nil)
	assert.Equal(t, int32(1), news.calls.Load())
	assert.Equal(t, int32(1), insider.calls.Load())

	clock = clock.Add(6 * time.Minute)
	a.Analyze(context.Background(), snap, nil)
	assert.Equal(t, int32(2), news.calls.Load())
	assert.Equal(t, int32(1), insider.calls.Load())

	clock = clock.Add(time.Hour)
	a.Analyze(context.Background(), snap, nil)
	assert.Equal(t, int32(2), insider.calls.Load())
}

func TestBreakerOpenDegradesFactor(t *testing.T) {
	down := fmt.Errorf("news: %w", repository.ErrUpstreamUnavailable)
	a := NewAnalyzer(Sources{
		News:         &fakeNews{err: down},
		Insider:      &fakeInsider{},
		Fundamentals: &fakeFundamentals{f: models.Fundamentals{PERatio: 20}},
	}, Config{}, nil)

	snap := history("NVDA", 100, 101, 102, 103, 104, 105, 106)
	res := a.Analyze(context.Background(), snap, bullishTimeframes())

	s := res.Factors[models.FactorSentiment]
	assert.Equal(t, 0.0, s.Score)
	assert.Equal(t, 0.0, s.Confidence)
	assert.True(t, s.Fallback)
	assert.Contains(t, res.Reasoning, models.ReasonAPIDownFallback)
	assert.Greater(t, res.Confidence, 0.0)

	healthy := NewAnalyzer(Sources{
		News:         &fakeNews{items: []models.NewsItem{{Headline: "Nvidia shares surge on record demand"}}},
		Insider:      &fakeInsider{},
		Fundamentals: &fakeFundamentals{f: models.Fundamentals{PERatio: 20}},
	}, Config{}, nil).Analyze(context.Background(), snap, bullishTimeframes())
	require.Greater(t, healthy.Factors[models.FactorSentiment].Confidence, 0.0)
	assert.Less(t, res.Confidence, healthy.Confidence)
}

func TestBlendCountsFallbackFactors(t *testing.T) {
	base := map[models.FactorName]models.FactorResult{
		models.FactorMomentum:  {Score: 1, Confidence: 60},
		models.FactorTechnical: {Score: 1, Confidence: 60},
	}
	assert.Equal(t, 60.0, Blend(base).Confidence)

	base[models.FactorSentiment] = models.FactorResult{Fallback: true, Reason: models.ReasonAPIDownFallback}
	assert.Equal(t, 40.0, Blend(base).Confidence)

	// a skipped factor is not a degradation
	delete(base, models.FactorSentiment)
	base[models.FactorInsider] = models.FactorResult{Reason: models.ReasonCryptoSkip}
	assert.Equal(t, 60.0, Blend(base).Confidence)
}

func TestCryptoSkipsFundamentals(t *testing.T) {
	fund := &fakeFundamentals{}
	a := NewAnalyzer(Sources{News: &fakeNews{}, Fundamentals: fund}, Config{}, nil)

	res := a.Analyze(context.Background(), history("BTC/USD", 60000, 60500, 61000, 61500, 62000, 62000), nil)

	f := res.Factors[models.FactorFundamental]
	assert.Equal(t, models.FactorResult{Reason: models.ReasonCryptoSkip}, f)
	assert.Equal(t, int32(0), fund.calls.Load())
}

func TestKeywordScorer(t *testing.T) {
	k := NewKeywordScorer()

	score, conf, err := k.Score(context.Background(), []models.NewsItem{{Headline: "Shares plunge after earnings miss"}})
	require.NoError(t, err)
	assert.Equal(t, -2.0, score)
	assert.Equal(t, 35.0, conf)

	score, conf, _ = k.Score(context.Background(), []models.NewsItem{{Headline: "Company holds annual meeting"}})
	assert.Equal(t, 0.0, score)
	assert.Equal(t, 20.0, conf)
}
