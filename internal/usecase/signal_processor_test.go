package usecase

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	mid "SignalForge/internal/middleware"
	"SignalForge/internal/repository"
	"SignalForge/internal/services/consensus"
	"SignalForge/internal/services/gate"
	"SignalForge/internal/services/horizon"
	"SignalForge/internal/services/pricecache"
	"SignalForge/internal/services/quality"
	"SignalForge/pkg/metrics"
)

// Monday 2024-06-10 14:00 America/New_York
var session = time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC)

type stubTechnical struct {
	sentiment models.Sentiment
	strength  float64
	atr       float64

	mu    sync.Mutex
	calls int
}

func (s *stubTechnical) Analyze(_ context.Context, snap models.SymbolSnapshot) []models.TimeframeAnalysis {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	out := make([]models.TimeframeAnalysis, 0, len(models.AllTimeframes))
	for _, tf := range models.AllTimeframes {
		a := models.TimeframeAnalysis{Timeframe: tf, Sentiment: s.sentiment, Strength: s.strength}
		if tf == models.TF1h {
			a.Indicators.ATR = s.atr
		}
		out = append(out, a)
	}
	return out
}

func (s *stubTechnical) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubComposite struct{ res models.CompositeResult }

func (s stubComposite) Analyze(context.Context, models.SymbolSnapshot, []models.TimeframeAnalysis) models.CompositeResult {
	return s.res
}

var lowConfidenceNeutral = stubComposite{res: models.CompositeResult{Sentiment: models.Neutral, Score: 0.1, Confidence: 20}}

type harness struct {
	proc    *SignalProcessor
	cache   *pricecache.Cache
	quality *quality.Gate
	store   *repository.MemoryTipStore
	kafka   *recordingBroadcaster
	tech    *stubTechnical

	mu  sync.Mutex
	now time.Time
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) setNow(t time.Time) {
	h.mu.Lock()
	h.now = t
	h.mu.Unlock()
}

func newHarness(t *testing.T, tech *stubTechnical, store drepo.TipStore) *harness {
	t.Helper()
	h := &harness{now: session, tech: tech, kafka: &recordingBroadcaster{name: "kafka"}}
	mem := repository.NewMemoryTipStore().WithClock(h.clock)
	h.store = mem
	if store == nil {
		store = mem
	}

	h.cache = pricecache.New(pricecache.Options{SweepProbability: 0, Now: h.clock})
	h.quality = quality.New(quality.Config{}, h.cache)
	em := NewEmitter(EmitterConfig{}, store, []drepo.Broadcaster{h.kafka}, nil, metrics.Noop{}, rand.New(rand.NewSource(1)), nil).
		WithClock(h.clock).
		WithIDs(sequentialIDs())

	h.proc = NewSignalProcessor(ProcessorDeps{
		Cache:     h.cache,
		Gate:      gate.New(h.cache, gate.Config{}),
		Technical: tech,
		Composite: lowConfidenceNeutral,
		Consensus: consensus.New(nil, rand.New(rand.NewSource(1)), nil),
		Quality:   h.quality,
		Horizon:   horizon.New(store, nil),
		Emitter:   em,
	}, metrics.Noop{}, nil).WithClock(h.clock)
	return h
}

// ramp returns n events from start to end, the last stamped at last.
func ramp(sym models.Instrument, n int, start, end float64, last time.Time, step time.Duration) []models.PriceEvent {
	out := make([]models.PriceEvent, n)
	for i := 0; i < n; i++ {
		price := start
		if n > 1 {
			price = start + (end-start)*float64(i)/float64(n-1)
		}
		out[i] = models.PriceEvent{
			Instrument: sym,
			Price:      price,
			Volume:     100,
			Timestamp:  last.Add(-time.Duration(n-1-i) * step),
			Source:     models.SourceEquityA,
		}
	}
	return out
}

func TestHappyPathBullishEquity(t *testing.T) {
	tech := &stubTechnical{sentiment: models.Bullish, strength: 4.0, atr: 0.5}
	h := newHarness(t, tech, nil)
	ctx := context.Background()

	events := ramp("AAPL", 30, 100, 103.5, session, 10*time.Second)
	// history built up before the instant under test
	for _, ev := range events[:29] {
		h.cache.Update(ev)
	}
	require.NoError(t, h.proc.Process(ctx, events[29]))

	tip, err := h.store.LatestTip(ctx, models.HorizonShort)
	require.NoError(t, err)
	assert.Equal(t, models.Bullish, tip.Tip.Sentiment)
	assert.InDelta(t, 103.5, tip.Tip.Levels.Entry, 1e-9)
	assert.InDelta(t, 103.5-2*0.5, tip.Tip.Levels.StopLoss, 1e-9)
	assert.InDelta(t, 103.5+5*0.5, tip.Tip.Levels.TakeProfit1, 1e-9)
	assert.InDelta(t, 2.5, tip.Tip.RiskRewardRatio, 0.01)
	assert.GreaterOrEqual(t, tip.Tip.FinalStrength, 4.0)

	snap, ok := h.cache.Snapshot("AAPL")
	require.True(t, ok)
	assert.Equal(t, session.Add(2*time.Hour), snap.CooldownUntil)
	assert.Equal(t, 1, h.quality.Counters().DailyCount)
	assert.Len(t, h.kafka.Sent(), 1)

	st := h.proc.Stats()
	assert.Equal(t, int64(1), st.Emissions)
	assert.Equal(t, int64(1), st.Analyses)
}

func TestWeakSignalRejected(t *testing.T) {
	tech := &stubTechnical{sentiment: models.Bullish, strength: 3.0, atr: 0.30}
	h := newHarness(t, tech, nil)
	ctx := context.Background()

	for _, ev := range ramp("MSFT", 20, 300, 300, session, 10*time.Second) {
		require.NoError(t, h.proc.Process(ctx, ev))
	}

	assert.Equal(t, 1, tech.Calls())
	_, err := h.store.LatestTip(ctx, models.HorizonShort)
	assert.ErrorIs(t, err, drepo.ErrNotFound)
	assert.Empty(t, h.kafka.Sent())
	assert.Zero(t, h.quality.Counters().DailyCount)

	st := h.proc.Stats()
	assert.Equal(t, int64(1), st.Rejections[string(quality.WeakSignal)])
	assert.Equal(t, int64(19), st.Gate[string(gate.InsufficientHistory)])
}

func TestHourlySpacingAcrossSymbols(t *testing.T) {
	tech := &stubTechnical{sentiment: models.Bullish, strength: 4.0, atr: 1.0}
	h := newHarness(t, tech, nil)
	ctx := context.Background()

	for _, ev := range ramp("GOOGL", 20, 170, 175, session, 10*time.Second) {
		require.NoError(t, h.proc.Process(ctx, ev))
	}
	h.setNow(session.Add(20 * time.Second))
	for _, ev := range ramp("NVDA", 20, 118, 121, session.Add(20*time.Second), 10*time.Second) {
		require.NoError(t, h.proc.Process(ctx, ev))
	}

	assert.Len(t, h.kafka.Sent(), 1)
	times, err := h.store.LatestTipTimes(ctx)
	require.NoError(t, err)
	assert.Len(t, times, 1)

	st := h.proc.Stats()
	assert.Equal(t, int64(1), st.Emissions)
	assert.Equal(t, int64(1), st.Rejections[string(quality.HourlyLimit)])

	snap, _ := h.cache.Snapshot("NVDA")
	assert.True(t, snap.CooldownUntil.IsZero())
}

func TestCryptoBlockedDuringSession(t *testing.T) {
	tech := &stubTechnical{sentiment: models.Bullish, strength: 4.0, atr: 150}
	h := newHarness(t, tech, nil)
	ctx := context.Background()

	for _, ev := range ramp("BTC/USD", 20, 60000, 62000, session, 10*time.Second) {
		ev.Source = models.SourceCrypto
		require.NoError(t, h.proc.Process(ctx, ev))
	}
	assert.Zero(t, tech.Calls())
	assert.Equal(t, int64(1), h.proc.Stats().Gate[string(gate.CryptoBlackout)])

	// 22:00 America/New_York, after the close
	night := session.Add(8 * time.Hour)
	h.setNow(night)
	require.NoError(t, h.proc.Process(ctx, models.PriceEvent{
		Instrument: "BTC/USD", Price: 62010, Volume: 1, Timestamp: night, Source: models.SourceCrypto,
	}))
	assert.Equal(t, 1, tech.Calls())
}

func TestPersistenceFailureStillCounts(t *testing.T) {
	tech := &stubTechnical{sentiment: models.Bullish, strength: 4.0, atr: 0.5}
	h := newHarness(t, tech, failingStore{repository.NewMemoryTipStore()})
	ctx := context.Background()

	for _, ev := range ramp("AMD", 20, 150, 154, session, 10*time.Second) {
		require.NoError(t, h.proc.Process(ctx, ev))
	}

	assert.Empty(t, h.kafka.Sent())
	assert.Equal(t, 1, h.quality.Counters().DailyCount)
	snap, _ := h.cache.Snapshot("AMD")
	assert.Equal(t, session.Add(2*time.Hour), snap.CooldownUntil)
	assert.Equal(t, int64(1), h.proc.Stats().Failures)
}

func TestProcessRejectsMalformed(t *testing.T) {
	h := newHarness(t, &stubTechnical{}, nil)
	err := h.proc.Process(context.Background(), models.PriceEvent{Instrument: "AAPL", Price: 0})
	assert.ErrorIs(t, err, drepo.ErrMalformedMessage)
	assert.Zero(t, h.cache.Len())
}

func TestShutdownDrainsPipeline(t *testing.T) {
	tech := &stubTechnical{sentiment: models.Bullish, strength: 4.0, atr: 0.5}
	h := newHarness(t, tech, nil)

	pipe := mid.NewRealtimePipeline(h.proc, metrics.Noop{}, mid.WithShards(4), mid.WithBufferSize(64))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pipe.Start(ctx)

	for _, ev := range ramp("AAPL", 25, 100, 103, session, 10*time.Second) {
		require.NoError(t, pipe.Submit(ev))
	}

	dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dcancel()
	require.NoError(t, pipe.Drain(dctx))
	require.NoError(t, h.proc.deps.Emitter.Wait(dctx))

	err := pipe.Submit(models.PriceEvent{Instrument: "AAPL", Price: 104, Timestamp: session})
	assert.ErrorIs(t, err, drepo.ErrShuttingDown)
	assert.Equal(t, int64(25), h.proc.Stats().Events)
	assert.Len(t, h.kafka.Sent(), 1)
}
