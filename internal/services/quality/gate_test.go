package quality

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
	"SignalForge/pkg/util"
)

type cooldownRecorder struct {
	mu  sync.Mutex
	set map[models.Instrument]time.Time
}

func (c *cooldownRecorder) SetCooldown(inst models.Instrument, until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set == nil {
		c.set = map[models.Instrument]time.Time{}
	}
	c.set[inst] = until
}

var start = time.Date(2024, 6, 10, 10, 0, 0, 0, util.NewYork())

func candidate(sym string, final float64) models.CandidateAnalysis {
	return models.CandidateAnalysis{
		Instrument:    models.Instrument(sym),
		Sentiment:     models.Bullish,
		FinalStrength: final,
		CurrentPrice:  100,
		Levels:        models.Levels{Entry: 100, StopLoss: 98, TakeProfit1: 105, TakeProfit2: 108},
	}
}

func TestAdmitSetsCooldownAndCounts(t *testing.T) {
	rec := &cooldownRecorder{}
	g := New(Config{}, rec)

	d := g.TryAdmit(candidate("AAPL", 4.3), start)
	require.True(t, d.Admitted)
	assert.NoError(t, d.Err())
	assert.Equal(t, start.Add(2*time.Hour), rec.set["AAPL"])

	c := g.Counters()
	assert.Equal(t, 1, c.DailyCount)
	assert.Equal(t, 1, c.HourlyCount)
	assert.Equal(t, start, c.LastSignalTs)
	assert.Equal(t, "2024-06-10", c.DayStamp)
}

func TestRejections(t *testing.T) {
	g := New(Config{}, nil)

	assert.Equal(t, WeakSignal, g.TryAdmit(candidate("MSFT", 3.9), start).Reason)

	bad := candidate("MSFT", 4.5)
	bad.Levels.StopLoss = 0
	assert.Equal(t, IncompleteLevels, g.TryAdmit(bad, start).Reason)

	inverted := candidate("MSFT", 4.5)
	inverted.Sentiment = models.Bearish
	assert.Equal(t, IncompleteLevels, g.TryAdmit(inverted, start).Reason)

	lowRR := candidate("MSFT", 4.5)
	lowRR.Levels.TakeProfit1 = 104
	assert.Equal(t, LowRiskReward, g.TryAdmit(lowRR, start).Reason)

	assert.Zero(t, g.Counters().DailyCount)
}

func TestHourlySpacing(t *testing.T) {
	g := New(Config{}, nil)

	require.True(t, g.TryAdmit(candidate("GOOGL", 4.5), start).Admitted)
	d := g.TryAdmit(candidate("NVDA", 4.5), start.Add(30*time.Second))
	assert.False(t, d.Admitted)
	assert.Equal(t, HourlyLimit, d.Reason)
	assert.ErrorIs(t, d.Err(), repository.ErrRateLimited)

	assert.True(t, g.TryAdmit(candidate("NVDA", 4.5), start.Add(time.Hour)).Admitted)
}

func TestDailyCapAcrossMidnight(t *testing.T) {
	g := New(Config{}, nil)
	at := start.Add(9 * time.Hour) // 19:00 ET
	for i := 0; i < 5; i++ {
		require.True(t, g.TryAdmit(candidate("SPY", 4.5), at).Admitted, "emission %d", i)
		at = at.Add(time.Hour)
	}
	assert.Equal(t, DailyLimit, g.TryAdmit(candidate("SPY", 4.5), at).Reason)

	// the calendar day rolled, but the rolling 24h window is still full
	assert.Equal(t, "2024-06-11", g.Counters().DayStamp)
	assert.Equal(t, DailyLimit, g.TryAdmit(candidate("SPY", 4.5), at.Add(2*time.Hour)).Reason)

	assert.True(t, g.TryAdmit(candidate("SPY", 4.5), start.Add(9*time.Hour+24*time.Hour+time.Second)).Admitted)
}

func TestConcurrentAdmissionsRespectCaps(t *testing.T) {
	g := New(Config{}, nil)
	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAdmit(candidate("QQQ", 4.5), start).Admitted {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), admitted.Load())
}

func TestLevelsValid(t *testing.T) {
	bull := models.Levels{Entry: 100, StopLoss: 98, TakeProfit1: 105, TakeProfit2: 108}
	bear := models.Levels{Entry: 100, StopLoss: 102, TakeProfit1: 95, TakeProfit2: 92}

	assert.True(t, LevelsValid(models.Bullish, bull))
	assert.False(t, LevelsValid(models.Bullish, bear))
	assert.True(t, LevelsValid(models.Bearish, bear))
	assert.True(t, LevelsValid(models.Neutral, bear))
	assert.False(t, LevelsValid(models.Neutral, models.Levels{Entry: 100, StopLoss: 100, TakeProfit1: 100, TakeProfit2: 100}))
}
