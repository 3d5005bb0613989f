package pricecache

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalForge/internal/domain/models"
)

var t0 = time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC)

func event(sym string, price float64, at time.Time) models.PriceEvent {
	return models.PriceEvent{Instrument: models.Instrument(sym), Price: price, Volume: 10, Timestamp: at, Source: models.SourceEquityA}
}

func TestHistoryIsBounded(t *testing.T) {
	c := New(Options{Now: func() time.Time { return t0 }})
	for i := 0; i < 250; i++ {
		c.Update(event("AAPL", 100+float64(i), t0.Add(time.Duration(i)*time.Second)))
	}

	snap, ok := c.Snapshot("AAPL")
	require.True(t, ok)
	assert.Len(t, snap.History, DefaultHistorySize)
	assert.Equal(t, 349.0, snap.CurrentPrice)
	assert.Equal(t, 348.0, snap.PreviousPrice)
	assert.Equal(t, snap.CurrentPrice, snap.History[len(snap.History)-1].Price)
	assert.Equal(t, 250.0, snap.History[0].Price)
}

func TestDuplicateEventAppendsTwice(t *testing.T) {
	c := New(Options{})
	ev := event("MSFT", 300, t0)
	c.Update(ev)
	snap := c.Update(ev)

	assert.Len(t, snap.History, 2)
	assert.Equal(t, 300.0, snap.CurrentPrice)
}

func TestHistoryStaysMonotone(t *testing.T) {
	c := New(Options{})
	c.Update(event("NVDA", 100, t0))
	snap := c.Update(event("NVDA", 101, t0.Add(-time.Minute)))

	require.Len(t, snap.History, 2)
	assert.False(t, snap.History[1].Timestamp.Before(snap.History[0].Timestamp))
}

func TestSnapshotIsACopy(t *testing.T) {
	c := New(Options{})
	c.Update(event("AMD", 10, t0))
	snap, _ := c.Snapshot("AMD")
	snap.History[0].Price = -1

	again, _ := c.Snapshot("AMD")
	assert.Equal(t, 10.0, again.History[0].Price)
}

func TestSweepEvictsStale(t *testing.T) {
	now := t0
	c := New(Options{Now: func() time.Time { return now }, SweepProbability: 1, Rand: rand.New(rand.NewSource(1))})
	c.Update(event("GME", 20, now))

	now = now.Add(25 * time.Hour)
	c.Update(event("AMC", 5, now))

	assert.Equal(t, []models.Instrument{"AMC"}, c.Symbols())
}

func TestCooldownOnlyMovesForward(t *testing.T) {
	c := New(Options{})
	c.Update(event("TSLA", 200, t0))
	c.SetCooldown("TSLA", t0.Add(2*time.Hour))
	c.SetCooldown("TSLA", t0.Add(time.Hour))

	snap, _ := c.Snapshot("TSLA")
	assert.Equal(t, t0.Add(2*time.Hour), snap.CooldownUntil)
	assert.False(t, c.Modify("UNKNOWN", func(*State) {}))
}

func TestFreshness(t *testing.T) {
	c := New(Options{})
	ratio, n := c.Freshness(t0, 5*time.Minute)
	assert.Equal(t, 1.0, ratio)
	assert.Zero(t, n)

	c.Update(event("AAPL", 1, t0))
	c.Update(event("MSFT", 1, t0.Add(-10*time.Minute)))
	ratio, n = c.Freshness(t0, 5*time.Minute)
	assert.Equal(t, 0.5, ratio)
	assert.Equal(t, 2, n)
}

func TestConcurrentReadersSeeWholeStates(t *testing.T) {
	c := New(Options{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			c.Update(event("SPY", float64(i), t0.Add(time.Duration(i)*time.Millisecond)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if snap, ok := c.Snapshot("SPY"); ok && len(snap.History) > 0 {
				assert.Equal(t, snap.CurrentPrice, snap.History[len(snap.History)-1].Price)
			}
		}
	}()
	wg.Wait()
}
