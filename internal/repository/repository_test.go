package repository

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	"SignalForge/pkg/cache"
)

func newRedisStore(t *testing.T) (*RedisTipStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisTipStore(cache.NewFromClient(rdb, "sf")), mr
}

func sampleTip(sym string) models.Tip {
	return models.Tip{
		Instrument:    models.Instrument(sym),
		Sentiment:     models.Bullish,
		FinalStrength: 4.6,
		CurrentPrice:  190.25,
		Levels:        models.Levels{Entry: 190.25, StopLoss: 186.25, TakeProfit1: 200.25, TakeProfit2: 206.25},
		Horizon:       models.HorizonMid,
		TrackingID:    "trk-" + sym,
	}
}

func TestRedisUpsertKeepsCreatedAt(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	t0 := time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)
	clock := t0
	store.WithClock(func() time.Time { return clock })

	require.NoError(t, store.UpsertLatestTip(ctx, models.HorizonMid, sampleTip("AAPL")))
	clock = t0.Add(2 * time.Hour)
	require.NoError(t, store.UpsertLatestTip(ctx, models.HorizonMid, sampleTip("NVDA")))

	got, err := store.LatestTip(ctx, models.HorizonMid)
	require.NoError(t, err)
	assert.Equal(t, models.Instrument("NVDA"), got.Tip.Instrument)
	assert.True(t, got.CreatedAt.Equal(t0))
	assert.True(t, got.UpdatedAt.Equal(clock))

	assert.Equal(t, "NVDA", mr.HGet("sf:latest_tips:mid_term", "symbol"))
	var payload models.Tip
	require.NoError(t, json.Unmarshal([]byte(mr.HGet("sf:latest_tips:mid_term", "payload")), &payload))
	assert.Equal(t, "trk-NVDA", payload.TrackingID)

	_, err = store.LatestTip(ctx, models.HorizonShort)
	assert.ErrorIs(t, err, drepo.ErrNotFound)
}

func TestRedisLatestTipTimes(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	t0 := time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)
	store.WithClock(func() time.Time { return t0 })

	times, err := store.LatestTipTimes(ctx)
	require.NoError(t, err)
	assert.Empty(t, times)

	require.NoError(t, store.UpsertLatestTip(ctx, models.HorizonLong, sampleTip("MSFT")))
	times, err = store.LatestTipTimes(ctx)
	require.NoError(t, err)
	require.Len(t, times, 1)
	assert.True(t, times[models.HorizonLong].Equal(t0))
}

func TestRedisStatsIncrement(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	at := time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)

	_, err := store.Stats(ctx)
	assert.ErrorIs(t, err, drepo.ErrNotFound)

	_, err = store.UpdateStats(ctx, 95, 97, at)
	require.NoError(t, err)
	st, err := store.UpdateStats(ctx, 98, 99, at)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.GeneratedTips)

	read, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AppStats{GeneratedTips: 2, SuccessRate: 98, AIAccuracy: 99, LastUpdated: at}, read)
}

func TestRedisAppendAnalytics(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	rec := models.AnalyticsRecord{MessageID: "m-1", Topic: "trading_tips", Horizon: models.HorizonShort, Symbol: "AAPL", CreatedAt: time.Now()}
	require.NoError(t, store.AppendAnalytics(ctx, rec))

	msgs, err := store.rdb.XRange(ctx, "sf:notification_analytics", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m-1", msgs[0].Values["messageId"])
	assert.Equal(t, "short_term", msgs[0].Values["horizon"])
}

func TestRedisPersistenceFailure(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()
	err := store.UpsertLatestTip(context.Background(), models.HorizonShort, sampleTip("AAPL"))
	assert.ErrorIs(t, err, drepo.ErrPersistence)
	assert.Error(t, store.Health(context.Background()))
}

func TestMemoryTipStore(t *testing.T) {
	store := NewMemoryTipStore()
	ctx := context.Background()
	t0 := time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)
	clock := t0
	store.WithClock(func() time.Time { return clock })

	require.NoError(t, store.UpsertLatestTip(ctx, models.HorizonShort, sampleTip("AAPL")))
	clock = t0.Add(time.Hour)
	require.NoError(t, store.UpsertLatestTip(ctx, models.HorizonShort, sampleTip("TSLA")))

	got, err := store.LatestTip(ctx, models.HorizonShort)
	require.NoError(t, err)
	assert.Equal(t, models.Instrument("TSLA"), got.Tip.Instrument)
	assert.Equal(t, t0, got.CreatedAt)
	assert.Equal(t, clock, got.UpdatedAt)

	times, err := store.LatestTipTimes(ctx)
	require.NoError(t, err)
	assert.Len(t, times, 1)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.UpdateStats(ctx, 96, 97, clock)
		}()
	}
	wg.Wait()
	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), st.GeneratedTips)

	require.NoError(t, store.AppendAnalytics(ctx, models.AnalyticsRecord{MessageID: "x"}))
	assert.Len(t, store.Analytics(), 1)
}

type recordingPublisher struct {
	topic string
	key   []byte
	value interface{}
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topic, p.key, p.value = topic, key, value
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestKafkaBroadcasterKeysBySymbol(t *testing.T) {
	pub := &recordingPublisher{}
	b := NewKafkaBroadcaster(pub, "trading_tips")
	n := models.Notification{Title: "t", Data: map[string]string{"symbol": "AAPL"}}
	require.NoError(t, b.Broadcast(context.Background(), "AAPL", n))
	assert.Equal(t, "trading_tips", pub.topic)
	assert.Equal(t, []byte("AAPL"), pub.key)
	assert.Equal(t, n, pub.value)
}
