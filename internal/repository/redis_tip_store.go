package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	"SignalForge/pkg/cache"
)

const (
	latestTipsKey      = "latest_tips"
	appStatsKey        = "app_stats:global_stats"
	analyticsStreamKey = "notification_analytics"
	analyticsMaxLen    = 10000
)

// RedisTipStore keeps one hash per horizon slot, a global stats hash, and an
// analytics stream.
type RedisTipStore struct {
	rc  *cache.RedisCache
	rdb *redis.Client
	now func() time.Time
}

func NewRedisTipStore(rc *cache.RedisCache) *RedisTipStore {
	return &RedisTipStore{rc: rc, rdb: rc.Client(), now: time.Now}
}

// WithClock overrides the server timestamp source.
func (s *RedisTipStore) WithClock(now func() time.Time) *RedisTipStore {
	s.now = now
	return s
}

func (s *RedisTipStore) slotKey(h models.Horizon) string {
	return s.rc.Key(latestTipsKey, string(h))
}

// UpsertLatestTip merges the tip into its slot. createdAt is written once.
func (s *RedisTipStore) UpsertLatestTip(ctx context.Context, h models.Horizon, tip models.Tip) error {
	payload, err := json.Marshal(tip)
	if err != nil {
		return fmt.Errorf("marshal tip: %w: %v", drepo.ErrPersistence, err)
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	key := s.slotKey(h)

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSetNX(ctx, key, "createdAt", now)
		p.HSet(ctx, key,
			"payload", payload,
			"symbol", tip.Instrument.String(),
			"sentiment", string(tip.Sentiment),
			"strength", strconv.FormatFloat(tip.FinalStrength, 'f', 2, 64),
			"trackingId", tip.TrackingID,
			"updatedAt", now,
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert %s: %w: %v", h, drepo.ErrPersistence, err)
	}
	return nil
}

func (s *RedisTipStore) LatestTip(ctx context.Context, h models.Horizon) (*models.StoredTip, error) {
	fields, err := s.rdb.HGetAll(ctx, s.slotKey(h)).Result()
	if err != nil {
		return nil, fmt.Errorf("latest tip %s: %w", h, err)
	}
	raw, ok := fields["payload"]
	if !ok {
		return nil, fmt.Errorf("latest tip %s: %w", h, drepo.ErrNotFound)
	}
	var out models.StoredTip
	if err := json.Unmarshal([]byte(raw), &out.Tip); err != nil {
		return nil, fmt.Errorf("decode tip %s: %w", h, err)
	}
	out.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["createdAt"])
	out.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updatedAt"])
	return &out, nil
}

func (s *RedisTipStore) LatestTipTimes(ctx context.Context) (map[models.Horizon]time.Time, error) {
	cmds := make(map[models.Horizon]*redis.StringCmd, len(models.AllHorizons))
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, h := range models.AllHorizons {
			cmds[h] = p.HGet(ctx, s.slotKey(h), "updatedAt")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("slot times: %w", err)
	}
	out := make(map[models.Horizon]time.Time, len(cmds))
	for h, cmd := range cmds {
		v, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("slot time %s: %w", h, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			continue
		}
		out[h] = ts
	}
	return out, nil
}

// UpdateStats increments generatedTips and overwrites the display rates.
func (s *RedisTipStore) UpdateStats(ctx context.Context, successRate, aiAccuracy int, at time.Time) (models.AppStats, error) {
	key := s.rc.Key(appStatsKey)
	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.HIncrBy(ctx, key, "generatedTips", 1)
		p.HSet(ctx, key,
			"successRate", successRate,
			"aiAccuracy", aiAccuracy,
			"lastUpdated", at.UTC().Format(time.RFC3339Nano),
		)
		return nil
	})
	if err != nil {
		return models.AppStats{}, fmt.Errorf("update stats: %w: %v", drepo.ErrPersistence, err)
	}
	return models.AppStats{
		GeneratedTips: incr.Val(),
		SuccessRate:   successRate,
		AIAccuracy:    aiAccuracy,
		LastUpdated:   at.UTC(),
	}, nil
}

func (s *RedisTipStore) Stats(ctx context.Context) (models.AppStats, error) {
	fields, err := s.rdb.HGetAll(ctx, s.rc.Key(appStatsKey)).Result()
	if err != nil {
		return models.AppStats{}, fmt.Errorf("stats: %w", err)
	}
	if len(fields) == 0 {
		return models.AppStats{}, fmt.Errorf("stats: %w", drepo.ErrNotFound)
	}
	var st models.AppStats
	st.GeneratedTips, _ = strconv.ParseInt(fields["generatedTips"], 10, 64)
	st.SuccessRate, _ = strconv.Atoi(fields["successRate"])
	st.AIAccuracy, _ = strconv.Atoi(fields["aiAccuracy"])
	st.LastUpdated, _ = time.Parse(time.RFC3339Nano, fields["lastUpdated"])
	return st, nil
}

// AppendAnalytics adds one entry to a capped stream.
func (s *RedisTipStore) AppendAnalytics(ctx context.Context, rec models.AnalyticsRecord) error {
	err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.rc.Key(analyticsStreamKey),
		MaxLen: analyticsMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"messageId":  rec.MessageID,
			"topic":      rec.Topic,
			"horizon":    string(rec.Horizon),
			"symbol":     rec.Symbol,
			"sentiment":  string(rec.Sentiment),
			"strength":   strconv.FormatFloat(rec.Strength, 'f', 2, 64),
			"title":      rec.Title,
			"body":       rec.Body,
			"trackingId": rec.TrackingID,
			"createdAt":  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("append analytics: %w: %v", drepo.ErrPersistence, err)
	}
	return nil
}

func (s *RedisTipStore) Health(ctx context.Context) error {
	return s.rc.Ping(ctx)
}

func (s *RedisTipStore) Close() error {
	return s.rc.Close()
}

var _ drepo.TipStore = (*RedisTipStore)(nil)
