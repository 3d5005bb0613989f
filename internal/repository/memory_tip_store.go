package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
)

// MemoryTipStore is the TipStore used when Redis is disabled. Nothing survives a restart.
type MemoryTipStore struct {
	mu        sync.RWMutex
	slots     map[models.Horizon]models.StoredTip
	stats     models.AppStats
	hasStats  bool
	analytics []models.AnalyticsRecord
	maxLen    int
	now       func() time.Time
}

func NewMemoryTipStore() *MemoryTipStore {
	return &MemoryTipStore{
		slots:  make(map[models.Horizon]models.StoredTip, len(models.AllHorizons)),
		maxLen: analyticsMaxLen,
		now:    time.Now,
	}
}

func (s *MemoryTipStore) WithClock(now func() time.Time) *MemoryTipStore {
	s.now = now
	return s
}

func (s *MemoryTipStore) UpsertLatestTip(_ context.Context, h models.Horizon, tip models.Tip) error {
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.slots[h]
	if !ok {
		cur.CreatedAt = now
	}
	cur.Tip = tip
	cur.UpdatedAt = now
	s.slots[h] = cur
	return nil
}

func (s *MemoryTipStore) LatestTip(_ context.Context, h models.Horizon) (*models.StoredTip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.slots[h]
	if !ok {
		return nil, fmt.Errorf("latest tip %s: %w", h, drepo.ErrNotFound)
	}
	return &st, nil
}

func (s *MemoryTipStore) LatestTipTimes(context.Context) (map[models.Horizon]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.Horizon]time.Time, len(s.slots))
	for h, st := range s.slots {
		out[h] = st.UpdatedAt
	}
	return out, nil
}

func (s *MemoryTipStore) UpdateStats(_ context.Context, successRate, aiAccuracy int, at time.Time) (models.AppStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.GeneratedTips++
	s.stats.SuccessRate = successRate
	s.stats.AIAccuracy = aiAccuracy
	s.stats.LastUpdated = at.UTC()
	s.hasStats = true
	return s.stats, nil
}

func (s *MemoryTipStore) Stats(context.Context) (models.AppStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasStats {
		return models.AppStats{}, fmt.Errorf("stats: %w", drepo.ErrNotFound)
	}
	return s.stats, nil
}

func (s *MemoryTipStore) AppendAnalytics(_ context.Context, rec models.AnalyticsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analytics = append(s.analytics, rec)
	if len(s.analytics) > s.maxLen {
		s.analytics = s.analytics[len(s.analytics)-s.maxLen:]
	}
	return nil
}

// Analytics returns a copy of the retained records.
func (s *MemoryTipStore) Analytics() []models.AnalyticsRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AnalyticsRecord(nil), s.analytics...)
}

func (s *MemoryTipStore) Health(context.Context) error { return nil }

func (s *MemoryTipStore) Close() error { return nil }

var _ drepo.TipStore = (*MemoryTipStore)(nil)
