package horizon

import (
	"context"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/pkg/logger"
)

const storeTimeout = 5 * time.Second

// Policy names the rule that produced a choice.
type Policy string

const (
	PolicyOldest  Policy = "oldest_slot"
	PolicyQuality Policy = "quality_fallback"
)

// SlotTimes reports when each horizon slot was last written.
type SlotTimes interface {
	LatestTipTimes(ctx context.Context) (map[models.Horizon]time.Time, error)
}

// Selector picks which latest-tip slot a new emission replaces.
type Selector struct {
	store SlotTimes
	log   *logger.Logger
}

func New(store SlotTimes, log *logger.Logger) *Selector {
	if log == nil {
		log = logger.Nop()
	}
	return &Selector{store: store, log: log.Component("horizon")}
}

// Select returns the oldest slot, or the quality mapping when the store can't answer.
func (s *Selector) Select(ctx context.Context, c models.CandidateAnalysis) (models.Horizon, Policy) {
	if s.store != nil {
		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		times, err := s.store.LatestTipTimes(sctx)
		cancel()
		if err == nil {
			return Oldest(times), PolicyOldest
		}
		s.log.Warn("slot times unavailable, using quality mapping",
			logger.String("symbol", c.Instrument.String()),
			logger.Error(err))
	}
	return ByQuality(c.FinalStrength, c.RiskRewardRatio), PolicyQuality
}

// Oldest returns the slot with the greatest age. A slot never written is
// older than any written one; ties go to the shorter horizon.
func Oldest(times map[models.Horizon]time.Time) models.Horizon {
	best := models.AllHorizons[0]
	bestAt, bestSeen := lookup(times, best)
	for _, h := range models.AllHorizons[1:] {
		at, seen := lookup(times, h)
		switch {
		case !bestSeen:
			continue
		case !seen:
			best, bestAt, bestSeen = h, at, false
		case at.Before(bestAt):
			best, bestAt = h, at
		}
	}
	return best
}

func lookup(times map[models.Horizon]time.Time, h models.Horizon) (time.Time, bool) {
	at, ok := times[h]
	return at, ok && !at.IsZero()
}

// ByQuality maps strength and risk/reward to a slot.
func ByQuality(strength, rr float64) models.Horizon {
	switch {
	case strength >= 4.5 && rr >= 3.0:
		return models.HorizonShort
	case strength >= 4.0 && rr >= 2.5:
		return models.HorizonMid
	default:
		return models.HorizonLong
	}
}
