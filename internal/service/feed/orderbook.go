package feed

import (
	"sync"
	"time"

	"SignalForge/internal/domain/models"
)

// OrderBook keeps the latest top-of-book quote per instrument.
type OrderBook struct {
	mu     sync.RWMutex
	quotes map[models.Instrument]models.Quote
	now    func() time.Time
}

func NewOrderBook() *OrderBook {
	return &OrderBook{quotes: make(map[models.Instrument]models.Quote), now: time.Now}
}

// WithClock replaces the clock used for quote age.
func (b *OrderBook) WithClock(now func() time.Time) *OrderBook {
	b.now = now
	return b
}

// Apply stores q if it is not older than the current quote.
func (b *OrderBook) Apply(q models.Quote) {
	if q.Instrument == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.quotes[q.Instrument]; ok && q.Timestamp.Before(prev.Timestamp) {
		return
	}
	b.quotes[q.Instrument] = q
}

// Imbalance is (bidSize-askSize)/(bidSize+askSize) for a quote no older than maxAge.
func (b *OrderBook) Imbalance(inst models.Instrument, maxAge time.Duration) (float64, bool) {
	b.mu.RLock()
	q, ok := b.quotes[inst]
	b.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if maxAge > 0 && b.now().Sub(q.Timestamp) > maxAge {
		return 0, false
	}
	total := q.BidSize + q.AskSize
	if total <= 0 {
		return 0, false
	}
	return (q.BidSize - q.AskSize) / total, true
}
