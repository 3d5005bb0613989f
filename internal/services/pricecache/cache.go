package pricecache

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"SignalForge/internal/domain/models"
)

const (
	DefaultHistorySize      = 100
	DefaultStaleAfter       = 24 * time.Hour
	DefaultSweepProbability = 0.001
)

// State is the mutable per-symbol record. Only reachable under the entry lock.
type State struct {
	CurrentPrice  float64
	PreviousPrice float64
	History       []models.PricePoint
	LastUpdate    time.Time
	LastAnalysis  time.Time
	CooldownUntil time.Time
}

type symbolEntry struct {
	mu    sync.Mutex
	state State
}

func (e *symbolEntry) snapshot(inst models.Instrument) models.SymbolSnapshot {
	hist := make([]models.PricePoint, len(e.state.History))
	copy(hist, e.state.History)
	return models.SymbolSnapshot{
		Instrument:    inst,
		CurrentPrice:  e.state.CurrentPrice,
		PreviousPrice: e.state.PreviousPrice,
		History:       hist,
		LastUpdate:    e.state.LastUpdate,
		LastAnalysis:  e.state.LastAnalysis,
		CooldownUntil: e.state.CooldownUntil,
	}
}

// Options tunes a Cache. A zero SweepProbability disables the random sweep.
type Options struct {
	HistorySize      int
	StaleAfter       time.Duration
	SweepProbability float64
	Rand             *rand.Rand
	Now              func() time.Time
}

// Cache keeps a bounded rolling price history per instrument.
type Cache struct {
	mu      sync.RWMutex
	entries map[models.Instrument]*symbolEntry

	size       int
	staleAfter time.Duration
	sweepProb  float64

	rndMu sync.Mutex
	rnd   *rand.Rand
	now   func() time.Time
}

func New(opts Options) *Cache {
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.SweepProbability < 0 {
		opts.SweepProbability = 0
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		entries:    make(map[models.Instrument]*symbolEntry),
		size:       opts.HistorySize,
		staleAfter: opts.StaleAfter,
		sweepProb:  opts.SweepProbability,
		rnd:        opts.Rand,
		now:        opts.Now,
	}
}

func (c *Cache) entry(inst models.Instrument, create bool) *symbolEntry {
	c.mu.RLock()
	e, ok := c.entries[inst]
	c.mu.RUnlock()
	if ok || !create {
		return e
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[inst]; ok {
		return e
	}
	e = &symbolEntry{}
	c.entries[inst] = e
	return e
}

// Update appends ev to the symbol history and returns the post-append snapshot.
// Out-of-order timestamps are clamped to the last point so history stays monotone.
func (c *Cache) Update(ev models.PriceEvent) models.SymbolSnapshot {
	now := c.now()
	e := c.entry(ev.Instrument, true)

	e.mu.Lock()
	st := &e.state
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = now
	}
	if n := len(st.History); n > 0 && ts.Before(st.History[n-1].Timestamp) {
		ts = st.History[n-1].Timestamp
	}
	st.History = append(st.History, models.PricePoint{Price: ev.Price, Volume: ev.Volume, Timestamp: ts})
	if over := len(st.History) - c.size; over > 0 {
		trimmed := make([]models.PricePoint, c.size)
		copy(trimmed, st.History[over:])
		st.History = trimmed
	}
	if st.CurrentPrice > 0 {
		st.PreviousPrice = st.CurrentPrice
	} else {
		st.PreviousPrice = ev.Price
	}
	st.CurrentPrice = ev.Price
	st.LastUpdate = now
	snap := e.snapshot(ev.Instrument)
	e.mu.Unlock()

	if c.roll() {
		c.Sweep(now)
	}
	return snap
}

func (c *Cache) roll() bool {
	if c.sweepProb <= 0 {
		return false
	}
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.rnd.Float64() < c.sweepProb
}

// Sweep evicts symbols not updated within the stale window and returns how many were removed.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for inst, e := range c.entries {
		e.mu.Lock()
		stale := now.Sub(e.state.LastUpdate) > c.staleAfter
		e.mu.Unlock()
		if stale {
			delete(c.entries, inst)
			removed++
		}
	}
	return removed
}

// Snapshot returns a deep copy of the symbol state.
func (c *Cache) Snapshot(inst models.Instrument) (models.SymbolSnapshot, bool) {
	e := c.entry(inst, false)
	if e == nil {
		return models.SymbolSnapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(inst), true
}

// Modify runs fn under the symbol lock. It returns false when the symbol is unknown.
func (c *Cache) Modify(inst models.Instrument, fn func(st *State)) bool {
	e := c.entry(inst, false)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.state)
	return true
}

// MarkAnalyzed records the analysis time.
func (c *Cache) MarkAnalyzed(inst models.Instrument, at time.Time) {
	c.Modify(inst, func(st *State) { st.LastAnalysis = at })
}

// SetCooldown blocks analyses of inst until the given time.
func (c *Cache) SetCooldown(inst models.Instrument, until time.Time) {
	c.Modify(inst, func(st *State) {
		if until.After(st.CooldownUntil) {
			st.CooldownUntil = until
		}
	})
}

// Freshness returns the fraction of tracked symbols whose latest point is within window of now,
// plus the number of tracked symbols.
func (c *Cache) Freshness(now time.Time, window time.Duration) (float64, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.entries) == 0 {
		return 1, 0
	}
	fresh := 0
	for _, e := range c.entries {
		e.mu.Lock()
		if n := len(e.state.History); n > 0 && now.Sub(e.state.History[n-1].Timestamp) <= window {
			fresh++
		}
		e.mu.Unlock()
	}
	return float64(fresh) / float64(len(c.entries)), len(c.entries)
}

// Symbols lists tracked instruments in lexical order.
func (c *Cache) Symbols() []models.Instrument {
	c.mu.RLock()
	out := make([]models.Instrument, 0, len(c.entries))
	for inst := range c.entries {
		out = append(out, inst)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
