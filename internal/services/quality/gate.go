package quality

import (
	"fmt"
	"sync"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
	"SignalForge/pkg/util"
)

// Reason explains an admission decision.
type Reason string

const (
	Admitted         Reason = "admitted"
	WeakSignal       Reason = "weak_signal"
	IncompleteLevels Reason = "incomplete_levels"
	LowRiskReward    Reason = "low_risk_reward"
	DailyLimit       Reason = "daily_limit"
	HourlyLimit      Reason = "hourly_limit"
)

const rrTolerance = 1e-9

// Config holds the admission thresholds.
type Config struct {
	MinFinalStrength float64
	MinRiskReward    float64
	DailyCap         int
	MinSpacing       time.Duration
	SymbolCooldown   time.Duration
}

func (c *Config) applyDefaults() {
	if c.MinFinalStrength <= 0 {
		c.MinFinalStrength = 4.0
	}
	if c.MinRiskReward <= 0 {
		c.MinRiskReward = 2.5
	}
	if c.DailyCap <= 0 {
		c.DailyCap = 5
	}
	if c.MinSpacing <= 0 {
		c.MinSpacing = time.Hour
	}
	if c.SymbolCooldown <= 0 {
		c.SymbolCooldown = 2 * time.Hour
	}
}

// CooldownSetter receives the per-symbol cooldown set on admission.
type CooldownSetter interface {
	SetCooldown(inst models.Instrument, until time.Time)
}

// Counters is a copy of the system-wide emission counters.
type Counters struct {
	DailyCount   int       `json:"dailyCount"`
	HourlyCount  int       `json:"hourlyCount"`
	LastSignalTs time.Time `json:"lastSignalTs"`
	DayStamp     string    `json:"dayStamp"`
	HourStamp    string    `json:"hourStamp"`
}

// Decision is the outcome of TryAdmit.
type Decision struct {
	Admitted      bool
	Reason        Reason
	CooldownUntil time.Time
}

// Err returns nil for admissions and a wrapped sentinel otherwise.
func (d Decision) Err() error {
	switch d.Reason {
	case Admitted:
		return nil
	case DailyLimit, HourlyLimit:
		return fmt.Errorf("%s: %w", d.Reason, repository.ErrRateLimited)
	default:
		return fmt.Errorf("rejected: %s", d.Reason)
	}
}

// Gate is the quality gate and system-wide rate limiter. Admission and the
// counter update happen under one lock.
type Gate struct {
	cfg       Config
	cooldowns CooldownSetter

	mu       sync.Mutex
	counters Counters
	recent   []time.Time
}

func New(cfg Config, cooldowns CooldownSetter) *Gate {
	cfg.applyDefaults()
	return &Gate{cfg: cfg, cooldowns: cooldowns}
}

// TryAdmit evaluates c at now and, when admitted, counts the emission and sets
// the symbol cooldown.
func (g *Gate) TryAdmit(c models.CandidateAnalysis, now time.Time) Decision {
	if c.FinalStrength < g.cfg.MinFinalStrength {
		return Decision{Reason: WeakSignal}
	}
	if !LevelsValid(c.Sentiment, c.Levels) {
		return Decision{Reason: IncompleteLevels}
	}
	if c.Levels.RiskReward() < g.cfg.MinRiskReward-rrTolerance {
		return Decision{Reason: LowRiskReward}
	}

	g.mu.Lock()
	g.roll(now)
	if len(g.recent) >= g.cfg.DailyCap || g.counters.DailyCount >= g.cfg.DailyCap {
		g.mu.Unlock()
		return Decision{Reason: DailyLimit}
	}
	if !g.counters.LastSignalTs.IsZero() && now.Sub(g.counters.LastSignalTs) < g.cfg.MinSpacing {
		g.mu.Unlock()
		return Decision{Reason: HourlyLimit}
	}
	g.counters.DailyCount++
	g.counters.HourlyCount++
	g.counters.LastSignalTs = now
	g.recent = append(g.recent, now)
	g.mu.Unlock()

	until := now.Add(g.cfg.SymbolCooldown)
	if g.cooldowns != nil {
		g.cooldowns.SetCooldown(c.Instrument, until)
	}
	return Decision{Admitted: true, Reason: Admitted, CooldownUntil: until}
}

// roll resets the calendar counters and prunes the rolling 24h window. Caller holds mu.
func (g *Gate) roll(now time.Time) {
	if day := util.DayStamp(now); day != g.counters.DayStamp {
		g.counters.DayStamp = day
		g.counters.DailyCount = 0
	}
	if hour := util.HourStamp(now); hour != g.counters.HourStamp {
		g.counters.HourStamp = hour
		g.counters.HourlyCount = 0
	}
	cutoff := now.Add(-24 * time.Hour)
	kept := g.recent[:0]
	for _, ts := range g.recent {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	g.recent = kept
}

// Counters returns a copy of the current counters.
func (g *Gate) Counters() Counters {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counters
}

// LevelsValid checks the level ordering for the sentiment. Neutral accepts either side.
func LevelsValid(s models.Sentiment, l models.Levels) bool {
	if !l.Complete() {
		return false
	}
	bull := l.StopLoss < l.Entry && l.Entry < l.TakeProfit1 && l.TakeProfit1 < l.TakeProfit2
	bear := l.TakeProfit2 < l.TakeProfit1 && l.TakeProfit1 < l.Entry && l.Entry < l.StopLoss
	switch s {
	case models.Bullish:
		return bull
	case models.Bearish:
		return bear
	default:
		return bull || bear
	}
}
