package gate

import (
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/services/pricecache"
	"SignalForge/pkg/util"
)

// Decision is the outcome of the opportunity gate.
type Decision string

const (
	Analyze             Decision = "ok"
	InsufficientHistory Decision = "insufficient_history"
	CryptoBlackout      Decision = "crypto_blackout"
	Throttled           Decision = "throttled"
	Cooldown            Decision = "cooldown"
	UnknownSymbol       Decision = "unknown_symbol"
)

// Config holds the gate thresholds.
type Config struct {
	MinHistory       int
	AnalysisInterval time.Duration
}

// Gate decides whether a fresh price update should trigger analysis.
type Gate struct {
	cache    *pricecache.Cache
	cfg      Config
	marketOn func(time.Time) bool
}

func New(cache *pricecache.Cache, cfg Config) *Gate {
	if cfg.MinHistory <= 0 {
		cfg.MinHistory = 20
	}
	if cfg.AnalysisInterval <= 0 {
		cfg.AnalysisInterval = 30 * time.Second
	}
	return &Gate{cache: cache, cfg: cfg, marketOn: util.IsMarketOpen}
}

// WithMarketHours replaces the market-hours policy.
func (g *Gate) WithMarketHours(fn func(time.Time) bool) *Gate {
	g.marketOn = fn
	return g
}

// Check evaluates the gate for inst at now. On Analyze the symbol's lastAnalysis
// is set to now under the same lock that read it.
func (g *Gate) Check(inst models.Instrument, now time.Time) Decision {
	decision := UnknownSymbol
	g.cache.Modify(inst, func(st *pricecache.State) {
		switch {
		case len(st.History) < g.cfg.MinHistory:
			decision = InsufficientHistory
		case inst.IsCrypto() && g.marketOn(now):
			decision = CryptoBlackout
		case !st.LastAnalysis.IsZero() && now.Sub(st.LastAnalysis) < g.cfg.AnalysisInterval:
			decision = Throttled
		case now.Before(st.CooldownUntil):
			decision = Cooldown
		default:
			st.LastAnalysis = now
			decision = Analyze
		}
	})
	return decision
}
