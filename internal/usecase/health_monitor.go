package usecase

import (
	"context"
	"sync"
	"time"

	drepo "SignalForge/internal/domain/repository"
	"SignalForge/internal/domain/service"
	"SignalForge/internal/service/breaker"
	"SignalForge/pkg/logger"
)

// FeedControl is the part of the collector the health monitor drives.
type FeedControl interface {
	Feeds() []FeedStatus
	RequestReconnect(name string) bool
	ReconnectAll()
}

// FreshnessSource reports the fraction of symbols updated within window.
type FreshnessSource interface {
	Freshness(now time.Time, window time.Duration) (float64, int)
}

// HealthConfig holds monitor intervals and thresholds.
type HealthConfig struct {
	UpstreamInterval time.Duration
	SocketInterval   time.Duration
	FreshnessWindow  time.Duration
	MinFreshness     float64
	PingTimeout      time.Duration
}

func (c *HealthConfig) applyDefaults() {
	if c.UpstreamInterval <= 0 {
		c.UpstreamInterval = 120 * time.Second
	}
	if c.SocketInterval <= 0 {
		c.SocketInterval = 30 * time.Second
	}
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = 5 * time.Minute
	}
	if c.MinFreshness <= 0 {
		c.MinFreshness = 0.7
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 8 * time.Second
	}
}

// HealthReport is the outcome of one ping round.
type HealthReport struct {
	At            time.Time         `json:"at"`
	Pings         map[string]string `json:"pings"`
	Freshness     float64           `json:"freshness"`
	Symbols       int               `json:"symbols"`
	ResetBreakers []string          `json:"resetBreakers,omitempty"`
	Reconnected   bool              `json:"reconnected"`
}

// HealthMonitor pings upstreams, watches data freshness and keeps feeds up.
type HealthMonitor struct {
	cfg      HealthConfig
	breakers *breaker.Registry
	pingers  []service.Pinger
	fresh    FreshnessSource
	feeds    FeedControl
	metrics  drepo.Metrics
	log      *logger.Logger
	now      func() time.Time

	mu   sync.RWMutex
	last HealthReport
	wg   sync.WaitGroup
}

// NewHealthMonitor accepts nil fresh and feeds for ping-only use.
func NewHealthMonitor(cfg HealthConfig, breakers *breaker.Registry, pingers []service.Pinger, fresh FreshnessSource, feeds FeedControl, metrics drepo.Metrics, log *logger.Logger) *HealthMonitor {
	cfg.applyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &HealthMonitor{
		cfg:      cfg,
		breakers: breakers,
		pingers:  pingers,
		fresh:    fresh,
		feeds:    feeds,
		metrics:  metrics,
		log:      log.Component("health"),
		now:      time.Now,
	}
}

func (m *HealthMonitor) WithClock(now func() time.Time) *HealthMonitor {
	m.now = now
	return m
}

// Start runs the ping and socket loops until ctx ends.
func (m *HealthMonitor) Start(ctx context.Context) {
	m.wg.Add(2)
	go m.every(ctx, m.cfg.UpstreamInterval, func() { m.Check(ctx) })
	go m.every(ctx, m.cfg.SocketInterval, func() { m.CheckSockets() })
}

func (m *HealthMonitor) every(ctx context.Context, d time.Duration, fn func()) {
	defer m.wg.Done()
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}

// Wait blocks until both loops have returned.
func (m *HealthMonitor) Wait() { m.wg.Wait() }

// Ping calls every upstream's liveness endpoint through its breaker.
func (m *HealthMonitor) Ping(ctx context.Context) map[string]string {
	out := make(map[string]string, len(m.pingers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range m.pingers {
		wg.Add(1)
		go func(p service.Pinger) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, m.cfg.PingTimeout)
			defer cancel()
			var err error
			if m.breakers != nil {
				err = m.breakers.Do(pctx, p.Name(), p.Ping)
			} else {
				err = p.Ping(pctx)
			}
			status := "ok"
			if err != nil {
				status = err.Error()
				m.log.Warn("ping failed", logger.String("upstream", p.Name()), logger.Error(err))
			}
			mu.Lock()
			out[p.Name()] = status
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return out
}

// Check runs one ping round, then resets open breakers and reconnects all
// feeds when too few symbols are fresh.
func (m *HealthMonitor) Check(ctx context.Context) HealthReport {
	rep := HealthReport{At: m.now(), Pings: m.Ping(ctx), Freshness: 1}
	if m.fresh != nil {
		rep.Freshness, rep.Symbols = m.fresh.Freshness(rep.At, m.cfg.FreshnessWindow)
	}
	m.metrics.SetFreshness(rep.Freshness)

	if rep.Symbols > 0 && rep.Freshness < m.cfg.MinFreshness {
		if m.breakers != nil {
			rep.ResetBreakers = m.breakers.ResetOpen()
		}
		if m.feeds != nil {
			m.feeds.ReconnectAll()
			rep.Reconnected = true
		}
		m.log.Warn("stale data, resetting breakers and feeds",
			logger.Float64("freshness", rep.Freshness),
			logger.Int("symbols", rep.Symbols),
			logger.Strings("reset", rep.ResetBreakers))
	}

	m.mu.Lock()
	m.last = rep
	m.mu.Unlock()
	return rep
}

// CheckSockets asks the collector to reconnect every enabled feed that is down.
func (m *HealthMonitor) CheckSockets() []string {
	if m.feeds == nil {
		return nil
	}
	var kicked []string
	for _, f := range m.feeds.Feeds() {
		if f.Connected || f.Disabled {
			continue
		}
		if m.feeds.RequestReconnect(f.Name) {
			kicked = append(kicked, f.Name)
		}
	}
	return kicked
}

// Last returns the most recent ping round.
func (m *HealthMonitor) Last() HealthReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}
