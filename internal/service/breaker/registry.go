package breaker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
	"SignalForge/pkg/logger"
)

// Upstream names.
const (
	News         = "news"
	Insider      = "insider"
	Fundamentals = "fundamentals"
	OHLCV        = "ohlcv"
	CryptoOHLCV  = "crypto_ohlcv"
)

// MaxFailures is the consecutive failure count that opens a breaker.
const MaxFailures = 5

// DefaultWindows is how long each upstream stays open once tripped.
var DefaultWindows = map[string]time.Duration{
	News:         5 * time.Minute,
	Insider:      10 * time.Minute,
	Fundamentals: 10 * time.Minute,
	OHLCV:        3 * time.Minute,
	CryptoOHLCV:  3 * time.Minute,
}

const defaultWindow = 5 * time.Minute

type entry struct {
	cb *gobreaker.CircuitBreaker

	mu          sync.Mutex
	failures    uint32
	lastFailure time.Time
	openedAt    time.Time
}

func (e *entry) record(err error, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		e.failures = 0
		return
	}
	e.failures++
	e.lastFailure = at
}

// Registry owns one gobreaker per upstream.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*entry
	windows  map[string]time.Duration
	metrics  repository.Metrics
	log      *logger.Logger
	now      func() time.Time
}

func NewRegistry(windows map[string]time.Duration, metrics repository.Metrics, log *logger.Logger) *Registry {
	if windows == nil {
		windows = DefaultWindows
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		breakers: make(map[string]*entry),
		windows:  windows,
		metrics:  metrics,
		log:      log.Component("breaker"),
		now:      time.Now,
	}
}

func (r *Registry) newEntry(name string) *entry {
	window, ok := r.windows[name]
	if !ok {
		window = defaultWindow
	}
	e := &entry{}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     window,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				e.mu.Lock()
				e.openedAt = r.now()
				e.mu.Unlock()
				r.log.Warn("circuit breaker opened",
					logger.String("upstream", name),
					logger.Duration("window", window))
			} else if to == gobreaker.StateClosed {
				r.log.Info("circuit breaker closed", logger.String("upstream", name))
			}
			if r.metrics != nil {
				r.metrics.SetBreakerState(name, int(to))
			}
		},
	}
	e.cb = gobreaker.NewCircuitBreaker(st)
	return e
}

func (r *Registry) get(name string) *entry {
	r.mu.RLock()
	e, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return e
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.breakers[name]; ok {
		return e
	}
	e = r.newEntry(name)
	r.breakers[name] = e
	return e
}

// Do runs fn through the named breaker. When the breaker is open the call is
// skipped and ErrUpstreamUnavailable is returned.
func (r *Registry) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	e := r.get(name)
	_, err := e.cb.Execute(func() (interface{}, error) {
		ferr := fn(ctx)
		e.record(ferr, r.now())
		return nil, ferr
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", name, repository.ErrUpstreamUnavailable)
	}
	return err
}

// Call runs fn through the named breaker. On an open breaker or a failed call
// it returns fallback() (zero value when fallback is nil) together with the error.
func Call[T any](ctx context.Context, r *Registry, name string, fn func(ctx context.Context) (T, error), fallback func() T) (T, error) {
	var out T
	err := r.Do(ctx, name, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		if fallback != nil {
			return fallback(), err
		}
		return zero, err
	}
	return out, nil
}

// IsOpen reports whether the named breaker short-circuits calls.
func (r *Registry) IsOpen(name string) bool {
	return r.get(name).cb.State() == gobreaker.StateOpen
}

// Reset replaces the named breaker with a fresh closed one.
func (r *Registry) Reset(name string) {
	r.mu.Lock()
	r.breakers[name] = r.newEntry(name)
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.SetBreakerState(name, int(gobreaker.StateClosed))
	}
}

// ResetOpen resets every open breaker and returns their names.
func (r *Registry) ResetOpen() []string {
	var open []string
	for _, st := range r.Status() {
		if st.Open() {
			open = append(open, st.Name)
		}
	}
	sort.Strings(open)
	for _, name := range open {
		r.Reset(name)
	}
	return open
}

// Status returns every known breaker sorted by name.
func (r *Registry) Status() []models.BreakerStatus {
	r.mu.RLock()
	entries := make(map[string]*entry, len(r.breakers))
	for name, e := range r.breakers {
		entries[name] = e
	}
	r.mu.RUnlock()

	out := make([]models.BreakerStatus, 0, len(entries))
	for name, e := range entries {
		state := e.cb.State()
		e.mu.Lock()
		st := models.BreakerStatus{
			Name:        name,
			State:       state.String(),
			Failures:    e.failures,
			LastFailure: e.lastFailure,
		}
		if state == gobreaker.StateOpen {
			st.OpenedAt = e.openedAt
		}
		e.mu.Unlock()
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
