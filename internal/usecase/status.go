package usecase

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"SignalForge/internal/domain/models"
	domrepo "SignalForge/internal/domain/repository"
	"SignalForge/internal/service/breaker"
)

// DispatcherStats is the read side of the dispatcher.
type DispatcherStats interface {
	Depth() int
	Stats() (accepted, dropped int64)
}

// FeedLister reports feed liveness.
type FeedLister interface {
	Feeds() []FeedStatus
}

// StatusSources groups what the status snapshot reads. Nil members are skipped.
type StatusSources struct {
	Processor  *SignalProcessor
	Dispatcher DispatcherStats
	Feeds      FeedLister
	Breakers   *breaker.Registry
	Health     *HealthMonitor
	Cache      FreshnessSource
	Store      domrepo.TipStore
	Archive    domrepo.Archive
	Emitter    *Emitter
}

type MemoryStats struct {
	AllocMB      float64 `json:"allocMb"`
	SysMB        float64 `json:"sysMb"`
	HeapObjects  uint64  `json:"heapObjects"`
	NumGC        uint32  `json:"numGc"`
	NumGoroutine int     `json:"goroutines"`
}

type DispatcherView struct {
	Depth    int   `json:"depth"`
	Accepted int64 `json:"accepted"`
	Dropped  int64 `json:"dropped"`
}

// EngineStatus is the /status and /healthz payload.
type EngineStatus struct {
	Timestamp  time.Time              `json:"timestamp"`
	Uptime     string                 `json:"uptime"`
	Processor  *ProcessorStats        `json:"processor,omitempty"`
	Emitted    int64                  `json:"emitted"`
	Failed     int64                  `json:"failed"`
	Dispatcher *DispatcherView        `json:"dispatcher,omitempty"`
	Feeds      []FeedStatus           `json:"feeds,omitempty"`
	Breakers   []models.BreakerStatus `json:"breakers,omitempty"`
	Freshness  float64                `json:"freshness"`
	Symbols    int                    `json:"symbols"`
	LastPing   *HealthReport          `json:"lastPing,omitempty"`
	AppStats   *models.AppStats       `json:"appStats,omitempty"`
	Memory     *MemoryStats           `json:"memory,omitempty"`
	Errors     map[string]string      `json:"errors,omitempty"`
}

// StatusUseCase assembles the engine status; store and archive checks run in parallel.
type StatusUseCase struct {
	src       StatusSources
	startedAt time.Time
	timeout   time.Duration
	now       func() time.Time
}

func NewStatusUseCase(src StatusSources) *StatusUseCase {
	return &StatusUseCase{src: src, startedAt: time.Now(), timeout: 3 * time.Second, now: time.Now}
}

func (uc *StatusUseCase) StartedAt() time.Time { return uc.startedAt }

// Snapshot collects the status. withMemory adds runtime memory figures.
func (uc *StatusUseCase) Snapshot(ctx context.Context, withMemory bool) *EngineStatus {
	now := uc.now()
	res := &EngineStatus{
		Timestamp: now,
		Uptime:    now.Sub(uc.startedAt).Truncate(time.Second).String(),
		Freshness: 1,
		Errors:    map[string]string{},
	}

	if p := uc.src.Processor; p != nil {
		st := p.Stats()
		res.Processor = &st
	}
	if e := uc.src.Emitter; e != nil {
		res.Emitted, res.Failed = e.Stats()
	}
	if d := uc.src.Dispatcher; d != nil {
		acc, drop := d.Stats()
		res.Dispatcher = &DispatcherView{Depth: d.Depth(), Accepted: acc, Dropped: drop}
	}
	if f := uc.src.Feeds; f != nil {
		res.Feeds = f.Feeds()
	}
	if b := uc.src.Breakers; b != nil {
		res.Breakers = b.Status()
	}
	if c := uc.src.Cache; c != nil {
		res.Freshness, res.Symbols = c.Freshness(now, 5*time.Minute)
	}
	if h := uc.src.Health; h != nil {
		if last := h.Last(); !last.At.IsZero() {
			res.LastPing = &last
		}
	}
	if withMemory {
		res.Memory = memoryStats()
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 3)
	var wg sync.WaitGroup

	if uc.src.Store != nil {
		wg.Add(2)
		go func() {
			defer wg.Done()
			v, err := uc.src.Store.Stats(ctx)
			ch <- item{"stats", v, err}
		}()
		go func() {
			defer wg.Done()
			ch <- item{"store", nil, uc.src.Store.Health(ctx)}
		}()
	}
	if uc.src.Archive != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch <- item{"archive", nil, uc.src.Archive.Health(ctx)}
		}()
	}
	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			// no tip emitted yet is not an error
			if it.name == "stats" && errors.Is(it.err, domrepo.ErrNotFound) {
				continue
			}
			res.Errors[it.name] = it.err.Error()
			continue
		}
		if it.name == "stats" {
			v := it.val.(models.AppStats)
			res.AppStats = &v
		}
	}

	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res
}

// Healthy reports whether every dependency check passed.
func (s *EngineStatus) Healthy() bool { return len(s.Errors) == 0 }

func memoryStats() *MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &MemoryStats{
		AllocMB:      float64(m.Alloc) / 1024 / 1024,
		SysMB:        float64(m.Sys) / 1024 / 1024,
		HeapObjects:  m.HeapObjects,
		NumGC:        m.NumGC,
		NumGoroutine: runtime.NumGoroutine(),
	}
}
