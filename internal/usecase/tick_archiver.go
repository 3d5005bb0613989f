package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	"SignalForge/pkg/logger"
)

const archiveWriteTimeout = 5 * time.Second

// TickArchiver batches price events into the archive by size or interval.
type TickArchiver struct {
	archive  drepo.Archive
	batchSz  int
	interval time.Duration
	metrics  drepo.Metrics
	log      *logger.Logger

	in     chan models.PriceEvent
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewTickArchiver(archive drepo.Archive, batchSz int, interval time.Duration, metrics drepo.Metrics, log *logger.Logger) *TickArchiver {
	if batchSz <= 0 {
		batchSz = 500
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TickArchiver{
		archive:  archive,
		batchSz:  batchSz,
		interval: interval,
		metrics:  metrics,
		log:      log.Component("tick_archiver"),
		in:       make(chan models.PriceEvent, batchSz*4),
	}
}

func (a *TickArchiver) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.loop(ctx)
}

// Add queues ev without blocking; a full queue drops it.
func (a *TickArchiver) Add(ev models.PriceEvent) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.in <- ev:
	default:
		a.metrics.RecordDrop("archive_backpressure")
	}
}

func (a *TickArchiver) loop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	buf := make([]models.PriceEvent, 0, a.batchSz)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		start := time.Now()
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveWriteTimeout)
		err := a.archive.StoreEvents(fctx, buf)
		cancel()
		if err != nil {
			a.metrics.RecordError("archive_events")
			a.log.Warn("archive batch failed", logger.Int("size", len(buf)), logger.Error(err))
		} else {
			a.metrics.RecordLatency("archive_events", time.Since(start).Seconds())
		}
		buf = buf[:0]
	}

	for {
		select {
		case ev, ok := <-a.in:
			if !ok {
				flush()
				return
			}
			buf = append(buf, ev)
			if len(buf) >= a.batchSz {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close stops intake and waits for the final flush.
func (a *TickArchiver) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.in)
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tick archiver close: %w", ctx.Err())
	}
}
