package middleware

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"SignalForge/internal/domain/models"
	domrepo "SignalForge/internal/domain/repository"
	"SignalForge/pkg/logger"
)

// ErrShardFull is returned when an event is dropped because its shard queue is full.
var ErrShardFull = errors.New("shard queue full")

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, ev models.PriceEvent) error
}

// RealtimePipeline sits between the feeds and the signal processor. Events are
// sharded by symbol onto bounded queues, each drained by one worker, so updates
// for one symbol are processed in arrival order and never concurrently.
type RealtimePipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	log     *logger.Logger

	shardCount int
	bufSize    int
	shards     []chan models.PriceEvent

	mu       sync.RWMutex
	closing  atomic.Bool
	discard  atomic.Bool
	started  bool
	wg       sync.WaitGroup
	accepted atomic.Int64
	dropped  atomic.Int64
}

type PipelineOption func(*RealtimePipeline)

// WithShards sets the number of shard workers.
func WithShards(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.shardCount = n
		}
	}
}

// WithBufferSize sets the per-shard queue capacity.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *logger.Logger) PipelineOption {
	return func(p *RealtimePipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// NewRealtimePipeline creates a new pipeline. Call Start before Submit.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:       proc,
		metrics:    metrics,
		log:        logger.Nop(),
		shardCount: 16,
		bufSize:    512,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.Component("dispatcher")
	p.shards = make([]chan models.PriceEvent, p.shardCount)
	for i := range p.shards {
		p.shards[i] = make(chan models.PriceEvent, p.bufSize)
	}
	return p
}

// Start launches one worker per shard. ctx is handed to the processor and
// should outlive Drain.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for i, ch := range p.shards {
		p.wg.Add(1)
		go p.worker(ctx, i, ch)
	}
}

func (p *RealtimePipeline) worker(ctx context.Context, shard int, ch <-chan models.PriceEvent) {
	defer p.wg.Done()
	for ev := range ch {
		if p.discard.Load() {
			p.dropped.Add(1)
			p.metrics.RecordDrop("shutdown")
			continue
		}
		p.process(ctx, shard, ev)
	}
}

func (p *RealtimePipeline) process(ctx context.Context, shard int, ev models.PriceEvent) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.metrics.RecordError("pipeline_panic")
			p.log.Error("processor panic",
				logger.Int("shard", shard),
				logger.String("symbol", ev.Instrument.String()),
				logger.Any("panic", r))
		}
	}()
	if err := p.proc.Process(ctx, ev); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.log.Debug("process event",
			logger.String("symbol", ev.Instrument.String()),
			logger.Error(err))
		return
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
}

// Submit validates ev and enqueues it on its shard without blocking.
func (p *RealtimePipeline) Submit(ev models.PriceEvent) error {
	if err := validateEvent(ev); err != nil {
		p.metrics.RecordDrop("pipeline_invalid")
		return err
	}
	if p.closing.Load() {
		return domrepo.ErrShuttingDown
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	// re-check under the lock: Drain closes the channels while holding it exclusively
	if p.closing.Load() {
		return domrepo.ErrShuttingDown
	}
	select {
	case p.shards[ShardFor(ev.Instrument, len(p.shards))] <- ev:
		p.accepted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		p.metrics.RecordDrop("shard_full")
		return ErrShardFull
	}
}

// Close stops accepting new events and discards what is still queued.
// An event already inside the processor runs to completion.
func (p *RealtimePipeline) Close() {
	p.closing.Store(true)
	p.discard.Store(true)
}

// Drain stops accepting events, closes the shard queues, and waits for the
// workers to empty them or for ctx to expire. After Close the queued events
// are discarded rather than processed.
func (p *RealtimePipeline) Drain(ctx context.Context) error {
	p.closing.Store(true)
	p.mu.Lock()
	if p.shards != nil {
		for _, ch := range p.shards {
			close(ch)
		}
		p.shards = nil
	}
	started := p.started
	p.mu.Unlock()
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain dispatcher: %w", ctx.Err())
	}
}

// Depth returns the number of queued events across all shards.
func (p *RealtimePipeline) Depth() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, ch := range p.shards {
		n += len(ch)
	}
	return n
}

// Stats returns cumulative accepted and dropped counts.
func (p *RealtimePipeline) Stats() (accepted, dropped int64) {
	return p.accepted.Load(), p.dropped.Load()
}

// ShardFor maps a symbol to a shard index with FNV-1a.
func ShardFor(inst models.Instrument, shards int) int {
	if shards <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(inst))
	return int(h.Sum32() % uint32(shards))
}

func validateEvent(ev models.PriceEvent) error {
	if ev.Instrument == "" {
		return fmt.Errorf("symbol empty: %w", domrepo.ErrMalformedMessage)
	}
	if ev.Price <= 0 {
		return fmt.Errorf("price %v: %w", ev.Price, domrepo.ErrMalformedMessage)
	}
	if ev.Volume < 0 {
		return fmt.Errorf("volume %v: %w", ev.Volume, domrepo.ErrMalformedMessage)
	}
	return nil
}
