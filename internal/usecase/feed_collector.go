package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	"SignalForge/pkg/logger"
)

// EventSink accepts normalized events; the dispatcher implements it.
type EventSink interface {
	Submit(ev models.PriceEvent) error
}

// FeedStatus is the liveness of one feed.
type FeedStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Disabled  bool   `json:"disabled,omitempty"`
}

type feedRunner struct {
	stream   drepo.MarketStream
	kick     chan struct{}
	disabled atomic.Bool
}

// FeedCollector owns the feed connections: it reads every stream, forwards
// events to the sink and reconnects after failures.
type FeedCollector struct {
	runners  []*feedRunner
	sink     EventSink
	archiver *TickArchiver
	metrics  drepo.Metrics
	log      *logger.Logger
	delay    time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFeedCollector wires the streams. archiver may be nil.
func NewFeedCollector(streams []drepo.MarketStream, sink EventSink, archiver *TickArchiver, metrics drepo.Metrics, reconnectDelay time.Duration, log *logger.Logger) *FeedCollector {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	runners := make([]*feedRunner, 0, len(streams))
	for _, s := range streams {
		runners = append(runners, &feedRunner{stream: s, kick: make(chan struct{}, 1)})
	}
	return &FeedCollector{
		runners:  runners,
		sink:     sink,
		archiver: archiver,
		metrics:  metrics,
		log:      log.Component("collector"),
		delay:    reconnectDelay,
	}
}

// Start launches one goroutine per feed. It does not wait for connections.
// The runners stop when ctx is done or Shutdown is called, whichever is first.
func (c *FeedCollector) Start(ctx context.Context) {
	if c.archiver != nil {
		c.archiver.Start(ctx)
	}
	c.mu.Lock()
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()
	for _, r := range c.runners {
		c.wg.Add(1)
		go c.run(ctx, r)
	}
}

func (c *FeedCollector) run(ctx context.Context, r *feedRunner) {
	defer c.wg.Done()
	name := r.stream.Name()
	log := c.log.With(logger.String("feed", name))

	for ctx.Err() == nil {
		if err := c.open(ctx, r.stream); err != nil {
			if errors.Is(err, drepo.ErrConfigMissing) {
				r.disabled.Store(true)
				log.Warn("feed disabled", logger.Error(err))
				return
			}
			if ctx.Err() != nil {
				return
			}
			c.metrics.RecordError("feed_connect")
			log.Warn("connect failed", logger.Error(err), logger.Duration("retry_in", c.delay))
			if !c.wait(ctx, r) {
				return
			}
			continue
		}

		evs, errs := r.stream.Read(ctx)
		err := c.consume(ctx, evs, errs)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.metrics.RecordError("stream")
			log.Warn("stream failed, reconnecting", logger.Error(err), logger.Duration("retry_in", c.delay))
		}
		_ = r.stream.Close()
		if !c.wait(ctx, r) {
			return
		}
	}
}

func (c *FeedCollector) open(ctx context.Context, s drepo.MarketStream) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	if err := s.Subscribe(ctx); err != nil {
		_ = s.Close()
		return err
	}
	return nil
}

// wait sleeps the reconnect delay unless a reconnect is requested first.
func (c *FeedCollector) wait(ctx context.Context, r *feedRunner) bool {
	t := time.NewTimer(c.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
	case <-r.kick:
	}
	return true
}

func (c *FeedCollector) consume(ctx context.Context, evs <-chan models.PriceEvent, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return err
			}
		case ev, ok := <-evs:
			if !ok {
				return nil
			}
			c.forward(ev)
		}
	}
}

func (c *FeedCollector) forward(ev models.PriceEvent) {
	if c.archiver != nil {
		c.archiver.Add(ev)
	}
	if err := c.sink.Submit(ev); err != nil && !errors.Is(err, drepo.ErrShuttingDown) {
		c.log.Debug("event not accepted",
			logger.String("symbol", ev.Instrument.String()),
			logger.Error(err))
	}
}

// RequestReconnect drops the named feed's socket; its runner reconnects
// without waiting out the remaining delay.
func (c *FeedCollector) RequestReconnect(name string) bool {
	for _, r := range c.runners {
		if r.stream.Name() != name || r.disabled.Load() {
			continue
		}
		c.reconnect(r)
		return true
	}
	return false
}

// ReconnectAll drops every enabled feed.
func (c *FeedCollector) ReconnectAll() {
	for _, r := range c.runners {
		if !r.disabled.Load() {
			c.reconnect(r)
		}
	}
}

func (c *FeedCollector) reconnect(r *feedRunner) {
	c.log.Info("reconnect requested", logger.String("feed", r.stream.Name()))
	select {
	case r.kick <- struct{}{}:
	default:
	}
	_ = r.stream.Close()
}

// Feeds reports each feed's liveness.
func (c *FeedCollector) Feeds() []FeedStatus {
	out := make([]FeedStatus, 0, len(c.runners))
	for _, r := range c.runners {
		out = append(out, FeedStatus{
			Name:      r.stream.Name(),
			Connected: r.stream.IsConnected(),
			Disabled:  r.disabled.Load(),
		})
	}
	return out
}

// IsConnected reports whether any feed is up.
func (c *FeedCollector) IsConnected() bool {
	for _, r := range c.runners {
		if r.stream.IsConnected() {
			return true
		}
	}
	return false
}

// Shutdown stops the runners from reconnecting, closes every socket with a
// normal closure and waits for the runners. ctx bounds the wait.
func (c *FeedCollector) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	var errs []error
	for _, r := range c.runners {
		if err := r.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", r.stream.Name(), err))
		}
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("feed runners: %w", ctx.Err()))
	}
	if c.archiver != nil {
		if err := c.archiver.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
