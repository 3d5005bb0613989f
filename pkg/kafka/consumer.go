package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"SignalForge/pkg/logger"
)

// MessageHandler consumes one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type ConsumerOption func(*consumerSettings)

type consumerSettings struct {
	brokers    []string
	group      string
	offset     int64
	lanes      int
	laneBuffer int
	retries    int
	backoffMin time.Duration
	backoffMax time.Duration
	minBytes   int
	maxBytes   int
	log        *logger.Logger
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(s *consumerSettings) { s.brokers = brokers }
}

func WithConsumerGroupID(group string) ConsumerOption {
	return func(s *consumerSettings) {
		if group != "" {
			s.group = group
		}
	}
}

// WithConsumerStartOffset picks "earliest" or "latest" for a new group.
func WithConsumerStartOffset(reset string) ConsumerOption {
	return func(s *consumerSettings) {
		s.offset = kafka.FirstOffset
		if reset == "latest" {
			s.offset = kafka.LastOffset
		}
	}
}

// WithConsumerWorkers sets the number of lanes. Partitions hash onto lanes,
// so one partition is always handled in order by a single goroutine.
func WithConsumerWorkers(n int) ConsumerOption {
	return func(s *consumerSettings) {
		if n > 0 {
			s.lanes = n
		}
	}
}

// WithConsumerBuffer sets the per-lane queue size.
func WithConsumerBuffer(size int) ConsumerOption {
	return func(s *consumerSettings) {
		if size > 0 {
			s.laneBuffer = size
		}
	}
}

func WithConsumerRetry(retries int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(s *consumerSettings) {
		s.retries = retries
		s.backoffMin = backoffMin
		s.backoffMax = backoffMax
	}
}

func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(s *consumerSettings) {
		s.minBytes = minBytes
		s.maxBytes = maxBytes
	}
}

func WithConsumerLogger(l *logger.Logger) ConsumerOption {
	return func(s *consumerSettings) { s.log = l }
}

// Consumer reads every registered topic through its own group reader and
// fans messages out to lanes keyed by partition.
type Consumer struct {
	s        consumerSettings
	log      *logger.Logger
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	lanes    []chan kafka.Message

	quit     chan struct{}
	fetchers sync.WaitGroup
	workers  sync.WaitGroup
	stopped  sync.Once
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	s := consumerSettings{
		group:      "signalforge",
		offset:     kafka.FirstOffset,
		lanes:      1,
		laneBuffer: 16,
		retries:    3,
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
		minBytes:   1,
		maxBytes:   10 << 20,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if len(s.brokers) == 0 {
		return nil, errors.New("kafka consumer: no brokers configured")
	}
	if s.log == nil {
		s.log = logger.Nop()
	}

	consumerMetricsOnce.Do(registerConsumerMetrics)
	return &Consumer{
		s:        s,
		log:      s.log.Component("kafka_consumer"),
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		quit:     make(chan struct{}),
	}, nil
}

// RegisterHandler must be called before Start. A second handler for the
// same topic is ignored.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, dup := c.handlers[h.Topic()]; dup {
		c.log.Warn("duplicate topic handler ignored", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: nothing to consume")
	}

	c.lanes = make([]chan kafka.Message, c.s.lanes)
	for i := range c.lanes {
		c.lanes[i] = make(chan kafka.Message, c.s.laneBuffer)
		c.workers.Add(1)
		go c.drainLane(c.lanes[i])
	}

	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.s.brokers,
			GroupID:     c.s.group,
			Topic:       topic,
			StartOffset: c.s.offset,
			MinBytes:    c.s.minBytes,
			MaxBytes:    c.s.maxBytes,
		})
		c.readers[topic] = r
		c.fetchers.Add(1)
		go c.fetch(topic, r)
	}

	c.log.Info("consumer started",
		logger.String("group", c.s.group),
		logger.Int("topics", len(c.readers)),
		logger.Int("lanes", len(c.lanes)))
	return nil
}

// Stop halts fetching, lets the lanes finish what they hold, then closes
// the readers. ctx bounds the wait.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopped.Do(func() {
		close(c.quit)
		if err = wait(ctx, &c.fetchers); err != nil {
			return
		}
		for _, lane := range c.lanes {
			close(lane)
		}
		err = wait(ctx, &c.workers)
		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("close reader", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		if err == nil {
			c.log.Info("consumer stopped")
		}
	})
	return err
}

func wait(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("kafka consumer stop: %w", ctx.Err())
	}
}

func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	defer c.fetchers.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-c.quit
		cancel()
	}()

	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("fetch", logger.String("topic", topic), logger.Error(err))
			select {
			case <-time.After(c.s.backoffMin):
			case <-c.quit:
				return
			}
			continue
		}

		lane := c.lanes[msg.Partition%len(c.lanes)]
		select {
		case lane <- msg:
			laneDepth.WithLabelValues(topic).Set(float64(len(lane)))
		case <-c.quit:
			return
		}
	}
}

func (c *Consumer) drainLane(lane <-chan kafka.Message) {
	defer c.workers.Done()
	for msg := range lane {
		if h, ok := c.handlers[msg.Topic]; ok {
			c.process(h, msg)
		}
	}
}

func (c *Consumer) process(h MessageHandler, msg kafka.Message) {
	start := time.Now()
	err := c.handleWithRetry(h, msg)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		c.log.Error("message dropped after retries",
			logger.String("topic", msg.Topic),
			logger.Int("partition", msg.Partition),
			logger.Int64("offset", msg.Offset),
			logger.Error(err))
	}
	handled.WithLabelValues(msg.Topic, outcome).Inc()
	handleSeconds.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())

	// failed messages are committed too, otherwise one bad payload stalls the partition
	r := c.readers[msg.Topic]
	if r == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.CommitMessages(ctx, msg); err != nil {
		c.log.Warn("commit", logger.String("topic", msg.Topic), logger.Error(err))
	}
}

func (c *Consumer) handleWithRetry(h MessageHandler, msg kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	for attempt := 0; ; attempt++ {
		if err = h.Handle(context.Background(), msg.Value); err == nil || attempt >= c.s.retries {
			return err
		}
		select {
		case <-time.After(jitteredBackoff(c.s.backoffMin, c.s.backoffMax, attempt)):
		case <-c.quit:
			return err
		}
	}
}

// jitteredBackoff doubles from lo per attempt, capped at hi, minus up to half.
func jitteredBackoff(lo, hi time.Duration, attempt int) time.Duration {
	if lo <= 0 {
		lo = 50 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	d := hi
	if attempt < 32 {
		if v := lo << uint(attempt); v > 0 && v < hi {
			d = v
		}
	}
	if half := int64(d / 2); half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}

var (
	consumerMetricsOnce sync.Once
	laneDepth           *prometheus.GaugeVec
	handled             *prometheus.CounterVec
	handleSeconds       *prometheus.HistogramVec
)

func registerConsumerMetrics() {
	laneDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "signalforge_kafka_consumer_lane_depth",
		Help: "Messages queued on a consumer lane after the last fetch",
	}, []string{"topic"})
	handled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalforge_kafka_consumer_messages_total",
		Help: "Consumed messages by outcome",
	}, []string{"topic", "outcome"})
	handleSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signalforge_kafka_consumer_handle_seconds",
		Help:    "Handler time per message, retries included",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
}
