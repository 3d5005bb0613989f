package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Producer publishes JSON payloads through a single kafka.Writer.
type Producer struct {
	writer *kafka.Writer
	codec  string
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	setup := newProducerSetup()
	for _, opt := range opts {
		opt(setup)
	}
	if len(setup.brokers) == 0 {
		return nil, errors.New("kafka producer: no brokers configured")
	}

	w := setup.w
	w.Addr = kafka.TCP(setup.brokers...)
	w.Compression = codecs[setup.codec]

	producerMetricsOnce.Do(registerProducerMetrics)
	return &Producer{writer: w, codec: setup.codec}, nil
}

// Publish writes value to topic. Byte slices and strings are sent as-is,
// anything else is JSON encoded.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	payload, err := encode(value)
	if err != nil {
		producerErrors.WithLabelValues(topic, "encode").Inc()
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: payload, Time: start})
	producerLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	if err != nil {
		producerErrors.WithLabelValues(topic, "write").Inc()
		return fmt.Errorf("write %s: %w", topic, err)
	}
	producerMessages.WithLabelValues(topic, p.codec).Inc()
	producerBytes.WithLabelValues(topic).Add(float64(len(payload)))
	return nil
}

// PublishMessage publishes without a key; the log collector uses it.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func encode(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	}
	return json.Marshal(v)
}

var (
	producerMetricsOnce sync.Once
	producerMessages    *prometheus.CounterVec
	producerErrors      *prometheus.CounterVec
	producerBytes       *prometheus.CounterVec
	producerLatency     *prometheus.HistogramVec
)

func registerProducerMetrics() {
	producerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalforge_kafka_producer_messages_total",
		Help: "Messages written to Kafka",
	}, []string{"topic", "compression"})
	producerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalforge_kafka_producer_errors_total",
		Help: "Failed publishes by stage",
	}, []string{"topic", "stage"})
	producerBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalforge_kafka_producer_bytes_total",
		Help: "Payload bytes written",
	}, []string{"topic"})
	producerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signalforge_kafka_producer_write_seconds",
		Help:    "WriteMessages latency",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"topic"})
}
