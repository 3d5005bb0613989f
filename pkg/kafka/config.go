package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

type ProducerOption func(*producerSetup)

// producerSetup is a writer template plus the few knobs that are not
// writer fields. Tips are published one at a time, so the defaults
// favour latency over batching.
type producerSetup struct {
	brokers []string
	codec   string
	w       *kafka.Writer
}

func newProducerSetup() *producerSetup {
	return &producerSetup{
		codec: "gzip",
		w: &kafka.Writer{
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			WriteTimeout: 10 * time.Second,
			ReadTimeout:  10 * time.Second,
			BatchSize:    1,
			BatchBytes:   1 << 20,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func WithBrokers(brokers []string) ProducerOption {
	return func(p *producerSetup) { p.brokers = brokers }
}

// WithCompression accepts gzip, snappy, lz4 or zstd; anything else is gzip.
func WithCompression(codec string) ProducerOption {
	return func(p *producerSetup) {
		switch codec {
		case "snappy", "lz4", "zstd":
			p.codec = codec
		default:
			p.codec = "gzip"
		}
	}
}

// WithRequiredAcks takes -1 (all), 0 (none) or 1 (leader).
func WithRequiredAcks(acks int) ProducerOption {
	return func(p *producerSetup) { p.w.RequiredAcks = kafka.RequiredAcks(acks) }
}

func WithMaxAttempts(n int) ProducerOption {
	return func(p *producerSetup) {
		if n > 0 {
			p.w.MaxAttempts = n
		}
	}
}

// WithBatching sets flush thresholds. Zero values keep the defaults.
func WithBatching(size, bytes int, linger time.Duration) ProducerOption {
	return func(p *producerSetup) {
		if size > 0 {
			p.w.BatchSize = size
		}
		if bytes > 0 {
			p.w.BatchBytes = int64(bytes)
		}
		if linger > 0 {
			p.w.BatchTimeout = linger
		}
	}
}

func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(p *producerSetup) {
		if write > 0 {
			p.w.WriteTimeout = write
		}
		if read > 0 {
			p.w.ReadTimeout = read
		}
	}
}

// WithKeyHashing keeps one symbol's tips on one partition. Off, messages
// go to the least loaded partition.
func WithKeyHashing(on bool) ProducerOption {
	return func(p *producerSetup) {
		if on {
			p.w.Balancer = &kafka.Hash{}
		} else {
			p.w.Balancer = &kafka.LeastBytes{}
		}
	}
}

var codecs = map[string]kafka.Compression{
	"gzip":   kafka.Gzip,
	"snappy": kafka.Snappy,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}
