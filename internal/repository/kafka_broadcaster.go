package repository

import (
	"context"
	"fmt"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
)

// TopicPublisher is the subset of the Kafka producer the broadcaster needs.
type TopicPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaBroadcaster publishes notifications as JSON keyed by symbol.
type KafkaBroadcaster struct {
	producer TopicPublisher
	topic    string
}

func NewKafkaBroadcaster(producer TopicPublisher, topic string) *KafkaBroadcaster {
	return &KafkaBroadcaster{producer: producer, topic: topic}
}

func (b *KafkaBroadcaster) Name() string { return "kafka" }

func (b *KafkaBroadcaster) Broadcast(ctx context.Context, key string, n models.Notification) error {
	topic := n.Topic
	if topic == "" {
		topic = b.topic
	}
	if err := b.producer.Publish(ctx, topic, []byte(key), n); err != nil {
		return fmt.Errorf("kafka publish %s: %w", topic, err)
	}
	return nil
}

func (b *KafkaBroadcaster) Close() error {
	if b.producer != nil {
		return b.producer.Close()
	}
	return nil
}

var _ drepo.Broadcaster = (*KafkaBroadcaster)(nil)
