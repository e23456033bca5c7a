package repository

import (
	"context"
	"fmt"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"
)

// KeyedPublisher is the producer capability the Kafka sink needs; *kafka.Producer satisfies it.
type KeyedPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaEvents publishes trigger events keyed by symbol, so one symbol's events keep their order.
type KafkaEvents struct {
	producer KeyedPublisher
	topic    string
}

func NewKafkaEvents(producer KeyedPublisher, topic string) *KafkaEvents {
	return &KafkaEvents{producer: producer, topic: topic}
}

func (k *KafkaEvents) Name() string { return "kafka" }

func (k *KafkaEvents) PublishTrigger(ctx context.Context, ev *models.TriggerEvent) error {
	if err := k.producer.Publish(ctx, k.topic, []byte(ev.Symbol), ev); err != nil {
		return fmt.Errorf("kafka publish trigger %d: %w", ev.ID, err)
	}
	return nil
}

// Close is a no-op: the producer is shared with the log collector and closed by its owner.
func (k *KafkaEvents) Close() error { return nil }

var _ domrepo.EventSink = (*KafkaEvents)(nil)
