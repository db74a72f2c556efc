package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/companion-matching/internal/models"
	"github.com/example/companion-matching/internal/observability"
)

const (
	DefaultTopic   = "travel-intents"
	publishTimeout = 2 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes intent lifecycle events keyed by intent ID.
type KafkaProducer struct {
	writer messageWriter
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: topic, Balancer: &kafka.Hash{}}
	return &KafkaProducer{writer: w}
}

func (k *KafkaProducer) PublishIntent(ctx context.Context, ev models.IntentEvent) error {
	b, err := EncodeIntentEvent(ev)
	if err != nil {
		observability.IntentEventsPublished.WithLabelValues("error").Inc()
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Intent.ID), Value: b}); err != nil {
		observability.IntentEventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("publish %s %s: %w", ev.Type, ev.Intent.ID, err)
	}
	observability.IntentEventsPublished.WithLabelValues("ok").Inc()
	return nil
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

func EncodeIntentEvent(ev models.IntentEvent) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode intent event: %w", err)
	}
	return b, nil
}

// DecodeIntentEvent parses a message value and rejects events without an
// intent ID.
func DecodeIntentEvent(b []byte) (models.IntentEvent, error) {
	var ev models.IntentEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return models.IntentEvent{}, fmt.Errorf("decode intent event: %w", err)
	}
	if ev.Intent.ID == "" {
		return models.IntentEvent{}, fmt.Errorf("decode intent event: missing intent id")
	}
	return ev, nil
}
