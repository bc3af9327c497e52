package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/orchardops/orchard/internal/config"
	"github.com/orchardops/orchard/internal/errdefs"
)

const kafkaTopic = "orchard-events"

// KafkaPublisher publishes events to a Kafka topic, keyed by node so per-node
// ordering survives partitioning
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a Kafka publisher for the configured brokers
func NewKafkaPublisher(cfg config.EventsConfig) (*KafkaPublisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errdefs.Validation("kafka events require at least one broker")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        kafkaTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 5 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaPublisher{writer: writer}, nil
}

// Publish writes the event as a JSON message
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errdefs.Internal("failed to encode event").WithCause(err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Node),
		Value: data,
	})
	if err != nil {
		return errdefs.IO("failed to publish event to kafka").WithCause(err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
