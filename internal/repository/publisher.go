package repository

import (
	"context"
	"fmt"

	"QuantBoard/internal/domain/models"
	"QuantBoard/pkg/kafka"
)

// KafkaPublisher relays engine batches over Kafka, keyed by symbol so one
// symbol's records stay ordered within a partition.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaPublisher wraps a producer for the given topic.
func NewKafkaPublisher(producer *kafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// PublishBatch fans the batch out as one message per context score, carrying
// the symbol's slice of the batch. Consumers subscribe per symbol.
func (p *KafkaPublisher) PublishBatch(ctx context.Context, batch *models.EngineBatch) error {
	if batch == nil || len(batch.Contexts) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(batch.Contexts))
	for _, cs := range batch.Contexts {
		msgs = append(msgs, kafka.Message{
			Key:   []byte(cs.Symbol),
			Value: symbolSlice(batch, cs.Symbol),
		})
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	return nil
}

// symbolSlice extracts one symbol's records from the full batch.
func symbolSlice(batch *models.EngineBatch, symbol string) *models.EngineBatch {
	out := &models.EngineBatch{Timestamp: batch.Timestamp}
	for _, r := range batch.Signals {
		if r.Symbol == symbol {
			out.Signals = append(out.Signals, r)
		}
	}
	for _, r := range batch.Diagnostics {
		if r.Symbol == symbol {
			out.Diagnostics = append(out.Diagnostics, r)
		}
	}
	for _, r := range batch.Confluence {
		if r.Symbol == symbol {
			out.Confluence = append(out.Confluence, r)
		}
	}
	for _, r := range batch.Regimes {
		if r.Symbol == symbol {
			out.Regimes = append(out.Regimes, r)
		}
	}
	for _, r := range batch.Contexts {
		if r.Symbol == symbol {
			out.Contexts = append(out.Contexts, r)
		}
	}
	for _, r := range batch.Transitions {
		if r.Symbol == symbol {
			out.Transitions = append(out.Transitions, r)
		}
	}
	return out
}

// Close flushes and closes the underlying producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher is used when Kafka is disabled in config.
type NopPublisher struct{}

func (NopPublisher) PublishBatch(ctx context.Context, batch *models.EngineBatch) error { return nil }
func (NopPublisher) Close() error                                                      { return nil }
