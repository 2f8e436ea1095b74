package repository

import (
	"context"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	pkgkafka "TradePulse/pkg/kafka"
)

// KafkaEvents implements EventPublisher on Kafka. Fill events are keyed by
// symbol so per-symbol ordering survives partitioning.
type KafkaEvents struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaEvents creates a Kafka fill-event publisher.
func NewKafkaEvents(producer *pkgkafka.Producer, topic string) repository.EventPublisher {
	return &KafkaEvents{producer: producer, topic: topic}
}

func (p *KafkaEvents) PublishFill(ctx context.Context, t models.ExecutedTrade) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.Symbol), map[string]interface{}{
		"symbol":   t.Symbol,
		"side":     string(t.Side),
		"kind":     string(t.Kind),
		"mode":     t.Mode,
		"price":    t.Price,
		"qty":      t.Qty,
		"pnl":      t.PnL,
		"fee":      t.Fee,
		"order_id": t.OrderID,
		"lot_ids":  t.LotIDs,
		"ts":       t.TimestampMs,
	})
}

func (p *KafkaEvents) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
