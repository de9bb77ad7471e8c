package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Type string

const (
	OrderCreated         Type = "order.created"
	OrderSubmitted       Type = "order.submitted"
	OrderFailed          Type = "order.failed"
	OrderRefunded        Type = "order.refunded"
	OrderCanceled        Type = "order.canceled"
	OrderRefillRequested Type = "order.refill_requested"
)

type OrderEvent struct {
	Type            Type      `json:"type"`
	OrderID         string    `json:"orderId"`
	UserID          string    `json:"userId"`
	Status          string    `json:"status"`
	ProviderOrderID string    `json:"providerOrderId,omitempty"`
	Amount          string    `json:"amount,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	OccurredAt      time.Time `json:"occurredAt"`
}

// Publisher delivers order lifecycle events. Delivery is best effort;
// callers log failures and move on.
type Publisher interface {
	PublishOrder(ctx context.Context, ev OrderEvent) error
}

type Nop struct{}

func (Nop) PublishOrder(context.Context, OrderEvent) error { return nil }

type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher returns an async writer keyed by user id, so one
// user's events stay ordered within a partition.
func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{writer: newWriter(brokers, topic, log)}
}

func newWriter(brokers []string, topic string, log *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn("order events not delivered", zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}
}

func (p *KafkaPublisher) PublishOrder(ctx context.Context, ev OrderEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	v, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.UserID),
		Value: v,
		Time:  ev.OccurredAt,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
