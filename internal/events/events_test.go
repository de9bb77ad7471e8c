package events

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWriterConfig(t *testing.T) {
	w := newWriter([]string{"k1:9092", "k2:9092"}, "smm-order-events", zap.NewNop())

	require.Equal(t, "smm-order-events", w.Topic)
	require.True(t, w.Async)
	require.Equal(t, kafka.RequireOne, w.RequiredAcks)
	require.IsType(t, &kafka.Hash{}, w.Balancer)
	require.NotNil(t, w.Addr)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	require.NoError(t, p.PublishOrder(context.Background(), OrderEvent{Type: OrderCreated, OccurredAt: time.Now()}))
}
