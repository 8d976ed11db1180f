package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishKeysByOrder(t *testing.T) {
	w := &captureWriter{}
	p := NewPublisher(w)

	err := p.Publish(context.Background(), OrderEvent{OrderID: "00007", Event: "approve", FromStatus: "WarehouseAssigned", ToStatus: "Approved", ActorID: 3, ActorRole: "Admin"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	require.Equal(t, "00007", string(w.msgs[0].Key))
	require.Equal(t, "approve", string(w.msgs[0].Headers[0].Value))

	var decoded OrderEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	require.Equal(t, "Approved", decoded.ToStatus)
	require.False(t, decoded.At.IsZero())

	require.NoError(t, p.Close())
	require.True(t, w.closed)
}

func TestPublishWrapsWriterError(t *testing.T) {
	p := NewPublisher(&captureWriter{err: errors.New("broker down")})
	err := p.Publish(context.Background(), OrderEvent{OrderID: "1", Event: "cancel"})
	require.ErrorContains(t, err, "broker down")
}

func TestNewWriterUsesHashBalancer(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"}, "order.events")
	require.Equal(t, "order.events", w.Topic)
	require.IsType(t, &kafka.Hash{}, w.Balancer)
	require.NoError(t, Nop{}.Publish(context.Background(), OrderEvent{}))
}
