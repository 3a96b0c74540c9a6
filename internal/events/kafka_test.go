package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/order"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func testEvent() order.Event {
	return order.Event{
		Type:        order.EventPlaced,
		OrderID:     "o1",
		UserID:      "u1",
		Status:      order.StatusPending,
		TotalAmount: decimal.RequireFromString("250.50"),
		PromoCode:   "SAVE50",
		OccurredAt:  time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestEncode(t *testing.T) {
	var got map[string]any
	require.NoError(t, json.Unmarshal(Encode(testEvent()), &got))

	assert.Equal(t, map[string]any{
		"type":        "order.placed",
		"orderId":     "o1",
		"userId":      "u1",
		"status":      "pending",
		"totalAmount": 250.5,
		"promoCode":   "SAVE50",
		"occurredAt":  "2025-06-15T12:00:00Z",
	}, got)
}

func TestEncode_OmitsEmptyPromo(t *testing.T) {
	e := testEvent()
	e.PromoCode = ""

	var got map[string]any
	require.NoError(t, json.Unmarshal(Encode(e), &got))
	assert.NotContains(t, got, "promoCode")
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{w: w}

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("o1"), w.msgs[0].Key)
	assert.Equal(t, "type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, []byte("order.placed"), w.msgs[0].Headers[0].Value)

	w.err = errors.New("leader not available")
	require.Error(t, p.Publish(context.Background(), testEvent()))
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(Config{Topic: "orders"})
	require.Error(t, err)

	_, err = NewKafkaPublisher(Config{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)

	p, err := NewKafkaPublisher(Config{Brokers: []string{"localhost:9092"}, Topic: "orders"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}
