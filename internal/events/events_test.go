package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/shopbot/internal/order"
)

type captured struct {
	key, value []byte
}

type fakePublisher struct {
	msgs []captured
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, key, value []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, captured{key: key, value: value})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func TestSinkPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(pub)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	sink.now = func() time.Time { return fixed }

	o := order.Order{
		ID:          12,
		RequesterID: 42,
		Product:     order.Product{Key: "plan_a", Name: "Plan A", Price: decimal.NewFromInt(10), Link: "secret"},
		Status:      order.StatusPending,
		CreatedAt:   fixed,
	}
	if err := sink.OrderCreated(context.Background(), o); err != nil {
		t.Fatalf("OrderCreated: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if string(msg.key) != "12" {
		t.Fatalf("unexpected key %q", msg.key)
	}
	if strings.Contains(string(msg.value), "secret") {
		t.Fatalf("fulfillment link leaked: %s", msg.value)
	}

	var env Envelope
	if err := json.Unmarshal(msg.value, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, err := uuid.Parse(env.ID); err != nil {
		t.Fatalf("event id is not a uuid: %q", env.ID)
	}
	if env.Name != OrderCreated || env.Order.Price != "10.00" || !env.OccurredAt.Equal(fixed) {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestSinkWrapsPublishError(t *testing.T) {
	sink := NewSink(&fakePublisher{err: errors.New("broker down")})
	err := sink.OrderDecided(context.Background(), order.Order{ID: 1, Status: order.StatusApproved})
	if err == nil || !strings.Contains(err.Error(), OrderDecided) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewPublisherDrivers(t *testing.T) {
	pub, err := NewPublisher(Config{})
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	if _, ok := pub.(Noop); !ok {
		t.Fatalf("expected noop publisher, got %T", pub)
	}
	if _, err := NewPublisher(Config{Enabled: true, Driver: "kafka"}); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewPublisher(Config{Enabled: true, Driver: "nats"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	k, err := NewPublisher(Config{Enabled: true, Driver: "kafka", Brokers: []string{"localhost:9092"}, Topic: "orders"})
	if err != nil {
		t.Fatalf("kafka publisher: %v", err)
	}
	w := k.(*kafkaPublisher).writer
	if w.BatchTimeout <= 0 || w.BatchTimeout > 50*time.Millisecond {
		t.Fatalf("batch timeout must stay short, got %v", w.BatchTimeout)
	}
	if w.WriteTimeout != 2*time.Second {
		t.Fatalf("default write timeout = %v", w.WriteTimeout)
	}
	_ = k.Close()
}
