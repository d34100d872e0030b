// Package events publishes order lifecycle events to a message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/internal/order"
)

// Event names.
const (
	OrderCreated = "order.created"
	OrderDecided = "order.decided"
)

// Config selects and configures the publisher.
type Config struct {
	Enabled bool     `yaml:"enabled" envconfig:"EVENTS_ENABLED"`
	Driver  string   `yaml:"driver" envconfig:"EVENTS_DRIVER"`
	Brokers []string `yaml:"brokers" envconfig:"EVENTS_BROKERS"`
	Topic   string   `yaml:"topic" envconfig:"EVENTS_TOPIC"`
	// WriteTimeout bounds a single publish.
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"EVENTS_WRITE_TIMEOUT"`
}

// Publisher writes keyed messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

// NewPublisher returns a kafka publisher, or a noop one when events are
// disabled.
func NewPublisher(cfg Config) (Publisher, error) {
	if !cfg.Enabled || cfg.Driver == "" || cfg.Driver == "noop" {
		logger.Info(logger.Background(), "events", "events.init",
			slog.String("driver", "noop"),
		)
		return Noop{}, nil
	}
	switch cfg.Driver {
	case "kafka":
		if len(cfg.Brokers) == 0 || cfg.Topic == "" {
			return nil, fmt.Errorf("events: kafka needs brokers and topic")
		}
		timeout := cfg.WriteTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		w := &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: timeout,
			MaxAttempts:  3,
			ErrorLogger:  kafka.LoggerFunc(kafkaErrorLogger),
		}
		logger.Info(logger.Background(), "events", "events.init",
			slog.String("driver", "kafka"),
			slog.String("topic", cfg.Topic),
			slog.Int("brokers", len(cfg.Brokers)),
		)
		return &kafkaPublisher{writer: w}, nil
	default:
		return nil, fmt.Errorf("unsupported events driver: %s", cfg.Driver)
	}
}

func kafkaErrorLogger(msg string, args ...any) {
	logger.Events.Warn(fmt.Sprintf(msg, args...), slog.String("event", "kafka.error"))
}

// Noop drops every message.
type Noop struct{}

func (Noop) Publish(context.Context, []byte, []byte) error { return nil }
func (Noop) Close() error                                  { return nil }

type kafkaPublisher struct {
	writer *kafka.Writer
}

func (k *kafkaPublisher) Publish(ctx context.Context, key, value []byte) error {
	return k.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

func (k *kafkaPublisher) Close() error { return k.writer.Close() }

// Envelope is the JSON document written for every event.
type Envelope struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurred_at"`
	Order      Payload   `json:"order"`
}

// Payload is the order as carried on the bus. The fulfillment link is
// never published.
type Payload struct {
	ID          int64      `json:"id"`
	RequesterID int64      `json:"requester_id"`
	ProductKey  string     `json:"product_key"`
	ProductName string     `json:"product_name"`
	Price       string     `json:"price"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	DecidedBy   int64      `json:"decided_by,omitempty"`
}

// Sink adapts a Publisher to order.EventSink.
type Sink struct {
	pub Publisher
	now func() time.Time
}

var _ order.EventSink = (*Sink)(nil)

func NewSink(pub Publisher) *Sink {
	return &Sink{pub: pub, now: time.Now}
}

func (s *Sink) OrderCreated(ctx context.Context, o order.Order) error {
	return s.publish(ctx, OrderCreated, o)
}

func (s *Sink) OrderDecided(ctx context.Context, o order.Order) error {
	return s.publish(ctx, OrderDecided, o)
}

func (s *Sink) publish(ctx context.Context, name string, o order.Order) error {
	env := Envelope{
		ID:         uuid.NewString(),
		Name:       name,
		OccurredAt: s.now().UTC(),
		Order: Payload{
			ID:          int64(o.ID),
			RequesterID: o.RequesterID,
			ProductKey:  o.Product.Key,
			ProductName: o.Product.Name,
			Price:       o.Product.Price.StringFixed(2),
			Status:      string(o.Status),
			CreatedAt:   o.CreatedAt,
			DecidedAt:   o.DecidedAt,
			DecidedBy:   o.DecidedBy,
		},
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	// Keyed by order id so one order's events stay on one partition.
	key := []byte(strconv.FormatInt(int64(o.ID), 10))
	if err := s.pub.Publish(ctx, key, body); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	logger.Debug(ctx, "events", "event.publish",
		slog.String("name", name),
		slog.String("event_id", env.ID),
		slog.Int64("order_id", int64(o.ID)),
	)
	return nil
}
