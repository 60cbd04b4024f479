// Package notify delivers best-effort user notifications about verification
// outcomes. Delivery failures are logged and swallowed.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"verity/internal/platform/metrics"
)

// Message is the payload published for one notification.
type Message struct {
	ID         uuid.UUID      `json:"id"`
	UserID     uuid.UUID      `json:"user_id"`
	Event      string         `json:"event"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Producer is the subset of *kgo.Client the dispatcher uses.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaDispatcher publishes notifications to a topic keyed by user id, so a
// user's events stay ordered within a partition.
type KafkaDispatcher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*KafkaDispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *KafkaDispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *KafkaDispatcher) {
		d.metrics = m
	}
}

func NewKafkaDispatcher(producer Producer, topic string, opts ...Option) *KafkaDispatcher {
	d := &KafkaDispatcher{
		producer: producer,
		topic:    topic,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify produces asynchronously and never blocks on the broker.
func (d *KafkaDispatcher) Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) {
	msg := Message{
		ID:         uuid.New(),
		UserID:     userID,
		Event:      event,
		Payload:    payload,
		OccurredAt: d.now().UTC(),
	}
	value, err := json.Marshal(msg)
	if err != nil {
		d.fail(ctx, event, userID, err)
		return
	}
	record := &kgo.Record{
		Topic: d.topic,
		Key:   []byte(userID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event", Value: []byte(event)},
		},
	}
	d.producer.Produce(context.WithoutCancel(ctx), record, func(_ *kgo.Record, err error) {
		if err != nil {
			d.fail(ctx, event, userID, err)
		}
	})
}

func (d *KafkaDispatcher) fail(ctx context.Context, event string, userID uuid.UUID, err error) {
	d.metrics.IncNotificationFailure(event)
	d.logger.WarnContext(ctx, "notification dropped",
		"event", event,
		"user_id", userID.String(),
		"error", err,
	)
}

// LogDispatcher writes notifications to the log. Used when no broker is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) {
	d.logger.InfoContext(ctx, "notification",
		"event", event,
		"user_id", userID.String(),
		"payload", payload,
	)
}
