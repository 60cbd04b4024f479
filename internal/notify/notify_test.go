package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"verity/internal/platform/metrics"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (p *fakeProducer) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	p.records = append(p.records, r)
	promise(r, p.err)
}

func TestKafkaDispatcherPublishes(t *testing.T) {
	producer := &fakeProducer{}
	fixed := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	d := NewKafkaDispatcher(producer, "verification-events")
	d.now = func() time.Time { return fixed }

	user := uuid.New()
	d.Notify(context.Background(), user, "verification.verified", map[string]any{"record_id": "r1"})

	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, "verification-events", rec.Topic)
	assert.Equal(t, user.String(), string(rec.Key))

	var msg Message
	require.NoError(t, json.Unmarshal(rec.Value, &msg))
	assert.Equal(t, user, msg.UserID)
	assert.Equal(t, "verification.verified", msg.Event)
	assert.Equal(t, "r1", msg.Payload["record_id"])
	assert.Equal(t, fixed, msg.OccurredAt)
}

func TestKafkaDispatcherSwallowsFailures(t *testing.T) {
	var logs bytes.Buffer
	producer := &fakeProducer{err: errors.New("broker down")}
	d := NewKafkaDispatcher(producer, "t",
		WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))),
		WithMetrics(metrics.NewWithRegisterer(prometheus.NewRegistry())),
	)

	assert.NotPanics(t, func() {
		d.Notify(context.Background(), uuid.New(), "verification.failed", nil)
	})
	assert.Contains(t, logs.String(), "notification dropped")
	assert.Contains(t, logs.String(), "broker down")
}

func TestLogDispatcher(t *testing.T) {
	var logs bytes.Buffer
	d := NewLogDispatcher(slog.New(slog.NewJSONHandler(&logs, nil)))
	d.Notify(context.Background(), uuid.New(), "verification.revoked", map[string]any{"reason": "fraud"})
	assert.Contains(t, logs.String(), "verification.revoked")
}
