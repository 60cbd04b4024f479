//go:build integration

package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"verity/internal/notify"
	"verity/internal/platform/config"
	"verity/internal/platform/kafka"
	"verity/pkg/testutil/containers"
)

func TestKafkaDispatcherAgainstBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	broker := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg := config.KafkaConfig{
		Brokers:            broker.Brokers,
		NotificationsTopic: "verification-notifications-" + uuid.NewString()[:8],
		Partitions:         1,
		ReplicationFactor:  1,
		Linger:             time.Millisecond,
		RecordRetries:      3,
	}
	producer, err := kafka.NewClient(cfg)
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, kafka.EnsureTopic(ctx, producer, cfg.NotificationsTopic, cfg.Partitions, cfg.ReplicationFactor))
	require.NoError(t, kafka.EnsureTopic(ctx, producer, cfg.NotificationsTopic, cfg.Partitions, cfg.ReplicationFactor),
		"creating an existing topic is not an error")

	d := notify.NewKafkaDispatcher(producer, cfg.NotificationsTopic,
		notify.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	userID := uuid.New()
	d.Notify(ctx, userID, "verification.verified", map[string]any{"record_id": "r-1"})
	require.NoError(t, producer.Flush(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Brokers...),
		kgo.ConsumeTopics(cfg.NotificationsTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, userID.String(), string(records[0].Key))
	require.Contains(t, records[0].Headers, kgo.RecordHeader{Key: "event", Value: []byte("verification.verified")})

	var msg notify.Message
	require.NoError(t, json.Unmarshal(records[0].Value, &msg))
	require.Equal(t, "verification.verified", msg.Event)
	require.Equal(t, userID, msg.UserID)
}
