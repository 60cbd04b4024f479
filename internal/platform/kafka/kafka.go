// Package kafka builds the franz-go client and bootstraps topics.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"verity/internal/platform/config"
)

// NewClient returns a producer client for the configured brokers, or nil
// when no brokers are configured.
func NewClient(cfg config.KafkaConfig) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.NotificationsTopic),
		kgo.ProducerLinger(cfg.Linger),
		kgo.RecordRetries(cfg.RecordRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopic creates topic if it does not exist.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, partitions, replicationFactor, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}
