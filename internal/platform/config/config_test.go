package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("VERITY_JWT_SIGNING_KEY", "test-key")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Queue.BackoffBase)
	assert.Equal(t, 2.0, cfg.Queue.BackoffMultiplier)
	assert.Equal(t, time.Hour, cfg.Queue.BackoffCap)
	assert.Equal(t, "@every 5m", cfg.Expiry.Schedule)
	assert.Nil(t, cfg.Kafka.Brokers)
	assert.Equal(t, 5, cfg.Registry.BreakerFailures)
	assert.Equal(t, 30*time.Second, cfg.Registry.BreakerCooldown)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("VERITY_JWT_SIGNING_KEY", "test-key")
	t.Setenv("VERITY_KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("VERITY_QUEUE_WORKERS", "8")
	t.Setenv("VERITY_QUEUE_BACKOFF_BASE", "10s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 8, cfg.Queue.Workers)
	assert.Equal(t, 10*time.Second, cfg.Queue.BackoffBase)
}

func TestFromEnvErrors(t *testing.T) {
	t.Setenv("VERITY_QUEUE_WORKERS", "many")
	t.Setenv("VERITY_QUEUE_BACKOFF_BASE", "soon")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VERITY_QUEUE_WORKERS")
	assert.Contains(t, err.Error(), "VERITY_QUEUE_BACKOFF_BASE")
}

func TestValidate(t *testing.T) {
	t.Setenv("VERITY_JWT_SIGNING_KEY", "k")
	cfg, err := FromEnv()
	require.NoError(t, err)

	bad := cfg
	bad.Queue.BackoffMultiplier = 1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Queue.ClaimTimeout = bad.Registry.Timeout
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Registry.BreakerFailures = 0
	assert.ErrorContains(t, bad.Validate(), "BREAKER_FAILURES")

	bad = cfg
	bad.Auth.JWTSigningKey = ""
	assert.ErrorContains(t, bad.Validate(), "JWT_SIGNING_KEY")
}
