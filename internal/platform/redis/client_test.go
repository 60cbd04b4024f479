package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verity/internal/platform/config"
)

func TestNewWithoutURLFallsBack(t *testing.T) {
	c, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewRejectsMalformedURL(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{URL: "tcp://cache:6379"})
	assert.ErrorContains(t, err, "parse redis URL")
}
