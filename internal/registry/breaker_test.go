package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verity/internal/verification/models"
	"verity/pkg/platform/circuit"
)

type scriptedVerifier struct {
	errs  []error
	calls int
}

func (s *scriptedVerifier) Verify(context.Context, string) (*models.RegistryResult, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &models.RegistryResult{IsValid: true, IsSold: true}, nil
}

func TestGuardedOpensOnTransientFailures(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next := &scriptedVerifier{errs: []error{
		NewError(ErrorOutage, "down", nil),
		NewError(ErrorTimeout, "slow", nil),
	}}
	g := NewGuarded(next, circuit.New("registry",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	_, err := g.Verify(ctx, "code")
	require.Error(t, err)
	_, err = g.Verify(ctx, "code")
	require.Error(t, err)

	_, err = g.Verify(ctx, "code")
	require.Error(t, err)
	assert.True(t, IsRetryable(err), "open circuit is a transient outage")
	assert.Equal(t, ErrorOutage, CategoryOf(err))
	assert.Equal(t, 2, next.calls, "open circuit does not call the registry")

	now = now.Add(time.Minute)
	result, err := g.Verify(ctx, "code")
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, 3, next.calls)
}

func TestGuardedPermanentErrorsKeepCircuitClosed(t *testing.T) {
	next := &scriptedVerifier{errs: []error{
		NewError(ErrorNotFound, "unknown", nil),
		NewError(ErrorInvalidFormat, "bad", nil),
		NewError(ErrorNotFound, "unknown", nil),
	}}
	breaker := circuit.New("registry", circuit.WithFailureThreshold(1))
	g := NewGuarded(next, breaker, nil)

	for range 3 {
		_, err := g.Verify(context.Background(), "code")
		require.Error(t, err)
		assert.False(t, IsRetryable(err))
	}
	assert.False(t, breaker.IsOpen())
	assert.Equal(t, 3, next.calls)
}
