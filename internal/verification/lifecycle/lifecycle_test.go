package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verity/internal/verification/models"
)

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to models.Status }{
		{models.StatusPending, models.StatusVerified},
		{models.StatusPending, models.StatusFailed},
		{models.StatusVerified, models.StatusRevoked},
		{models.StatusVerified, models.StatusExpired},
		{models.StatusFailed, models.StatusPending},
		{models.StatusExpired, models.StatusPending},
		{models.StatusRevoked, models.StatusPending},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	rejected := []struct{ from, to models.Status }{
		{models.StatusPending, models.StatusRevoked},
		{models.StatusPending, models.StatusExpired},
		{models.StatusPending, models.StatusPending},
		{models.StatusVerified, models.StatusPending},
		{models.StatusVerified, models.StatusFailed},
		{models.StatusFailed, models.StatusVerified},
		{models.StatusRevoked, models.StatusVerified},
		{models.StatusExpired, models.StatusRevoked},
	}
	for _, tc := range rejected {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
		_, err := Plan(tc.from, tc.to)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
}

func TestPlanEffects(t *testing.T) {
	eff, err := Plan(models.StatusPending, models.StatusVerified)
	require.NoError(t, err)
	assert.True(t, eff.ScoreVerified)
	assert.True(t, eff.SetBadge)
	assert.Equal(t, EventVerified, eff.Event)

	eff, err = Plan(models.StatusVerified, models.StatusRevoked)
	require.NoError(t, err)
	assert.True(t, eff.ResetScore)
	assert.True(t, eff.ClearBadge)
	assert.Equal(t, EventRevoked, eff.Event)

	expired, err := Plan(models.StatusVerified, models.StatusExpired)
	require.NoError(t, err)
	assert.Equal(t, eff.ClearBadge, expired.ClearBadge)
	assert.Equal(t, EventExpired, expired.Event)

	eff, err = Plan(models.StatusFailed, models.StatusPending)
	require.NoError(t, err)
	assert.True(t, eff.ClearReason)
	assert.False(t, eff.SetBadge)
}

func TestAllowedReturnsCopy(t *testing.T) {
	next := Allowed(models.StatusPending)
	next[0] = models.StatusRevoked
	assert.Equal(t, models.StatusVerified, Allowed(models.StatusPending)[0])
}
