package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewBreakerIsClosed(t *testing.T) {
	b := New("registry")
	assert.Equal(t, "registry", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestConsecutiveFailuresOpen(t *testing.T) {
	b := New("registry", WithFailureThreshold(2))

	fallback, change := b.RecordFailure()
	assert.False(t, fallback)
	assert.False(t, change.Opened)

	fallback, change = b.RecordFailure()
	assert.True(t, fallback)
	assert.True(t, change.Opened)
	assert.True(t, b.IsOpen())

	fallback, change = b.RecordFailure()
	assert.True(t, fallback)
	assert.False(t, change.Opened, "already open")
}

func TestSuccessClearsFailureStreak(t *testing.T) {
	b := New("registry", WithFailureThreshold(2))
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.False(t, b.IsOpen())
}

func TestClosesAfterSuccessThreshold(t *testing.T) {
	b := New("registry", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.RecordFailure()

	primary, change := b.RecordSuccess()
	assert.False(t, primary)
	assert.False(t, change.Closed)

	b.RecordFailure()
	b.RecordSuccess()
	assert.True(t, b.IsOpen(), "a failure restarts the success streak")

	primary, change = b.RecordSuccess()
	assert.True(t, primary)
	assert.True(t, change.Closed)
	assert.False(t, b.IsOpen())
}

func TestAllowProbesAfterCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := New("registry",
		WithFailureThreshold(1),
		WithCooldown(time.Minute),
		WithClock(func() time.Time { return now }),
	)
	b.RecordFailure()
	assert.False(t, b.Allow())

	now = now.Add(time.Minute)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "one probe at a time")

	b.RecordFailure()
	assert.False(t, b.Allow(), "failed probe restarts the cooldown")

	now = now.Add(time.Minute)
	assert.True(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestReset(t *testing.T) {
	b := New("registry", WithFailureThreshold(1))
	b.RecordFailure()
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}
