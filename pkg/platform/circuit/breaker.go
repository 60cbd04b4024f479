// Package circuit implements a consecutive-failure circuit breaker.
//
// A breaker opens after FailureThreshold consecutive failures and closes
// again after SuccessThreshold consecutive successes. While open, Allow lets
// a single probe through once the cooldown since the last failure elapses.
package circuit

import (
	"sync"
	"time"
)

type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

// StateChange reports a transition caused by a Record call.
type StateChange struct {
	Opened bool
	Closed bool
}

type Breaker struct {
	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	now              func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	probing     bool
}

type Option func(*Breaker)

func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithCooldown sets how long an open breaker rejects calls before probing.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d >= 0 {
			b.cooldown = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		successThreshold: 1,
		cooldown:         30 * time.Second,
		now:              time.Now,
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Allow reports whether a call may proceed. An open breaker admits one probe
// at a time after the cooldown.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateClosed {
		return true
	}
	if b.probing || b.now().Sub(b.lastFailure) < b.cooldown {
		return false
	}
	b.probing = true
	return true
}

// RecordFailure counts a failed call. useFallback is true while the breaker
// is open after this call.
func (b *Breaker) RecordFailure() (useFallback bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	b.successes = 0
	b.lastFailure = b.now()
	if b.state == StateOpen {
		return true, change
	}
	b.failures++
	if b.failures >= b.failureThreshold {
		b.state = StateOpen
		change.Opened = true
		return true, change
	}
	return false, change
}

// RecordSuccess counts a successful call. usePrimary is true while the
// breaker is closed after this call.
func (b *Breaker) RecordSuccess() (usePrimary bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if b.state == StateClosed {
		b.failures = 0
		return true, change
	}
	b.successes++
	if b.successes >= b.successThreshold {
		b.state = StateClosed
		b.failures = 0
		b.successes = 0
		change.Closed = true
		return true, change
	}
	return false, change
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.probing = false
}
