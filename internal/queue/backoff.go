package queue

import (
	"math"
	"time"

	"verity/internal/platform/config"
)

// Backoff is an exponential retry schedule: Base, Base*Multiplier, ... up to Cap.
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	Cap        time.Duration
}

// DefaultBackoff is 30s doubling, capped at one hour.
var DefaultBackoff = Backoff{Base: 30 * time.Second, Multiplier: 2, Cap: time.Hour}

func BackoffFromConfig(cfg config.QueueConfig) Backoff {
	return Backoff{Base: cfg.BackoffBase, Multiplier: cfg.BackoffMultiplier, Cap: cfg.BackoffCap}
}

// Delay returns the wait before the retry that follows attempt n (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base) * math.Pow(b.Multiplier, float64(attempt-1))
	if b.Cap > 0 && (d > float64(b.Cap) || math.IsInf(d, 0) || math.IsNaN(d)) {
		return b.Cap
	}
	return time.Duration(d)
}
