package registry

import (
	"context"
	"log/slog"

	"verity/internal/verification/models"
	"verity/pkg/platform/circuit"
)

// Verifier is anything that answers marking code checks.
type Verifier interface {
	Verify(ctx context.Context, code string) (*models.RegistryResult, error)
}

// Guarded fails fast with a retryable outage while the registry keeps
// failing transiently. Definitive answers and permanent errors count as the
// registry being up.
type Guarded struct {
	next    Verifier
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuarded(next Verifier, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{next: next, breaker: breaker, logger: logger}
}

func (g *Guarded) Verify(ctx context.Context, code string) (*models.RegistryResult, error) {
	if !g.breaker.Allow() {
		return nil, NewError(ErrorOutage, "registry circuit open", nil)
	}
	result, err := g.next.Verify(ctx, code)
	if err != nil && IsRetryable(err) {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "registry circuit opened",
				"breaker", g.breaker.Name(),
				"error_category", CategoryOf(err),
			)
		}
		return nil, err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "registry circuit closed", "breaker", g.breaker.Name())
	}
	return result, err
}
