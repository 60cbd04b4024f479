package registry

import (
	"context"
	"strings"
	"time"

	"verity/internal/verification/models"
)

// Simulated answers without network access, for local runs. Codes whose
// serial starts with NOTFOUND are unknown; every other code is genuine.
type Simulated struct {
	Latency time.Duration
}

func (s Simulated) Verify(ctx context.Context, code string) (*models.RegistryResult, error) {
	if s.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, NewError(ErrorTimeout, "registry call timed out", ctx.Err())
		case <-time.After(s.Latency):
		}
	}
	if strings.Contains(code, "21NOTFOUND") {
		return nil, NewError(ErrorNotFound, "marking code not found", nil)
	}
	return &models.RegistryResult{
		IsValid:      true,
		IsSold:       true,
		Status:       "RETIRED",
		ProductName:  "Simulated product",
		ProducerName: "Simulated producer",
		CheckedAt:    time.Now().UTC(),
	}, nil
}
