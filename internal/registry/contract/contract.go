// Package contract holds reusable behavioural checks for registry clients.
package contract

import (
	"context"
	"testing"

	"verity/internal/registry"
	"verity/internal/verification/models"
)

// Verifier is the client surface under test.
type Verifier interface {
	Verify(ctx context.Context, code string) (*models.RegistryResult, error)
}

// ResultTest expects a definitive answer for Code.
type ResultTest struct {
	Name      string
	Code      string
	WantValid bool
}

// ErrorTest expects a categorized failure for Code.
type ErrorTest struct {
	Name          string
	Code          string
	WantCategory  registry.ErrorCategory
	WantRetryable bool
}

// Suite runs result and error checks against one client.
type Suite struct {
	Client  Verifier
	Results []ResultTest
	Errors  []ErrorTest
}

func (s *Suite) Run(t *testing.T) {
	t.Helper()
	for _, tc := range s.Results {
		t.Run(tc.Name, func(t *testing.T) {
			res, err := s.Client.Verify(context.Background(), tc.Code)
			if err != nil {
				t.Fatalf("verify failed: %v", err)
			}
			if res == nil {
				t.Fatal("nil result without error")
			}
			if res.IsValid != tc.WantValid {
				t.Errorf("expected is_valid=%v, got %v", tc.WantValid, res.IsValid)
			}
			if res.CheckedAt.IsZero() {
				t.Error("CheckedAt not set")
			}
		})
	}
	for _, tc := range s.Errors {
		t.Run(tc.Name, func(t *testing.T) {
			res, err := s.Client.Verify(context.Background(), tc.Code)
			if err == nil {
				t.Fatalf("expected error, got result %+v", res)
			}
			if got := registry.CategoryOf(err); got != tc.WantCategory {
				t.Errorf("expected category %s, got %s", tc.WantCategory, got)
			}
			if got := registry.IsRetryable(err); got != tc.WantRetryable {
				t.Errorf("expected retryable=%v, got %v", tc.WantRetryable, got)
			}
		})
	}
}
