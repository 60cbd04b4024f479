package reviews

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"verity/internal/verification/models"
	"verity/pkg/platform/sentinel"
)

// InMemoryStore holds reviews for local runs and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	reviews map[uuid.UUID]*Review
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{reviews: make(map[uuid.UUID]*Review)}
}

// Put inserts or replaces a review.
func (s *InMemoryStore) Put(_ context.Context, r *Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := r.clone()
	if c.TrustWeight == 0 {
		c.TrustWeight = models.NeutralTrustWeight
	}
	s.reviews[r.ID] = c
	return nil
}

func (s *InMemoryStore) GetReview(_ context.Context, id uuid.UUID) (*Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reviews[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.clone(), nil
}

func (s *InMemoryStore) SetVerificationBadge(_ context.Context, reviewID uuid.UUID, method models.Method, trustWeight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[reviewID]
	if !ok {
		return sentinel.ErrNotFound
	}
	r.VerifiedPurchase = true
	r.VerificationMethod = method
	r.TrustWeight = trustWeight
	return nil
}

func (s *InMemoryStore) ClearVerificationBadge(_ context.Context, reviewID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[reviewID]
	if !ok {
		return sentinel.ErrNotFound
	}
	r.VerifiedPurchase = false
	r.VerificationMethod = ""
	r.TrustWeight = models.NeutralTrustWeight
	return nil
}
