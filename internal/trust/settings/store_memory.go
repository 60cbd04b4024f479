package settings

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"verity/internal/trust"
	"verity/pkg/platform/sentinel"
)

// InMemoryStore keeps trust configs in process memory.
type InMemoryStore struct {
	mu    sync.RWMutex
	def   *trust.Config
	byOrg map[uuid.UUID]*trust.Config
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byOrg: make(map[uuid.UUID]*trust.Config)}
}

func (s *InMemoryStore) FindDefault(_ context.Context) (*trust.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.def == nil {
		return nil, sentinel.ErrNotFound
	}
	return s.def.Clone(), nil
}

func (s *InMemoryStore) FindByOrganization(_ context.Context, orgID uuid.UUID) (*trust.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.byOrg[orgID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cfg.Clone(), nil
}

// Upsert stores cfg as the default row when OrganizationID is nil, otherwise
// as the organization's single row.
func (s *InMemoryStore) Upsert(_ context.Context, cfg *trust.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.IsDefault() {
		s.def = cfg.Clone()
		return nil
	}
	s.byOrg[*cfg.OrganizationID] = cfg.Clone()
	return nil
}

// InsertDefaultIfMissing seeds the default row once.
func (s *InMemoryStore) InsertDefaultIfMissing(_ context.Context, cfg *trust.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.def == nil {
		s.def = cfg.Clone()
		s.def.OrganizationID = nil
	}
	return nil
}
