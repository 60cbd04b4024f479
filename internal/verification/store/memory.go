package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"verity/internal/verification/models"
	"verity/pkg/platform/sentinel"
)

// InMemory keeps records, history, requests and registry audit entries in
// process memory. Every method returns copies so callers never share state.
type InMemory struct {
	mu       sync.RWMutex
	records  map[uuid.UUID]*models.Record
	byReview map[uuid.UUID]uuid.UUID
	history  map[uuid.UUID][]*models.HistoryEntry
	requests map[uuid.UUID]*models.Request
	audit    map[uuid.UUID][]*models.RegistryAuditEntry

	txMu sync.Mutex
}

func NewInMemory() *InMemory {
	return &InMemory{
		records:  make(map[uuid.UUID]*models.Record),
		byReview: make(map[uuid.UUID]uuid.UUID),
		history:  make(map[uuid.UUID][]*models.HistoryEntry),
		requests: make(map[uuid.UUID]*models.Request),
		audit:    make(map[uuid.UUID][]*models.RegistryAuditEntry),
	}
}

type memTxKey struct{}

// memTx is the undo log of one transaction.
type memTx struct {
	undo []func()
}

// RunInTx serialises transactional work behind a coarse lock. Writes made
// through the transaction context are reverted when fn returns an error.
// Nested calls join the outer transaction.
func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// remember records how to revert a write made inside a transaction. Callers
// hold s.mu.
func remember(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}

// rememberRequest snapshots a request before it is changed in place.
func (s *InMemory) rememberRequest(ctx context.Context, req *models.Request) {
	prev := req.Clone()
	remember(ctx, func() { s.requests[prev.ID] = prev })
}

func (s *InMemory) CreateRecord(ctx context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byReview[rec.ReviewID]; exists {
		return fmt.Errorf("record for review %s: %w", rec.ReviewID, sentinel.ErrConflict)
	}
	s.records[rec.ID] = rec.Clone()
	s.byReview[rec.ReviewID] = rec.ID
	remember(ctx, func() {
		delete(s.records, rec.ID)
		delete(s.byReview, rec.ReviewID)
	})
	return nil
}

func (s *InMemory) FindRecord(_ context.Context, id uuid.UUID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *InMemory) FindRecordByReview(_ context.Context, reviewID uuid.UUID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byReview[reviewID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.records[id].Clone(), nil
}

func (s *InMemory) UpdateRecord(ctx context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[rec.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Method != rec.Method || existing.ReviewID != rec.ReviewID {
		return fmt.Errorf("record %s identity changed: %w", rec.ID, sentinel.ErrInvalidState)
	}
	s.records[rec.ID] = rec.Clone()
	remember(ctx, func() { s.records[rec.ID] = existing })
	return nil
}

func (s *InMemory) ListExpiring(_ context.Context, now time.Time, limit int) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for _, rec := range s.records {
		if rec.Status == models.StatusVerified && rec.ExpiresAt != nil && !rec.ExpiresAt.After(now) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) AppendHistory(ctx context.Context, entry *models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *entry
	n := len(s.history[entry.RecordID])
	s.history[entry.RecordID] = append(s.history[entry.RecordID], &c)
	remember(ctx, func() { s.history[entry.RecordID] = s.history[entry.RecordID][:n] })
	return nil
}

func (s *InMemory) ListHistory(_ context.Context, recordID uuid.UUID) ([]*models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.history[recordID]
	out := make([]*models.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (s *InMemory) CreateRequest(ctx context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[req.ID] = req.Clone()
	remember(ctx, func() { delete(s.requests, req.ID) })
	return nil
}

func (s *InMemory) FindRequest(_ context.Context, id uuid.UUID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return req.Clone(), nil
}

func (s *InMemory) ListRequests(_ context.Context, recordID uuid.UUID, statuses ...models.RequestStatus) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Request
	for _, req := range s.requests {
		if req.RecordID != recordID || !statusIn(req.Status, statuses) {
			continue
		}
		out = append(out, req.Clone())
	}
	sortByCreated(out)
	return out, nil
}

// ClaimNext atomically moves the next ready request to processing. It
// returns nil when nothing is ready.
func (s *InMemory) ClaimNext(ctx context.Context, now time.Time) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next *models.Request
	for _, req := range s.requests {
		if req.Status != models.RequestQueued || req.NextAttemptAt.After(now) || !req.HasAttemptsLeft() {
			continue
		}
		if next == nil || claimsBefore(req, next) {
			next = req
		}
	}
	if next == nil {
		return nil, nil
	}
	s.rememberRequest(ctx, next)
	next.Status = models.RequestProcessing
	next.Attempts++
	claimed := now
	next.LastAttemptAt = &claimed
	next.UpdatedAt = now
	return next.Clone(), nil
}

func claimsBefore(a, b *models.Request) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (s *InMemory) CompleteRequest(ctx context.Context, id uuid.UUID, result *models.RegistryResult, now time.Time) error {
	return s.finishProcessing(ctx, id, now, func(req *models.Request) {
		req.Status = models.RequestCompleted
		req.Result = cloneResult(result)
		req.ErrorMessage = ""
		req.CompletedAt = &now
	})
}

func (s *InMemory) FailRequest(ctx context.Context, id uuid.UUID, result *models.RegistryResult, message string, now time.Time) error {
	return s.finishProcessing(ctx, id, now, func(req *models.Request) {
		req.Status = models.RequestFailed
		req.Result = cloneResult(result)
		req.ErrorMessage = message
		req.CompletedAt = &now
	})
}

func (s *InMemory) RequeueRequest(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, message string, now time.Time) error {
	return s.finishProcessing(ctx, id, now, func(req *models.Request) {
		req.Status = models.RequestQueued
		req.NextAttemptAt = nextAttemptAt
		req.ErrorMessage = message
	})
}

func (s *InMemory) finishProcessing(ctx context.Context, id uuid.UUID, now time.Time, apply func(*models.Request)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if req.Status != models.RequestProcessing {
		return fmt.Errorf("request %s is %s: %w", id, req.Status, sentinel.ErrInvalidState)
	}
	s.rememberRequest(ctx, req)
	apply(req)
	req.UpdatedAt = now
	return nil
}

func (s *InMemory) CancelRequest(ctx context.Context, id uuid.UUID, now time.Time) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if req.Status != models.RequestQueued {
		return nil, fmt.Errorf("request %s is %s: %w", id, req.Status, sentinel.ErrInvalidState)
	}
	s.rememberRequest(ctx, req)
	cancel(req, now)
	return req.Clone(), nil
}

func (s *InMemory) CancelQueuedForRecord(ctx context.Context, recordID uuid.UUID, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, req := range s.requests {
		if req.RecordID == recordID && req.Status == models.RequestQueued {
			s.rememberRequest(ctx, req)
			cancel(req, now)
			n++
		}
	}
	return n, nil
}

func cancel(req *models.Request, now time.Time) {
	req.Status = models.RequestCancelled
	req.UpdatedAt = now
	req.CompletedAt = &now
}

// ListStale returns processing requests claimed before cutoff.
func (s *InMemory) ListStale(_ context.Context, cutoff time.Time, limit int) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Request
	for _, req := range s.requests {
		if req.Status == models.RequestProcessing && req.LastAttemptAt != nil && req.LastAttemptAt.Before(cutoff) {
			out = append(out, req.Clone())
		}
	}
	sortByCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) AppendAudit(ctx context.Context, entry *models.RegistryAuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *entry
	n := len(s.audit[entry.RecordID])
	s.audit[entry.RecordID] = append(s.audit[entry.RecordID], &c)
	remember(ctx, func() { s.audit[entry.RecordID] = s.audit[entry.RecordID][:n] })
	return nil
}

func (s *InMemory) ListAudit(_ context.Context, recordID uuid.UUID) ([]*models.RegistryAuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.audit[recordID]
	out := make([]*models.RegistryAuditEntry, 0, len(entries))
	for _, e := range entries {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func statusIn(s models.RequestStatus, set []models.RequestStatus) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func sortByCreated(reqs []*models.Request) {
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.Before(reqs[j].CreatedAt) })
}

func cloneResult(r *models.RegistryResult) *models.RegistryResult {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
