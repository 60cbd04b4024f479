package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"verity/internal/verification/models"
	"verity/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

func (s *InMemorySuite) newRecord() *models.Record {
	ev := models.RegistryMarkEvidence{Code: "010460714435317521SERIAL123", GTIN: "04607144353175", Serial: "SERIAL123"}
	return models.NewRecord(uuid.New(), uuid.New(), nil, nil, ev, s.now)
}

func (s *InMemorySuite) newRequest(recordID uuid.UUID, priority int, createdAt time.Time) *models.Request {
	req, err := models.NewRegistryRequest(recordID, models.RegistryMarkEvidence{Code: "c"}, priority, 3, createdAt)
	s.Require().NoError(err)
	return req
}

func (s *InMemorySuite) TestRecordIsUniquePerReview() {
	rec := s.newRecord()
	s.Require().NoError(s.store.CreateRecord(s.ctx, rec))

	dup := s.newRecord()
	dup.ReviewID = rec.ReviewID
	err := s.store.CreateRecord(s.ctx, dup)
	s.ErrorIs(err, sentinel.ErrConflict)

	found, err := s.store.FindRecordByReview(s.ctx, rec.ReviewID)
	s.Require().NoError(err)
	s.Equal(rec.ID, found.ID)
}

func (s *InMemorySuite) TestFindReturnsCopies() {
	rec := s.newRecord()
	s.Require().NoError(s.store.CreateRecord(s.ctx, rec))

	first, err := s.store.FindRecord(s.ctx, rec.ID)
	s.Require().NoError(err)
	first.Status = models.StatusVerified
	first.TrustFactors["x"] = 1

	second, err := s.store.FindRecord(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, second.Status)
	s.NotContains(second.TrustFactors, "x")
}

func (s *InMemorySuite) TestUpdateRejectsMethodChange() {
	rec := s.newRecord()
	s.Require().NoError(s.store.CreateRecord(s.ctx, rec))
	rec.Method = models.MethodQRScan
	s.ErrorIs(s.store.UpdateRecord(s.ctx, rec), sentinel.ErrInvalidState)

	s.ErrorIs(s.store.UpdateRecord(s.ctx, s.newRecord()), sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestClaimOrder() {
	recordID := uuid.New()
	older := s.newRequest(recordID, 0, s.now.Add(-2*time.Minute))
	newer := s.newRequest(recordID, 0, s.now.Add(-time.Minute))
	urgent := s.newRequest(recordID, 5, s.now)
	future := s.newRequest(recordID, 10, s.now)
	future.NextAttemptAt = s.now.Add(time.Hour)
	for _, r := range []*models.Request{newer, urgent, older, future} {
		s.Require().NoError(s.store.CreateRequest(s.ctx, r))
	}

	var order []uuid.UUID
	for {
		claimed, err := s.store.ClaimNext(s.ctx, s.now)
		s.Require().NoError(err)
		if claimed == nil {
			break
		}
		s.Equal(models.RequestProcessing, claimed.Status)
		s.Equal(1, claimed.Attempts)
		s.Require().NotNil(claimed.LastAttemptAt)
		order = append(order, claimed.ID)
	}
	s.Equal([]uuid.UUID{urgent.ID, older.ID, newer.ID}, order)
}

func (s *InMemorySuite) TestClaimIsExclusive() {
	for i := 0; i < 20; i++ {
		s.Require().NoError(s.store.CreateRequest(s.ctx, s.newRequest(uuid.New(), 0, s.now)))
	}

	var (
		mu      sync.Mutex
		claimed = map[uuid.UUID]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				req, err := s.store.ClaimNext(s.ctx, s.now)
				if err != nil || req == nil {
					return
				}
				mu.Lock()
				claimed[req.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Len(claimed, 20)
	for id, n := range claimed {
		s.Equal(1, n, "request %s claimed more than once", id)
	}
}

func (s *InMemorySuite) TestConditionalTransitions() {
	req := s.newRequest(uuid.New(), 0, s.now)
	s.Require().NoError(s.store.CreateRequest(s.ctx, req))

	s.ErrorIs(s.store.CompleteRequest(s.ctx, req.ID, nil, s.now), sentinel.ErrInvalidState)

	_, err := s.store.ClaimNext(s.ctx, s.now)
	s.Require().NoError(err)
	next := s.now.Add(30 * time.Second)
	s.Require().NoError(s.store.RequeueRequest(s.ctx, req.ID, next, "timeout", s.now))

	stored, err := s.store.FindRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.RequestQueued, stored.Status)
	s.Equal(next, stored.NextAttemptAt)
	s.Equal("timeout", stored.ErrorMessage)

	claimed, err := s.store.ClaimNext(s.ctx, s.now)
	s.Require().NoError(err)
	s.Nil(claimed, "request is not ready before next_attempt_at")

	_, err = s.store.ClaimNext(s.ctx, next)
	s.Require().NoError(err)
	result := &models.RegistryResult{IsValid: true, IsSold: true}
	s.Require().NoError(s.store.CompleteRequest(s.ctx, req.ID, result, next))
	s.ErrorIs(s.store.FailRequest(s.ctx, req.ID, nil, "late", next), sentinel.ErrInvalidState)

	stored, err = s.store.FindRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.RequestCompleted, stored.Status)
	s.Equal(2, stored.Attempts)
	s.True(stored.Result.IsValid)
}

func (s *InMemorySuite) TestExhaustedRequestsAreNotClaimed() {
	req := s.newRequest(uuid.New(), 0, s.now)
	req.Attempts = req.MaxAttempts
	s.Require().NoError(s.store.CreateRequest(s.ctx, req))

	claimed, err := s.store.ClaimNext(s.ctx, s.now)
	s.Require().NoError(err)
	s.Nil(claimed)
}

func (s *InMemorySuite) TestCancel() {
	recordID := uuid.New()
	queued := s.newRequest(recordID, 0, s.now)
	other := s.newRequest(recordID, 0, s.now.Add(time.Second))
	s.Require().NoError(s.store.CreateRequest(s.ctx, queued))
	s.Require().NoError(s.store.CreateRequest(s.ctx, other))

	cancelled, err := s.store.CancelRequest(s.ctx, queued.ID, s.now)
	s.Require().NoError(err)
	s.Equal(models.RequestCancelled, cancelled.Status)

	_, err = s.store.CancelRequest(s.ctx, queued.ID, s.now)
	s.ErrorIs(err, sentinel.ErrInvalidState)
	_, err = s.store.CancelRequest(s.ctx, uuid.New(), s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)

	n, err := s.store.CancelQueuedForRecord(s.ctx, recordID, s.now)
	s.Require().NoError(err)
	s.Equal(1, n)

	open, err := s.store.ListRequests(s.ctx, recordID, models.RequestQueued, models.RequestProcessing)
	s.Require().NoError(err)
	s.Empty(open)
	all, err := s.store.ListRequests(s.ctx, recordID)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *InMemorySuite) TestListStale() {
	req := s.newRequest(uuid.New(), 0, s.now)
	s.Require().NoError(s.store.CreateRequest(s.ctx, req))
	_, err := s.store.ClaimNext(s.ctx, s.now)
	s.Require().NoError(err)

	stale, err := s.store.ListStale(s.ctx, s.now, 10)
	s.Require().NoError(err)
	s.Empty(stale)

	stale, err = s.store.ListStale(s.ctx, s.now.Add(time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(stale, 1)
	s.Equal(req.ID, stale[0].ID)
}

func (s *InMemorySuite) TestListExpiring() {
	rec := s.newRecord()
	rec.Status = models.StatusVerified
	expires := s.now.Add(-time.Minute)
	rec.ExpiresAt = &expires
	s.Require().NoError(s.store.CreateRecord(s.ctx, rec))

	pending := s.newRecord()
	pending.ExpiresAt = &expires
	s.Require().NoError(s.store.CreateRecord(s.ctx, pending))

	due, err := s.store.ListExpiring(s.ctx, s.now, 0)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal(rec.ID, due[0].ID)
}

func TestInMemoryRunInTxNests(t *testing.T) {
	store := NewInMemory()
	calls := 0
	err := store.RunInTx(context.Background(), func(ctx context.Context) error {
		return store.RunInTx(ctx, func(context.Context) error {
			calls++
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = store.RunInTx(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryRunInTxRevertsOnError(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	ev := models.RegistryMarkEvidence{Code: "010460714435317521SERIAL123"}
	rec := models.NewRecord(uuid.New(), uuid.New(), nil, nil, ev, now)
	require.NoError(t, store.CreateRecord(ctx, rec))
	queued, err := models.NewRegistryRequest(rec.ID, ev, 0, 3, now)
	require.NoError(t, err)
	require.NoError(t, store.CreateRequest(ctx, queued))

	boom := errors.New("badge store down")
	err = store.RunInTx(ctx, func(ctx context.Context) error {
		changed := rec.Clone()
		changed.Status = models.StatusVerified
		changed.TrustScore = 1
		if err := store.UpdateRecord(ctx, changed); err != nil {
			return err
		}
		if err := store.AppendHistory(ctx, &models.HistoryEntry{ID: uuid.New(), RecordID: rec.ID, ToStatus: models.StatusVerified, CreatedAt: now}); err != nil {
			return err
		}
		if _, err := store.CancelQueuedForRecord(ctx, rec.ID, now); err != nil {
			return err
		}
		second := models.NewRecord(uuid.New(), uuid.New(), nil, nil, ev, now)
		if err := store.CreateRecord(ctx, second); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	found, err := store.FindRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, found.Status)
	assert.Zero(t, found.TrustScore)

	history, err := store.ListHistory(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	req, err := store.FindRequest(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestQueued, req.Status)

	store.mu.RLock()
	assert.Len(t, store.records, 1)
	assert.Len(t, store.byReview, 1)
	store.mu.RUnlock()

	// Writes outside a transaction are not journaled.
	require.NoError(t, store.AppendHistory(ctx, &models.HistoryEntry{ID: uuid.New(), RecordID: rec.ID, ToStatus: models.StatusPending, CreatedAt: now}))
	history, err = store.ListHistory(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
