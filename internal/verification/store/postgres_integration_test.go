//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"verity/internal/verification/models"
	"verity/internal/verification/store"
	"verity/pkg/platform/sentinel"
	"verity/pkg/testutil/containers"
)

type PostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	ctx      context.Context
	now      time.Time
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.postgres.TruncateTables(s.ctx,
		"verification_status_history", "verification_requests", "verification_records"))
}

func (s *PostgresSuite) newRecord() *models.Record {
	ev := models.RegistryMarkEvidence{Code: "010460714435317521SERIAL123", GTIN: "04607144353175", Serial: "SERIAL123", ChecksumValid: true}
	rec := models.NewRecord(uuid.New(), uuid.New(), nil, nil, ev, s.now)
	s.Require().NoError(s.store.CreateRecord(s.ctx, rec))
	return rec
}

func (s *PostgresSuite) newRequest(recordID uuid.UUID, priority int, createdAt time.Time) *models.Request {
	req, err := models.NewRegistryRequest(recordID, models.RegistryMarkEvidence{Code: "010460714435317521SERIAL123"}, priority, 3, createdAt)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateRequest(s.ctx, req))
	return req
}

func (s *PostgresSuite) TestRecordRoundTrip() {
	rec := s.newRecord()

	dup := models.NewRecord(rec.ReviewID, uuid.New(), nil, nil, models.ManualAdminEvidence{Justification: "x"}, s.now)
	s.ErrorIs(s.store.CreateRecord(s.ctx, dup), sentinel.ErrConflict)

	verifiedAt := s.now.Add(time.Minute)
	rec.Status = models.StatusVerified
	rec.TrustScore = 1
	rec.TrustWeight = 1.5
	rec.TrustFactors = models.TrustFactors{models.FactorMethodWeight: 1}
	rec.VerifiedAt = &verifiedAt
	rec.UpdatedAt = verifiedAt
	s.Require().NoError(s.store.UpdateRecord(s.ctx, rec))

	found, err := s.store.FindRecordByReview(s.ctx, rec.ReviewID)
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, found.Status)
	s.InDelta(1.5, found.TrustWeight, 1e-9)
	s.Equal(1.0, found.TrustFactors[models.FactorMethodWeight])
	s.Require().NotNil(found.VerifiedAt)
	s.True(found.VerifiedAt.Equal(verifiedAt))
	mark, ok := found.Evidence.(models.RegistryMarkEvidence)
	s.Require().True(ok)
	s.Equal("SERIAL123", mark.Serial)

	_, err = s.store.FindRecord(s.ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresSuite) TestScoreConstraintRejectsScoredPendingRecord() {
	rec := s.newRecord()
	rec.TrustScore = 0.5
	s.Error(s.store.UpdateRecord(s.ctx, rec))
}

func (s *PostgresSuite) TestRunInTxRollsBack() {
	rec := s.newRecord()
	boom := errors.New("boom")
	err := s.store.RunInTx(s.ctx, func(ctx context.Context) error {
		locked, err := s.store.FindRecord(ctx, rec.ID)
		s.Require().NoError(err)
		locked.Status = models.StatusFailed
		locked.FailureReason = models.ReasonRejected
		s.Require().NoError(s.store.UpdateRecord(ctx, locked))
		return boom
	})
	s.ErrorIs(err, boom)

	found, err := s.store.FindRecord(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, found.Status)
}

func (s *PostgresSuite) TestClaimOrderAndBackoff() {
	rec := s.newRecord()
	low := s.newRequest(rec.ID, 0, s.now.Add(-time.Minute))
	high := s.newRequest(rec.ID, 5, s.now)

	claimed, err := s.store.ClaimNext(s.ctx, s.now)
	s.Require().NoError(err)
	s.Require().NotNil(claimed)
	s.Equal(high.ID, claimed.ID)
	s.Equal(1, claimed.Attempts)
	s.Equal(models.RequestProcessing, claimed.Status)

	next := s.now.Add(30 * time.Second)
	s.Require().NoError(s.store.RequeueRequest(s.ctx, high.ID, next, "registry outage", s.now))

	claimed, err = s.store.ClaimNext(s.ctx, s.now)
	s.Require().NoError(err)
	s.Equal(low.ID, claimed.ID)

	claimed, err = s.store.ClaimNext(s.ctx, s.now)
	s.Require().NoError(err)
	s.Nil(claimed, "requeued request is not ready before its backoff")

	claimed, err = s.store.ClaimNext(s.ctx, next)
	s.Require().NoError(err)
	s.Require().NotNil(claimed)
	s.Equal(high.ID, claimed.ID)
	s.Equal(2, claimed.Attempts)

	s.ErrorIs(s.store.RequeueRequest(s.ctx, uuid.New(), next, "", s.now), sentinel.ErrNotFound)
}

func (s *PostgresSuite) TestConcurrentClaimsNeverOverlap() {
	rec := s.newRecord()
	const requests = 20
	for i := range requests {
		s.newRequest(rec.ID, 0, s.now.Add(time.Duration(i)*time.Millisecond))
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		claimed = map[uuid.UUID]int{}
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				req, err := s.store.ClaimNext(s.ctx, s.now.Add(time.Second))
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

	s.Len(claimed, requests)
	for id, n := range claimed {
		s.Equal(1, n, "request %s claimed more than once", id)
	}
}

func (s *PostgresSuite) TestCancelAndStale() {
	rec := s.newRecord()
	queued := s.newRequest(rec.ID, 0, s.now)
	inFlight := s.newRequest(rec.ID, 9, s.now)

	claimed, err := s.store.ClaimNext(s.ctx, s.now)
	s.Require().NoError(err)
	s.Equal(inFlight.ID, claimed.ID)

	n, err := s.store.CancelQueuedForRecord(s.ctx, rec.ID, s.now)
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = s.store.CancelRequest(s.ctx, queued.ID, s.now)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	stale, err := s.store.ListStale(s.ctx, s.now.Add(time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(stale, 1)
	s.Equal(inFlight.ID, stale[0].ID)

	open, err := s.store.ListRequests(s.ctx, rec.ID, models.RequestQueued, models.RequestProcessing)
	s.Require().NoError(err)
	s.Len(open, 1)
}

func (s *PostgresSuite) TestHistoryAndAuditAreAppendOnly() {
	rec := s.newRecord()
	s.Require().NoError(s.store.AppendHistory(s.ctx, &models.HistoryEntry{
		ID: uuid.New(), RecordID: rec.ID, ToStatus: models.StatusPending, Reason: "submitted", CreatedAt: s.now,
	}))
	s.Require().NoError(s.store.AppendHistory(s.ctx, &models.HistoryEntry{
		ID: uuid.New(), RecordID: rec.ID, FromStatus: models.StatusPending, ToStatus: models.StatusVerified,
		TrustScore: 1, CreatedAt: s.now.Add(time.Second),
	}))
	history, err := s.store.ListHistory(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(models.StatusVerified, history[1].ToStatus)

	_, err = s.postgres.DB.ExecContext(s.ctx,
		`UPDATE verification_status_history SET reason = 'rewritten' WHERE record_id = $1`, rec.ID)
	s.Require().NoError(err)
	_, err = s.postgres.DB.ExecContext(s.ctx, `DELETE FROM verification_status_history WHERE record_id = $1`, rec.ID)
	s.Require().NoError(err)
	history, err = s.store.ListHistory(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 2, "deletes are ignored by the history rules")
	s.Equal("submitted", history[0].Reason, "updates are ignored by the history rules")

	req := s.newRequest(rec.ID, 0, s.now)
	_, err = s.postgres.DB.ExecContext(s.ctx, `DELETE FROM verification_requests WHERE id = $1`, req.ID)
	s.Require().NoError(err)
	kept, err := s.store.FindRequest(s.ctx, req.ID)
	s.Require().NoError(err, "requests are never removed")
	s.Equal(req.ID, kept.ID)

	entry := &models.RegistryAuditEntry{
		ID: uuid.New(), RecordID: rec.ID, RequestID: uuid.New(), Attempt: 1,
		RequestBody: []byte(`{"code":"x"}`), ErrorCategory: "timeout", Duration: 1500 * time.Millisecond, CreatedAt: s.now,
	}
	s.Require().NoError(s.store.AppendAudit(s.ctx, entry))

	_, err = s.postgres.DB.ExecContext(s.ctx, `DELETE FROM registry_audit_log WHERE record_id = $1`, rec.ID)
	s.Require().NoError(err)

	audit, err := s.store.ListAudit(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Require().Len(audit, 1, "deletes are ignored by the audit rules")
	s.Equal(1500*time.Millisecond, audit[0].Duration)
}
