package service_test

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks ReviewStore,Notifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"verity/internal/platform/metrics"
	"verity/internal/queue"
	queuemocks "verity/internal/queue/mocks"
	"verity/internal/registry"
	"verity/internal/reviews"
	"verity/internal/trust/settings"
	"verity/internal/verification/lifecycle"
	"verity/internal/verification/models"
	"verity/internal/verification/service"
	"verity/internal/verification/service/mocks"
	"verity/internal/verification/store"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/requestcontext"
)

const (
	validMark    = `{"code":"010460714435317521SERIAL123"}`
	truncateMark = `{"code":"0104607144353175"}`
	receipt      = `{"image_ref":"s3://receipts/1.jpg","amount":"12.50"}`
	manual       = `{"justification":"invoice checked by support"}`
)

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *store.InMemory
	reviews   *reviews.InMemoryStore
	configs   *settings.Service
	registry  *queuemocks.MockRegistryClient
	notifier  *mocks.MockNotifier
	service   *service.Service
	processor *queue.Processor

	now      time.Time
	authorID uuid.UUID
	adminID  uuid.UUID
	events   []string
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.authorID = uuid.New()
	s.adminID = uuid.New()
	s.events = nil

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())

	s.store = store.NewInMemory()
	s.reviews = reviews.NewInMemoryStore()
	s.configs = settings.New(settings.NewInMemoryStore(), settings.WithLogger(logger))
	s.Require().NoError(s.configs.Seed(context.Background()))

	s.registry = queuemocks.NewMockRegistryClient(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, _ uuid.UUID, event string, _ map[string]any) {
			s.events = append(s.events, event)
		}).AnyTimes()

	s.service = service.New(s.store, s.reviews, s.configs,
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithNotifier(s.notifier),
		service.WithMaxAttempts(3),
	)
	s.processor = queue.NewProcessor(s.store, s.registry, s.service, queue.DefaultBackoff,
		queue.WithClock(func() time.Time { return s.now }),
		queue.WithLogger(logger),
		queue.WithMetrics(m),
	)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) at(ctx context.Context) context.Context {
	return requestcontext.WithTime(ctx, s.now)
}

func (s *ServiceSuite) author() context.Context {
	return s.at(requestcontext.WithUserID(context.Background(), s.authorID))
}

func (s *ServiceSuite) admin() context.Context {
	ctx := requestcontext.WithUserID(context.Background(), s.adminID)
	return s.at(requestcontext.WithAdmin(ctx, true))
}

func (s *ServiceSuite) worker() context.Context {
	return s.at(context.Background())
}

func (s *ServiceSuite) newReview(createdAt time.Time) *reviews.Review {
	r := &reviews.Review{
		ID:        uuid.New(),
		AuthorID:  s.authorID,
		Rating:    5,
		CreatedAt: createdAt,
	}
	s.Require().NoError(s.reviews.Put(context.Background(), r))
	return r
}

func (s *ServiceSuite) submit(ctx context.Context, reviewID uuid.UUID, method models.Method, payload string) (*models.Record, error) {
	return s.service.Submit(ctx, service.SubmitInput{
		ReviewID: reviewID,
		Method:   method,
		Evidence: json.RawMessage(payload),
	})
}

func (s *ServiceSuite) genuine() *models.RegistryResult {
	return &models.RegistryResult{IsValid: true, IsSold: true, Status: "RETIRED", CheckedAt: s.now}
}

func (s *ServiceSuite) processOne() {
	processed, err := s.processor.ProcessNext(s.worker())
	s.Require().NoError(err)
	s.Require().True(processed)
}

func (s *ServiceSuite) record(reviewID uuid.UUID) *models.Record {
	rec, err := s.service.GetStatus(context.Background(), reviewID)
	s.Require().NoError(err)
	return rec
}

func (s *ServiceSuite) TestRegistryMarkVerified() {
	review := s.newReview(s.now.Add(-2 * time.Hour))

	rec, err := s.submit(s.author(), review.ID, models.MethodRegistryMark, validMark)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, rec.Status)
	s.Zero(rec.TrustScore)
	s.Require().NotNil(rec.ActiveRequestID)

	s.registry.EXPECT().Verify(gomock.Any(), "010460714435317521SERIAL123").Return(s.genuine(), nil)
	s.processOne()

	got := s.record(review.ID)
	s.Equal(models.StatusVerified, got.Status)
	s.InDelta(1.0, got.TrustScore, 1e-9)
	s.InDelta(1.5, got.TrustWeight, 1e-9)
	s.Require().NotNil(got.VerifiedAt)
	s.Nil(got.ExpiresAt)
	s.Equal(models.ReasonNone, got.FailureReason)
	mark, ok := got.Evidence.(models.RegistryMarkEvidence)
	s.Require().True(ok)
	s.Require().NotNil(mark.RegistryResponse)
	s.True(mark.RegistryResponse.IsValid)

	badge, err := s.reviews.GetReview(context.Background(), review.ID)
	s.Require().NoError(err)
	s.True(badge.VerifiedPurchase)
	s.Equal(models.MethodRegistryMark, badge.VerificationMethod)
	s.InDelta(1.5, badge.TrustWeight, 1e-9)

	history, err := s.service.History(s.author(), got.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(models.StatusPending, history[0].ToStatus)
	s.Equal(models.StatusPending, history[1].FromStatus)
	s.Equal(models.StatusVerified, history[1].ToStatus)

	s.Equal([]string{string(lifecycle.EventPending), string(lifecycle.EventVerified)}, s.events)

	audit, err := s.service.RegistryAudit(s.admin(), got.ID)
	s.Require().NoError(err)
	s.Len(audit, 1)
}

func (s *ServiceSuite) TestInvalidEvidenceIsRejectedSynchronously() {
	review := s.newReview(s.now)

	_, err := s.submit(s.author(), review.ID, models.MethodRegistryMark, truncateMark)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidEvidence))

	_, err = s.service.GetStatus(context.Background(), review.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	processed, err := s.processor.ProcessNext(s.worker())
	s.Require().NoError(err)
	s.False(processed, "nothing may be queued for invalid evidence")
	s.Empty(s.events)
}

func (s *ServiceSuite) TestTransientFailuresExhaustAttempts() {
	review := s.newReview(s.now)
	_, err := s.submit(s.author(), review.ID, models.MethodRegistryMark, validMark)
	s.Require().NoError(err)

	outage := registry.NewError(registry.ErrorOutage, "registry returned 503", nil)
	s.registry.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(nil, outage).Times(3)

	s.processOne()
	s.Equal(models.StatusPending, s.record(review.ID).Status)

	s.now = s.now.Add(30 * time.Second)
	s.processOne()
	s.Equal(models.StatusPending, s.record(review.ID).Status)

	s.now = s.now.Add(time.Minute)
	s.processOne()

	got := s.record(review.ID)
	s.Equal(models.StatusFailed, got.Status)
	s.Equal(models.ReasonRegistryExhausted, got.FailureReason)
	s.Zero(got.TrustScore)

	s.now = s.now.Add(time.Hour)
	processed, err := s.processor.ProcessNext(s.worker())
	s.Require().NoError(err)
	s.False(processed)

	reqs, err := s.store.ListRequests(context.Background(), got.ID)
	s.Require().NoError(err)
	s.Require().Len(reqs, 1)
	s.Equal(models.RequestFailed, reqs[0].Status)
	s.Equal(3, reqs[0].Attempts)
}

func (s *ServiceSuite) TestRegistryRejection() {
	review := s.newReview(s.now)
	_, err := s.submit(s.author(), review.ID, models.MethodRegistryMark, validMark)
	s.Require().NoError(err)

	s.registry.EXPECT().Verify(gomock.Any(), gomock.Any()).
		Return(nil, registry.NewError(registry.ErrorNotFound, "unknown code", nil))
	s.processOne()

	got := s.record(review.ID)
	s.Equal(models.StatusFailed, got.Status)
	s.Equal(models.ReasonCodeNotFound, got.FailureReason)
}

func (s *ServiceSuite) TestNegativeRegistryAnswerFails() {
	review := s.newReview(s.now)
	_, err := s.submit(s.author(), review.ID, models.MethodRegistryMark, validMark)
	s.Require().NoError(err)

	s.registry.EXPECT().Verify(gomock.Any(), gomock.Any()).
		Return(&models.RegistryResult{IsValid: false, Status: "EMITTED", CheckedAt: s.now}, nil)
	s.processOne()

	got := s.record(review.ID)
	s.Equal(models.StatusFailed, got.Status)
	s.Equal(models.ReasonNotGenuine, got.FailureReason)
	s.Equal(string(lifecycle.EventFailed), s.events[len(s.events)-1])
}

func (s *ServiceSuite) TestRevokeClearsScoreAndBadge() {
	review := s.newReview(s.now)
	rec, err := s.submit(s.admin(), review.ID, models.MethodManualAdmin, manual)
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, rec.Status)
	s.InDelta(0.9, rec.TrustScore, 1e-9)
	s.Equal(s.authorID, rec.UserID)

	s.Run("reason is required", func() {
		_, err := s.service.Revoke(s.admin(), rec.ID, "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("author cannot revoke", func() {
		_, err := s.service.Revoke(s.author(), rec.ID, "fraud")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	revoked, err := s.service.Revoke(s.admin(), rec.ID, "fraudulent receipt")
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, revoked.Status)
	s.Equal(models.ReasonRevoked, revoked.FailureReason)
	s.Zero(revoked.TrustScore)
	s.Equal(models.NeutralTrustWeight, revoked.TrustWeight)

	history, err := s.service.History(s.admin(), rec.ID)
	s.Require().NoError(err)
	last := history[len(history)-1]
	s.Equal(models.StatusVerified, last.FromStatus)
	s.Equal(models.StatusRevoked, last.ToStatus)
	s.Equal("fraudulent receipt", last.Reason)
	s.Require().NotNil(last.ActorID)
	s.Equal(s.adminID, *last.ActorID)

	badge, err := s.reviews.GetReview(context.Background(), review.ID)
	s.Require().NoError(err)
	s.False(badge.VerifiedPurchase)
	s.Equal(string(lifecycle.EventRevoked), s.events[len(s.events)-1])

	_, err = s.service.Revoke(s.admin(), rec.ID, "again")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *ServiceSuite) TestOnlyTheNewestRequestDrivesTheRecord() {
	review := s.newReview(s.now)
	rec, err := s.submit(s.author(), review.ID, models.MethodRegistryMark, validMark)
	s.Require().NoError(err)

	// The first request is in flight when a moderator rejects the record.
	first, err := s.store.ClaimNext(context.Background(), s.now)
	s.Require().NoError(err)
	s.Require().NotNil(first)
	_, err = s.service.Reject(s.admin(), rec.ID, "blurry photo")
	s.Require().NoError(err)

	resubmitted, err := s.service.Resubmit(s.author(), service.SubmitInput{
		ReviewID: review.ID,
		Method:   models.MethodRegistryMark,
		Evidence: json.RawMessage(validMark),
	})
	s.Require().NoError(err)
	s.Equal(models.StatusPending, resubmitted.Status)
	s.Equal(models.ReasonNone, resubmitted.FailureReason)
	s.Require().NotNil(resubmitted.ActiveRequestID)
	s.NotEqual(first.ID, *resubmitted.ActiveRequestID)

	// The stale answer is recorded on its request but leaves the record alone.
	err = s.service.HandleOutcome(s.worker(), first, queue.Outcome{
		Kind:   queue.OutcomeSucceeded,
		Result: &models.RegistryResult{IsValid: false, Status: "EMITTED"},
	})
	s.Require().NoError(err)
	s.Equal(models.StatusPending, s.record(review.ID).Status)

	stale, err := s.store.FindRequest(context.Background(), first.ID)
	s.Require().NoError(err)
	s.Equal(models.RequestCompleted, stale.Status)

	s.registry.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(s.genuine(), nil)
	s.processOne()
	s.Equal(models.StatusVerified, s.record(review.ID).Status)
}

func (s *ServiceSuite) TestSubmitGuards() {
	review := s.newReview(s.now)

	s.Run("unauthenticated", func() {
		_, err := s.submit(s.at(context.Background()), review.ID, models.MethodReceiptUpload, receipt)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("not the author", func() {
		other := s.at(requestcontext.WithUserID(context.Background(), uuid.New()))
		_, err := s.submit(other, review.ID, models.MethodReceiptUpload, receipt)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown review", func() {
		_, err := s.submit(s.author(), uuid.New(), models.MethodReceiptUpload, receipt)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("duplicate", func() {
		_, err := s.submit(s.author(), review.ID, models.MethodReceiptUpload, receipt)
		s.Require().NoError(err)
		_, err = s.submit(s.author(), review.ID, models.MethodReceiptUpload, receipt)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateVerification))
	})
}

func (s *ServiceSuite) TestModeratorDecisions() {
	s.Run("approve pending receipt", func() {
		review := s.newReview(s.now)
		rec, err := s.submit(s.author(), review.ID, models.MethodReceiptUpload, receipt)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, rec.Status)
		s.Nil(rec.ActiveRequestID)

		_, err = s.service.Approve(s.author(), rec.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		approved, err := s.service.Approve(s.admin(), rec.ID, "")
		s.Require().NoError(err)
		s.Equal(models.StatusVerified, approved.Status)
		s.InDelta(0.7, approved.TrustScore, 1e-9)
		s.InDelta(1.05, approved.TrustWeight, 1e-9)

		_, err = s.service.Approve(s.admin(), rec.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("manual evidence from the author waits for a moderator", func() {
		review := s.newReview(s.now)
		rec, err := s.submit(s.author(), review.ID, models.MethodManualAdmin, manual)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, rec.Status)
	})

	s.Run("reject cancels queued registry checks", func() {
		review := s.newReview(s.now)
		rec, err := s.submit(s.author(), review.ID, models.MethodRegistryMark, validMark)
		s.Require().NoError(err)

		rejected, err := s.service.Reject(s.admin(), rec.ID, "duplicate account")
		s.Require().NoError(err)
		s.Equal(models.StatusFailed, rejected.Status)
		s.Equal(models.ReasonRejected, rejected.FailureReason)

		queued, err := s.store.ListRequests(context.Background(), rec.ID, models.RequestQueued)
		s.Require().NoError(err)
		s.Empty(queued)
	})
}

func (s *ServiceSuite) TestCancelAuthoritativeRequestFailsRecord() {
	review := s.newReview(s.now)
	rec, err := s.submit(s.author(), review.ID, models.MethodRegistryMark, validMark)
	s.Require().NoError(err)

	_, err = s.service.CancelRequest(s.author(), *rec.ActiveRequestID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	req, err := s.service.CancelRequest(s.admin(), *rec.ActiveRequestID)
	s.Require().NoError(err)
	s.Equal(models.RequestCancelled, req.Status)

	got := s.record(review.ID)
	s.Equal(models.StatusFailed, got.Status)
	s.Equal(models.ReasonCancelled, got.FailureReason)

	_, err = s.service.CancelRequest(s.admin(), req.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *ServiceSuite) TestResubmitGuards() {
	review := s.newReview(s.now)
	_, err := s.submit(s.author(), review.ID, models.MethodReceiptUpload, receipt)
	s.Require().NoError(err)

	_, err = s.service.Resubmit(s.author(), service.SubmitInput{
		ReviewID: review.ID,
		Method:   models.MethodReceiptUpload,
		Evidence: json.RawMessage(receipt),
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition), "pending records cannot be resubmitted")

	_, err = s.service.Resubmit(s.author(), service.SubmitInput{
		ReviewID: review.ID,
		Method:   models.MethodQRScan,
		Evidence: json.RawMessage(`{"qr_code_id":"qr-1","scanned_at":"2026-05-01T10:00:00Z"}`),
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestExpireDue() {
	validity := 24 * time.Hour
	_, err := s.configs.Update(s.admin(), nil, settings.Update{VerificationValidity: &validity}, s.adminID)
	s.Require().NoError(err)

	review := s.newReview(s.now)
	rec, err := s.submit(s.admin(), review.ID, models.MethodManualAdmin, manual)
	s.Require().NoError(err)
	s.Require().NotNil(rec.ExpiresAt)
	s.True(rec.ExpiresAt.Equal(s.now.Add(validity)))

	n, err := s.service.ExpireDue(s.worker(), 10)
	s.Require().NoError(err)
	s.Zero(n)

	s.now = s.now.Add(25 * time.Hour)
	n, err = s.service.ExpireDue(s.worker(), 10)
	s.Require().NoError(err)
	s.Equal(1, n)

	got := s.record(review.ID)
	s.Equal(models.StatusExpired, got.Status)
	s.Equal(models.ReasonExpired, got.FailureReason)
	s.Zero(got.TrustScore)
	s.Require().NotNil(got.ExpiresAt, "expired records keep the date they lapsed")
	s.True(got.ExpiresAt.Equal(s.now.Add(-time.Hour)))

	badge, err := s.reviews.GetReview(context.Background(), review.ID)
	s.Require().NoError(err)
	s.False(badge.VerifiedPurchase)

	n, err = s.service.ExpireDue(s.worker(), 10)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *ServiceSuite) TestRankScore() {
	s.Run("unverified review uses the penalty", func() {
		review := s.newReview(s.now)
		rank, err := s.service.GetRankScore(s.worker(), review.ID)
		s.Require().NoError(err)
		s.InDelta(1.0, rank.TrustWeight, 1e-9)
		s.InDelta(1.0, rank.Score, 1e-9)
		s.Equal(models.Status(""), rank.Status)
	})

	s.Run("verified review uses its weight", func() {
		review := s.newReview(s.now)
		_, err := s.submit(s.admin(), review.ID, models.MethodManualAdmin, manual)
		s.Require().NoError(err)
		rank, err := s.service.GetRankScore(s.worker(), review.ID)
		s.Require().NoError(err)
		s.InDelta(1.35, rank.TrustWeight, 1e-9)
		s.InDelta(1.35, rank.Score, 1e-9)
	})

	s.Run("old reviews decay to the floor", func() {
		review := s.newReview(s.now.Add(-2 * 365 * 24 * time.Hour))
		rank, err := s.service.GetRankScore(s.worker(), review.ID)
		s.Require().NoError(err)
		s.InDelta(0.3, rank.Decay, 1e-9)
		s.InDelta(0.3, rank.Score, 1e-9)
	})
}

func (s *ServiceSuite) TestGetStatusIsIdempotent() {
	review := s.newReview(s.now)
	_, err := s.submit(s.author(), review.ID, models.MethodReceiptUpload, receipt)
	s.Require().NoError(err)

	first := s.record(review.ID)
	second := s.record(review.ID)
	s.Equal(first, second)
}

func (s *ServiceSuite) TestHistoryHiddenFromOtherUsers() {
	review := s.newReview(s.now)
	rec, err := s.submit(s.author(), review.ID, models.MethodReceiptUpload, receipt)
	s.Require().NoError(err)

	other := s.at(requestcontext.WithUserID(context.Background(), uuid.New()))
	_, err = s.service.History(other, rec.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestBadgeFailureRollsBackDecision() {
	reviewStore := mocks.NewMockReviewStore(s.ctrl)
	svc := service.New(s.store, reviewStore, s.configs, service.WithNotifier(s.notifier))

	review := &reviews.Review{ID: uuid.New(), AuthorID: s.authorID, Rating: 4, CreatedAt: s.now}
	reviewStore.EXPECT().GetReview(gomock.Any(), review.ID).Return(review, nil).AnyTimes()
	reviewStore.EXPECT().SetVerificationBadge(gomock.Any(), review.ID, models.MethodReceiptUpload, gomock.Any()).
		Return(context.DeadlineExceeded)

	rec, err := svc.Submit(s.author(), service.SubmitInput{
		ReviewID: review.ID,
		Method:   models.MethodReceiptUpload,
		Evidence: json.RawMessage(receipt),
	})
	s.Require().NoError(err)

	_, err = svc.Approve(s.admin(), rec.ID, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.NotContains(s.events, string(lifecycle.EventVerified), "notifications wait for commit")

	after, err := s.store.FindRecord(context.Background(), rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, after.Status)
	s.Zero(after.TrustScore)
	s.Nil(after.VerifiedAt)
	history, err := s.store.ListHistory(context.Background(), rec.ID)
	s.Require().NoError(err)
	s.Len(history, 1, "only the submission entry survives")
}

type countingExpirer struct {
	calls chan int
}

func (c *countingExpirer) ExpireDue(_ context.Context, limit int) (int, error) {
	c.calls <- limit
	return 0, nil
}

func TestExpirySweeper(t *testing.T) {
	expirer := &countingExpirer{calls: make(chan int, 1)}
	sweeper := service.NewExpirySweeper(expirer, "@every 1h", 50, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sweeper.Sweep()
	if got := <-expirer.calls; got != 50 {
		t.Fatalf("batch size = %d, want 50", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sweeper.Start(ctx); err == nil {
		t.Fatal("second start should fail")
	}
	cancel()
	sweeper.Sweep()
	select {
	case <-expirer.calls:
		t.Fatal("sweep ran after its context was cancelled")
	default:
	}
	sweeper.Stop()
	sweeper.Stop()
}
