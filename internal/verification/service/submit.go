package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"verity/internal/reviews"
	"verity/internal/verification/evidence"
	"verity/internal/verification/lifecycle"
	"verity/internal/verification/models"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/sentinel"
	"verity/pkg/requestcontext"
)

// SubmitInput is a proof of purchase for one review.
type SubmitInput struct {
	ReviewID uuid.UUID
	Method   models.Method
	Evidence json.RawMessage
	// Priority orders registry checks; higher runs first.
	Priority int
}

// Submit creates the verification record of a review. Evidence is normalized
// synchronously; registry marks are queued for the registry, manual_admin
// evidence from an admin is verified at once and everything else waits for
// moderator approval.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.Record, error) {
	callerID, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	review, err := s.ownedReview(ctx, in.ReviewID, callerID)
	if err != nil {
		return nil, err
	}
	ev, err := s.normalize(ctx, in)
	if err != nil {
		return nil, err
	}

	var rec *models.Record
	err = s.inTx(ctx, func(ctx context.Context) ([]notice, error) {
		if _, err := s.store.FindRecordByReview(ctx, in.ReviewID); err == nil {
			return nil, duplicate(in.ReviewID)
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, translate(err, "verification record")
		}

		now := requestcontext.Now(ctx).UTC()
		rec = models.NewRecord(review.ID, review.AuthorID, review.OrganizationID, review.ProductID, ev, now)
		req, err := s.newRequest(rec, ev, in.Priority, now)
		if err != nil {
			return nil, err
		}
		if err := s.store.CreateRecord(ctx, rec); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return nil, duplicate(in.ReviewID)
			}
			return nil, translate(err, "verification record")
		}
		if err := s.store.AppendHistory(ctx, &models.HistoryEntry{
			ID:        uuid.New(),
			RecordID:  rec.ID,
			RequestID: rec.ActiveRequestID,
			ToStatus:  models.StatusPending,
			ActorID:   &callerID,
			Reason:    "submitted",
			CreatedAt: now,
		}); err != nil {
			return nil, translate(err, "status history")
		}
		if req != nil {
			if err := s.store.CreateRequest(ctx, req); err != nil {
				return nil, translate(err, "verification request")
			}
		}
		return s.settlePending(ctx, rec, callerID, nil)
	})
	if err != nil {
		s.metrics.IncSubmission(string(in.Method), "rejected")
		return nil, err
	}

	s.metrics.IncSubmission(string(rec.Method), string(rec.Status))
	s.logger.InfoContext(ctx, "verification submitted",
		"record_id", rec.ID,
		"review_id", rec.ReviewID,
		"method", rec.Method,
		"status", rec.Status,
		"request_id", requestcontext.RequestID(ctx),
	)
	return rec.Clone(), nil
}

// Resubmit re-enters a failed, expired or revoked record into the lifecycle
// with fresh evidence. The method is fixed at creation. Older queued requests
// of the record are cancelled so only the new one is authoritative.
func (s *Service) Resubmit(ctx context.Context, in SubmitInput) (*models.Record, error) {
	callerID, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedReview(ctx, in.ReviewID, callerID); err != nil {
		return nil, err
	}
	ev, err := s.normalize(ctx, in)
	if err != nil {
		return nil, err
	}

	var rec *models.Record
	err = s.inTx(ctx, func(ctx context.Context) ([]notice, error) {
		found, err := s.store.FindRecordByReview(ctx, in.ReviewID)
		if err != nil {
			return nil, translate(err, "verification record")
		}
		rec = found
		if rec.Method != in.Method {
			return nil, dErrors.New(dErrors.CodeValidation,
				"verification method is fixed; resubmit with "+string(rec.Method))
		}
		if !rec.Status.CanResubmit() {
			return nil, dErrors.New(dErrors.CodeInvalidTransition,
				"only failed, expired or revoked verifications can be resubmitted")
		}

		now := requestcontext.Now(ctx).UTC()
		if _, err := s.store.CancelQueuedForRecord(ctx, rec.ID, now); err != nil {
			return nil, translate(err, "verification request")
		}
		rec.Evidence = ev
		rec.ActiveRequestID = nil
		req, err := s.newRequest(rec, ev, in.Priority, now)
		if err != nil {
			return nil, err
		}
		if req != nil {
			if err := s.store.CreateRequest(ctx, req); err != nil {
				return nil, translate(err, "verification request")
			}
		}

		n, err := s.transition(ctx, rec, change{
			to:        models.StatusPending,
			actorID:   &callerID,
			requestID: rec.ActiveRequestID,
			note:      "resubmitted",
		})
		if err != nil {
			return nil, err
		}
		return s.settlePending(ctx, rec, callerID, &n)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncSubmission(string(rec.Method), "resubmitted")
	s.logger.InfoContext(ctx, "verification resubmitted",
		"record_id", rec.ID,
		"review_id", rec.ReviewID,
		"status", rec.Status,
		"request_id", requestcontext.RequestID(ctx),
	)
	return rec.Clone(), nil
}

// settlePending finishes a record that just became pending. manual_admin
// evidence from an admin is approved in the same transaction; anything else
// announces the pending state (entered, when the record already had a
// status before).
func (s *Service) settlePending(ctx context.Context, rec *models.Record, callerID uuid.UUID, entered *notice) ([]notice, error) {
	if rec.Method == models.MethodManualAdmin && requestcontext.IsAdmin(ctx) {
		n, err := s.transition(ctx, rec, change{
			to:      models.StatusVerified,
			actorID: &callerID,
			note:    "approved on submission",
		})
		if err != nil {
			return nil, err
		}
		return []notice{n}, nil
	}
	if entered != nil {
		return []notice{*entered}, nil
	}
	return []notice{{
		userID: rec.UserID,
		event:  lifecycle.EventPending,
		payload: map[string]any{
			"record_id": rec.ID.String(),
			"review_id": rec.ReviewID.String(),
			"status":    string(models.StatusPending),
		},
	}}, nil
}

// newRequest queues a registry check for methods that need one and makes it
// the record's authoritative request.
func (s *Service) newRequest(rec *models.Record, ev models.Evidence, priority int, now time.Time) (*models.Request, error) {
	if !rec.Method.RequiresExternalCheck() {
		return nil, nil
	}
	mark, ok := ev.(models.RegistryMarkEvidence)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, "registry evidence has unexpected type")
	}
	req, err := models.NewRegistryRequest(rec.ID, mark, priority, s.maxAttempts, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build registry request")
	}
	rec.ActiveRequestID = &req.ID
	return req, nil
}

func (s *Service) ownedReview(ctx context.Context, reviewID, callerID uuid.UUID) (*reviews.Review, error) {
	review, err := s.reviews.GetReview(ctx, reviewID)
	if err != nil {
		return nil, translate(err, "review")
	}
	if review.AuthorID != callerID && !requestcontext.IsAdmin(ctx) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the review author can verify a purchase")
	}
	return review, nil
}

func (s *Service) normalize(ctx context.Context, in SubmitInput) (models.Evidence, error) {
	ev, err := evidence.Normalize(evidence.Raw{Method: in.Method, Payload: in.Evidence})
	if err != nil {
		s.metrics.IncSubmission(string(in.Method), "invalid")
		var ie *evidence.InvalidEvidenceError
		if errors.As(err, &ie) {
			s.logger.InfoContext(ctx, "invalid evidence rejected",
				"review_id", in.ReviewID,
				"method", in.Method,
				"reason", ie.Reason,
			)
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidEvidence, ie.Error())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to normalize evidence")
	}
	return ev, nil
}

func duplicate(reviewID uuid.UUID) error {
	return dErrors.New(dErrors.CodeDuplicateVerification,
		"review "+reviewID.String()+" already has a verification; resubmit instead")
}
