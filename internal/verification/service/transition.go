package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"verity/internal/trust"
	"verity/internal/verification/lifecycle"
	"verity/internal/verification/models"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/requestcontext"
)

// change describes one requested status change.
type change struct {
	to        models.Status
	reason    models.FailureReason
	actorID   *uuid.UUID
	requestID *uuid.UUID
	note      string
}

// notice is a notification held back until the transaction commits.
type notice struct {
	userID  uuid.UUID
	event   lifecycle.Event
	payload map[string]any
}

// transition applies a status change to rec: guard, score, record update,
// history entry and badge. It must run inside the store's transaction so the
// record and its history are written together.
func (s *Service) transition(ctx context.Context, rec *models.Record, ch change) (notice, error) {
	from := rec.Status
	effect, err := lifecycle.Plan(from, ch.to)
	if err != nil {
		return notice{}, dErrors.Wrap(err, dErrors.CodeInvalidTransition,
			fmt.Sprintf("verification cannot move from %s to %s", from, ch.to))
	}
	now := requestcontext.Now(ctx).UTC()

	switch {
	case effect.ScoreVerified:
		if err := s.applyScore(ctx, rec, now); err != nil {
			return notice{}, err
		}
	case effect.ResetScore:
		rec.TrustScore = 0
		rec.TrustWeight = models.NeutralTrustWeight
		rec.TrustFactors = models.TrustFactors{}
		if ch.to != models.StatusExpired {
			rec.ExpiresAt = nil
		}
	}

	switch ch.to {
	case models.StatusFailed, models.StatusRevoked, models.StatusExpired:
		rec.FailureReason = ch.reason
	}
	if effect.ClearReason {
		rec.FailureReason = models.ReasonNone
		rec.VerifiedAt = nil
	}
	rec.Status = ch.to
	rec.UpdatedAt = now

	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		return notice{}, translate(err, "verification record")
	}

	reason := ch.note
	if reason == "" {
		reason = string(ch.reason)
	}
	if err := s.store.AppendHistory(ctx, &models.HistoryEntry{
		ID:         uuid.New(),
		RecordID:   rec.ID,
		RequestID:  ch.requestID,
		FromStatus: from,
		ToStatus:   ch.to,
		ActorID:    ch.actorID,
		Reason:     reason,
		TrustScore: rec.TrustScore,
		CreatedAt:  now,
	}); err != nil {
		return notice{}, translate(err, "status history")
	}

	if effect.SetBadge {
		if err := s.reviews.SetVerificationBadge(ctx, rec.ReviewID, rec.Method, rec.TrustWeight); err != nil {
			return notice{}, translate(err, "review")
		}
	}
	if effect.ClearBadge {
		if err := s.reviews.ClearVerificationBadge(ctx, rec.ReviewID); err != nil {
			return notice{}, translate(err, "review")
		}
	}

	s.metrics.IncTransition(string(from), string(ch.to))
	return notice{
		userID: rec.UserID,
		event:  effect.Event,
		payload: map[string]any{
			"record_id":      rec.ID.String(),
			"review_id":      rec.ReviewID.String(),
			"status":         string(rec.Status),
			"reason":         string(rec.FailureReason),
			"reason_message": rec.FailureReason.Message(),
		},
	}, nil
}

// applyScore recomputes the trust score of a record about to become verified.
func (s *Service) applyScore(ctx context.Context, rec *models.Record, now time.Time) error {
	review, err := s.reviews.GetReview(ctx, rec.ReviewID)
	if err != nil {
		return translate(err, "review")
	}

	checksumInvalid := false
	if ev, ok := rec.Evidence.(models.RegistryMarkEvidence); ok {
		checksumInvalid = !ev.ChecksumValid
	}
	score, _, err := s.engine.Score(ctx, trust.ScoreInput{
		Method:          rec.Method,
		Status:          models.StatusVerified,
		OrganizationID:  rec.OrganizationID,
		ReviewAge:       now.Sub(review.CreatedAt),
		ChecksumInvalid: checksumInvalid,
	})
	if err != nil {
		return err
	}

	rec.TrustScore = score.TrustScore
	rec.TrustWeight = score.TrustWeight
	rec.TrustFactors = score.Factors
	rec.FailureReason = models.ReasonNone
	verifiedAt := now
	rec.VerifiedAt = &verifiedAt
	rec.ExpiresAt = nil
	if score.Validity > 0 {
		expiresAt := now.Add(score.Validity)
		rec.ExpiresAt = &expiresAt
	}
	return nil
}

// inTx runs fn in a transaction and publishes the notices it produced once
// the transaction has committed.
func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) ([]notice, error)) error {
	var notices []notice
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		notices, err = fn(ctx)
		return err
	})
	if err != nil {
		var de *dErrors.Error
		if !errors.As(err, &de) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "verification transaction failed")
		}
		return err
	}
	for _, n := range notices {
		s.notifier.Notify(ctx, n.userID, string(n.event), n.payload)
	}
	return nil
}
