package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"verity/internal/trust"
	"verity/internal/verification/models"
	"verity/pkg/platform/sentinel"
	"verity/pkg/requestcontext"
)

// GetStatus returns the verification record of a review.
func (s *Service) GetStatus(ctx context.Context, reviewID uuid.UUID) (*models.Record, error) {
	rec, err := s.store.FindRecordByReview(ctx, reviewID)
	if err != nil {
		return nil, translate(err, "verification record")
	}
	return rec, nil
}

// History lists every status change of a record, oldest first. Only the
// record owner and admins may read it.
func (s *Service) History(ctx context.Context, recordID uuid.UUID) ([]*models.HistoryEntry, error) {
	callerID, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.FindRecord(ctx, recordID)
	if err != nil {
		return nil, translate(err, "verification record")
	}
	if rec.UserID != callerID && !requestcontext.IsAdmin(ctx) {
		// Hide other users' records.
		return nil, translate(sentinel.ErrNotFound, "verification record")
	}
	entries, err := s.store.ListHistory(ctx, recordID)
	if err != nil {
		return nil, translate(err, "status history")
	}
	return entries, nil
}

// Rank is the ranking key of a review and what went into it.
type Rank struct {
	ReviewID    uuid.UUID
	Score       float64
	Rating      int
	TrustWeight float64
	Decay       float64
	Status      models.Status
}

// GetRankScore computes the rank score of a review at read time, so it always
// reflects the current trust weight.
func (s *Service) GetRankScore(ctx context.Context, reviewID uuid.UUID) (*Rank, error) {
	review, err := s.reviews.GetReview(ctx, reviewID)
	if err != nil {
		return nil, translate(err, "review")
	}
	cfg, err := s.configs.Resolve(ctx, review.OrganizationID)
	if err != nil {
		return nil, err
	}

	var status models.Status
	stored := models.NeutralTrustWeight
	rec, err := s.store.FindRecordByReview(ctx, reviewID)
	switch {
	case err == nil:
		status = rec.Status
		stored = rec.TrustWeight
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, translate(err, "verification record")
	}

	now := requestcontext.Now(ctx)
	weight := trust.RankingWeight(cfg, status, stored)
	return &Rank{
		ReviewID:    reviewID,
		Score:       trust.RankScore(review.Rating, weight, review.CreatedAt, now),
		Rating:      review.Rating,
		TrustWeight: weight,
		Decay:       trust.Decay(now.Sub(review.CreatedAt)),
		Status:      status,
	}, nil
}

// ExpireDue moves verified records whose expires_at has passed to expired.
// Each record is expired in its own transaction; one failure does not stop
// the batch.
func (s *Service) ExpireDue(ctx context.Context, limit int) (int, error) {
	now := requestcontext.Now(ctx).UTC()
	ctx = requestcontext.WithTime(ctx, now)

	due, err := s.store.ListExpiring(ctx, now, limit)
	if err != nil {
		return 0, translate(err, "verification record")
	}

	var errs []error
	expired := 0
	for _, candidate := range due {
		moved := false
		err := s.inTx(ctx, func(ctx context.Context) ([]notice, error) {
			rec, err := s.store.FindRecord(ctx, candidate.ID)
			if err != nil {
				return nil, translate(err, "verification record")
			}
			// Re-check under the transaction; an admin may have acted meanwhile.
			if rec.Status != models.StatusVerified || rec.ExpiresAt == nil || rec.ExpiresAt.After(now) {
				return nil, nil
			}
			n, err := s.transition(ctx, rec, change{to: models.StatusExpired, reason: models.ReasonExpired})
			if err != nil {
				return nil, err
			}
			moved = true
			return []notice{n}, nil
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to expire verification",
				"record_id", candidate.ID,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		if moved {
			expired++
		}
	}

	s.metrics.AddExpired(expired)
	if expired > 0 {
		s.logger.InfoContext(ctx, "expired verifications", "count", expired, "at", now.Format(time.RFC3339))
	}
	return expired, errors.Join(errs...)
}
