package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"verity/internal/verification/models"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/requestcontext"
)

// Revoke withdraws a verified record. The score returns to the unverified
// baseline and the review badge is cleared.
func (s *Service) Revoke(ctx context.Context, recordID uuid.UUID, reason string) (*models.Record, error) {
	adminID, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a revocation reason is required")
	}
	return s.decide(ctx, recordID, change{
		to:      models.StatusRevoked,
		reason:  models.ReasonRevoked,
		actorID: &adminID,
		note:    reason,
	})
}

// Approve confirms a pending record after moderator review.
func (s *Service) Approve(ctx context.Context, recordID uuid.UUID, note string) (*models.Record, error) {
	adminID, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if note = strings.TrimSpace(note); note == "" {
		note = "approved"
	}
	return s.decide(ctx, recordID, change{
		to:      models.StatusVerified,
		actorID: &adminID,
		note:    note,
	})
}

// Reject fails a pending record after moderator review.
func (s *Service) Reject(ctx context.Context, recordID uuid.UUID, reason string) (*models.Record, error) {
	adminID, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a rejection reason is required")
	}
	return s.decide(ctx, recordID, change{
		to:      models.StatusFailed,
		reason:  models.ReasonRejected,
		actorID: &adminID,
		note:    reason,
	})
}

// decide applies a moderator decision. Leaving pending cancels any queued
// registry request, whose result could no longer drive the record anyway.
func (s *Service) decide(ctx context.Context, recordID uuid.UUID, ch change) (*models.Record, error) {
	var rec *models.Record
	err := s.inTx(ctx, func(ctx context.Context) ([]notice, error) {
		found, err := s.store.FindRecord(ctx, recordID)
		if err != nil {
			return nil, translate(err, "verification record")
		}
		rec = found
		if rec.Status == models.StatusPending {
			if _, err := s.store.CancelQueuedForRecord(ctx, rec.ID, requestcontext.Now(ctx).UTC()); err != nil {
				return nil, translate(err, "verification request")
			}
		}
		n, err := s.transition(ctx, rec, ch)
		if err != nil {
			return nil, err
		}
		return []notice{n}, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "verification decided by admin",
		"record_id", rec.ID,
		"status", rec.Status,
		"actor_id", ch.actorID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return rec.Clone(), nil
}

// CancelRequest cancels a queued registry request. When it was the record's
// authoritative request the record fails with reason cancelled, since nothing
// else would ever settle it.
func (s *Service) CancelRequest(ctx context.Context, requestID uuid.UUID) (*models.Request, error) {
	adminID, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	var req *models.Request
	err = s.inTx(ctx, func(ctx context.Context) ([]notice, error) {
		cancelled, err := s.store.CancelRequest(ctx, requestID, requestcontext.Now(ctx).UTC())
		if err != nil {
			return nil, translate(err, "verification request")
		}
		req = cancelled

		rec, err := s.store.FindRecord(ctx, req.RecordID)
		if err != nil {
			return nil, translate(err, "verification record")
		}
		if !rec.IsAuthoritative(req.ID) {
			return nil, nil
		}
		n, err := s.transition(ctx, rec, change{
			to:        models.StatusFailed,
			reason:    models.ReasonCancelled,
			actorID:   &adminID,
			requestID: &req.ID,
		})
		if err != nil {
			return nil, err
		}
		return []notice{n}, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "verification request cancelled",
		"verification_request_id", req.ID,
		"record_id", req.RecordID,
		"actor_id", adminID,
	)
	return req, nil
}

// RegistryAudit lists the raw registry calls made for a record.
func (s *Service) RegistryAudit(ctx context.Context, recordID uuid.UUID) ([]*models.RegistryAuditEntry, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if _, err := s.store.FindRecord(ctx, recordID); err != nil {
		return nil, translate(err, "verification record")
	}
	entries, err := s.store.ListAudit(ctx, recordID)
	if err != nil {
		return nil, translate(err, "registry audit")
	}
	return entries, nil
}
