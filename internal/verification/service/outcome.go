package service

import (
	"context"
	"errors"

	"verity/internal/queue"
	"verity/internal/verification/models"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/sentinel"
	"verity/pkg/requestcontext"
)

var _ queue.OutcomeHandler = (*Service)(nil)

// HandleOutcome persists one queue attempt. The request row is always
// updated; the record only moves when req is still its authoritative
// request, so results of superseded or cancelled requests are recorded but
// ignored.
func (s *Service) HandleOutcome(ctx context.Context, req *models.Request, out queue.Outcome) error {
	ctx = requestcontext.WithTime(ctx, requestcontext.Now(ctx).UTC())
	return s.inTx(ctx, func(ctx context.Context) ([]notice, error) {
		now := requestcontext.Now(ctx)

		if out.Kind == queue.OutcomeSucceeded && out.Result == nil {
			return nil, dErrors.New(dErrors.CodeInternal, "succeeded outcome without registry result")
		}

		var err error
		switch out.Kind {
		case queue.OutcomeSucceeded:
			err = s.store.CompleteRequest(ctx, req.ID, out.Result, now)
		case queue.OutcomeRetry:
			err = s.store.RequeueRequest(ctx, req.ID, out.NextAttemptAt, out.Message, now)
		case queue.OutcomeFailed:
			err = s.store.FailRequest(ctx, req.ID, out.Result, out.Message, now)
		default:
			return nil, dErrors.New(dErrors.CodeInternal, "unknown queue outcome "+string(out.Kind))
		}
		if errors.Is(err, sentinel.ErrInvalidState) {
			// Already settled elsewhere, e.g. by stale-claim recovery.
			s.logger.WarnContext(ctx, "queue outcome for a settled request dropped",
				"verification_request_id", req.ID,
				"record_id", req.RecordID,
				"outcome", out.Kind,
			)
			return nil, nil
		}
		if err != nil {
			return nil, translate(err, "verification request")
		}
		if out.Kind == queue.OutcomeRetry {
			return nil, nil
		}

		rec, err := s.store.FindRecord(ctx, req.RecordID)
		if err != nil {
			return nil, translate(err, "verification record")
		}
		if !rec.IsAuthoritative(req.ID) {
			s.logger.InfoContext(ctx, "stale registry result ignored",
				"verification_request_id", req.ID,
				"record_id", rec.ID,
				"record_status", rec.Status,
			)
			return nil, nil
		}

		// History is shown to the record owner, so failures carry only the
		// fixed reason; registry details stay on the request and audit log.
		ch := change{to: models.StatusFailed, reason: out.Reason, requestID: &req.ID}
		if out.Kind == queue.OutcomeSucceeded {
			if mark, ok := rec.Evidence.(models.RegistryMarkEvidence); ok {
				result := *out.Result
				mark.RegistryResponse = &result
				rec.Evidence = mark
			}
			if out.Result.IsValid {
				ch = change{to: models.StatusVerified, requestID: &req.ID, note: "registry confirmed"}
			} else {
				ch.reason = models.ReasonForRegistryResult(out.Result)
			}
		}
		n, err := s.transition(ctx, rec, ch)
		if err != nil {
			return nil, err
		}
		return []notice{n}, nil
	})
}
