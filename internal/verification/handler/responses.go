package handler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"verity/internal/trust"
	"verity/internal/trust/settings"
	"verity/internal/verification/models"
	"verity/internal/verification/service"
)

type submitRequest struct {
	Method   models.Method   `json:"method"`
	Evidence json.RawMessage `json:"evidence"`
	Priority int             `json:"priority,omitempty"`
}

type decisionRequest struct {
	Reason string `json:"reason"`
}

type trustConfigRequest struct {
	MethodWeights            map[models.Method]float64 `json:"method_weights,omitempty"`
	VerifiedReviewBoost      *float64                  `json:"verified_review_boost,omitempty"`
	UnverifiedPenalty        *float64                  `json:"unverified_penalty,omitempty"`
	ShowBadges               *bool                     `json:"show_badges,omitempty"`
	ShowTrustScore           *bool                     `json:"show_trust_score,omitempty"`
	VerificationValidityDays *int                      `json:"verification_validity_days,omitempty"`
}

func (r *trustConfigRequest) toUpdate() settings.Update {
	upd := settings.Update{
		MethodWeights:       r.MethodWeights,
		VerifiedReviewBoost: r.VerifiedReviewBoost,
		UnverifiedPenalty:   r.UnverifiedPenalty,
		ShowBadges:          r.ShowBadges,
		ShowTrustScore:      r.ShowTrustScore,
	}
	if r.VerificationValidityDays != nil {
		d := time.Duration(*r.VerificationValidityDays) * 24 * time.Hour
		upd.VerificationValidity = &d
	}
	return upd
}

type recordResponse struct {
	ID              uuid.UUID           `json:"id"`
	ReviewID        uuid.UUID           `json:"review_id"`
	UserID          uuid.UUID           `json:"user_id"`
	Method          models.Method       `json:"method"`
	Status          models.Status       `json:"status"`
	Evidence        json.RawMessage     `json:"evidence,omitempty"`
	TrustScore      float64             `json:"trust_score"`
	TrustWeight     float64             `json:"trust_weight"`
	TrustFactors    models.TrustFactors `json:"trust_factors,omitempty"`
	FailureReason   string              `json:"failure_reason,omitempty"`
	FailureMessage  string              `json:"failure_message,omitempty"`
	ActiveRequestID *uuid.UUID          `json:"active_request_id,omitempty"`
	VerifiedAt      *time.Time          `json:"verified_at,omitempty"`
	ExpiresAt       *time.Time          `json:"expires_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// toRecordResponse renders rec for end users. Evidence is included only when
// withEvidence is set, and never carries the raw registry answer.
func toRecordResponse(rec *models.Record, withEvidence bool) recordResponse {
	resp := recordResponse{
		ID:              rec.ID,
		ReviewID:        rec.ReviewID,
		UserID:          rec.UserID,
		Method:          rec.Method,
		Status:          rec.Status,
		TrustScore:      rec.TrustScore,
		TrustWeight:     rec.TrustWeight,
		TrustFactors:    rec.TrustFactors,
		FailureReason:   string(rec.FailureReason),
		FailureMessage:  rec.FailureReason.Message(),
		ActiveRequestID: rec.ActiveRequestID,
		VerifiedAt:      rec.VerifiedAt,
		ExpiresAt:       rec.ExpiresAt,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
	if withEvidence && rec.Evidence != nil {
		if raw, err := models.MarshalEvidence(models.Redacted(rec.Evidence)); err == nil {
			resp.Evidence = raw
		}
	}
	return resp
}

type historyResponse struct {
	FromStatus models.Status `json:"from_status,omitempty"`
	ToStatus   models.Status `json:"to_status"`
	Reason     string        `json:"reason,omitempty"`
	ActorID    *uuid.UUID    `json:"actor_id,omitempty"`
	RequestID  *uuid.UUID    `json:"verification_request_id,omitempty"`
	TrustScore float64       `json:"trust_score"`
	CreatedAt  time.Time     `json:"created_at"`
}

func toHistoryResponse(entries []*models.HistoryEntry) []historyResponse {
	out := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyResponse{
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			Reason:     e.Reason,
			ActorID:    e.ActorID,
			RequestID:  e.RequestID,
			TrustScore: e.TrustScore,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}

type rankResponse struct {
	ReviewID    uuid.UUID     `json:"review_id"`
	Score       float64       `json:"score"`
	Rating      int           `json:"rating"`
	TrustWeight float64       `json:"trust_weight"`
	Decay       float64       `json:"decay"`
	Status      models.Status `json:"verification_status,omitempty"`
}

func toRankResponse(r *service.Rank) rankResponse {
	return rankResponse{
		ReviewID:    r.ReviewID,
		Score:       r.Score,
		Rating:      r.Rating,
		TrustWeight: r.TrustWeight,
		Decay:       r.Decay,
		Status:      r.Status,
	}
}

type requestResponse struct {
	ID          uuid.UUID            `json:"id"`
	RecordID    uuid.UUID            `json:"record_id"`
	Status      models.RequestStatus `json:"status"`
	Attempts    int                  `json:"attempts"`
	MaxAttempts int                  `json:"max_attempts"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

type auditResponse struct {
	RequestID     uuid.UUID       `json:"verification_request_id"`
	Attempt       int             `json:"attempt"`
	Request       json.RawMessage `json:"request,omitempty"`
	Response      json.RawMessage `json:"response,omitempty"`
	ErrorCategory string          `json:"error_category,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	DurationMS    int64           `json:"duration_ms"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toAuditResponse(entries []*models.RegistryAuditEntry) []auditResponse {
	out := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditResponse{
			RequestID:     e.RequestID,
			Attempt:       e.Attempt,
			Request:       e.RequestBody,
			Response:      e.ResponseBody,
			ErrorCategory: e.ErrorCategory,
			ErrorMessage:  e.ErrorMessage,
			DurationMS:    e.Duration.Milliseconds(),
			CreatedAt:     e.CreatedAt,
		})
	}
	return out
}

type trustConfigResponse struct {
	OrganizationID           *uuid.UUID                `json:"organization_id"`
	MethodWeights            map[models.Method]float64 `json:"method_weights"`
	VerifiedReviewBoost      float64                   `json:"verified_review_boost"`
	UnverifiedPenalty        float64                   `json:"unverified_penalty"`
	ShowBadges               bool                      `json:"show_badges"`
	ShowTrustScore           bool                      `json:"show_trust_score"`
	VerificationValidityDays int                       `json:"verification_validity_days"`
	UpdatedAt                time.Time                 `json:"updated_at"`
}

func toTrustConfigResponse(cfg *trust.Config) trustConfigResponse {
	return trustConfigResponse{
		OrganizationID:           cfg.OrganizationID,
		MethodWeights:            cfg.MethodWeights,
		VerifiedReviewBoost:      cfg.VerifiedReviewBoost,
		UnverifiedPenalty:        cfg.UnverifiedPenalty,
		ShowBadges:               cfg.ShowBadges,
		ShowTrustScore:           cfg.ShowTrustScore,
		VerificationValidityDays: int(cfg.VerificationValidity / (24 * time.Hour)),
		UpdatedAt:                cfg.UpdatedAt,
	}
}
