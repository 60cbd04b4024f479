package models

import (
	"time"

	"github.com/google/uuid"
)

// Trust factor names recorded in Record.TrustFactors.
const (
	FactorMethodWeight        = "method_weight"
	FactorVerifiedBoost       = "verified_boost"
	FactorCrossVerification   = "cross_verification"
	FactorReviewAgeDays       = "review_age_days"
	FactorGTINChecksumInvalid = "gtin_checksum_invalid"
)

// TrustFactors breaks a trust score down into named contributions.
type TrustFactors map[string]float64

// Record is the single verification record owned by a review.
//
// Invariants:
//   - exactly one record per ReviewID
//   - Method never changes after creation
//   - TrustScore is 0 unless Status is verified
type Record struct {
	ID             uuid.UUID
	ReviewID       uuid.UUID
	UserID         uuid.UUID
	OrganizationID *uuid.UUID
	ProductID      *uuid.UUID
	Method         Method
	Status         Status
	Evidence       Evidence
	TrustScore     float64
	TrustWeight    float64
	TrustFactors   TrustFactors
	FailureReason  FailureReason
	// ActiveRequestID is the only request whose outcome may drive this record.
	ActiveRequestID *uuid.UUID
	VerifiedAt      *time.Time
	ExpiresAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewRecord builds a pending record for a review.
func NewRecord(reviewID, userID uuid.UUID, orgID, productID *uuid.UUID, evidence Evidence, now time.Time) *Record {
	return &Record{
		ID:             uuid.New(),
		ReviewID:       reviewID,
		UserID:         userID,
		OrganizationID: orgID,
		ProductID:      productID,
		Method:         evidence.Method(),
		Status:         StatusPending,
		Evidence:       evidence,
		TrustWeight:    NeutralTrustWeight,
		TrustFactors:   TrustFactors{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NeutralTrustWeight is the ranking multiplier of an unverified review.
const NeutralTrustWeight = 1.0

// IsAuthoritative reports whether requestID may drive the record's status.
func (r *Record) IsAuthoritative(requestID uuid.UUID) bool {
	return r.Status == StatusPending && r.ActiveRequestID != nil && *r.ActiveRequestID == requestID
}

// Clone returns a deep copy so in-memory stores never share mutable state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.OrganizationID = cloneUUID(r.OrganizationID)
	c.ProductID = cloneUUID(r.ProductID)
	c.ActiveRequestID = cloneUUID(r.ActiveRequestID)
	c.VerifiedAt = cloneTime(r.VerifiedAt)
	c.ExpiresAt = cloneTime(r.ExpiresAt)
	if r.TrustFactors != nil {
		c.TrustFactors = make(TrustFactors, len(r.TrustFactors))
		for k, v := range r.TrustFactors {
			c.TrustFactors[k] = v
		}
	}
	return &c
}

func cloneUUID(v *uuid.UUID) *uuid.UUID {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// HistoryEntry mirrors one status change of a record. Entries are append-only.
type HistoryEntry struct {
	ID         uuid.UUID
	RecordID   uuid.UUID
	RequestID  *uuid.UUID
	FromStatus Status
	ToStatus   Status
	ActorID    *uuid.UUID
	Reason     string
	TrustScore float64
	CreatedAt  time.Time
}
