package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxAttempts bounds transient retries of a request.
const DefaultMaxAttempts = 3

// Request is one queued external verification attempt for a record.
//
// Invariants:
//   - Attempts <= MaxAttempts
//   - terminal statuses are never re-queued
type Request struct {
	ID            uuid.UUID
	RecordID      uuid.UUID
	Method        Method
	Payload       json.RawMessage
	Priority      int
	Status        RequestStatus
	Attempts      int
	MaxAttempts   int
	LastAttemptAt *time.Time
	NextAttemptAt time.Time
	Result        *RegistryResult
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// RegistryCheckPayload is the request payload for registry_mark checks.
type RegistryCheckPayload struct {
	Code   string `json:"code"`
	GTIN   string `json:"gtin"`
	Serial string `json:"serial"`
}

// NewRegistryRequest queues a registry check for a record.
func NewRegistryRequest(recordID uuid.UUID, ev RegistryMarkEvidence, priority, maxAttempts int, now time.Time) (*Request, error) {
	payload, err := json.Marshal(RegistryCheckPayload{Code: ev.Code, GTIN: ev.GTIN, Serial: ev.Serial})
	if err != nil {
		return nil, err
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Request{
		ID:            uuid.New(),
		RecordID:      recordID,
		Method:        MethodRegistryMark,
		Payload:       payload,
		Priority:      priority,
		Status:        RequestQueued,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// RegistryPayload decodes the payload of a registry_mark request.
func (r *Request) RegistryPayload() (RegistryCheckPayload, error) {
	var p RegistryCheckPayload
	err := json.Unmarshal(r.Payload, &p)
	return p, err
}

// HasAttemptsLeft reports whether a transient failure may be retried.
func (r *Request) HasAttemptsLeft() bool {
	return r.Attempts < r.MaxAttempts
}

// Clone returns a deep copy.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.Payload = append(json.RawMessage(nil), r.Payload...)
	c.LastAttemptAt = cloneTime(r.LastAttemptAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	if r.Result != nil {
		res := *r.Result
		c.Result = &res
	}
	return &c
}

// RegistryAuditEntry is the append-only trace of one registry call.
type RegistryAuditEntry struct {
	ID            uuid.UUID
	RecordID      uuid.UUID
	RequestID     uuid.UUID
	Attempt       int
	RequestBody   json.RawMessage
	ResponseBody  json.RawMessage
	ErrorCategory string
	ErrorMessage  string
	Duration      time.Duration
	CreatedAt     time.Time
}
