// Package lifecycle holds the verification record state machine. It decides
// whether a status change is allowed and which side effects it carries; the
// service applies those effects inside one transaction.
package lifecycle

import (
	"errors"
	"fmt"

	"verity/internal/verification/models"
)

// ErrInvalidTransition is returned for status changes outside the table.
var ErrInvalidTransition = errors.New("invalid verification status transition")

// Event names published to the notification dispatcher.
type Event string

const (
	EventPending  Event = "verification.pending"
	EventVerified Event = "verification.verified"
	EventFailed   Event = "verification.failed"
	EventRevoked  Event = "verification.revoked"
	EventExpired  Event = "verification.expired"
)

var transitions = map[models.Status][]models.Status{
	models.StatusPending:  {models.StatusVerified, models.StatusFailed},
	models.StatusVerified: {models.StatusRevoked, models.StatusExpired},
	models.StatusFailed:   {models.StatusPending},
	models.StatusExpired:  {models.StatusPending},
	models.StatusRevoked:  {models.StatusPending},
}

// Allowed lists the statuses reachable from s.
func Allowed(s models.Status) []models.Status {
	next := transitions[s]
	out := make([]models.Status, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is in the table.
func CanTransition(from, to models.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Effect is the side-effect plan of one transition.
type Effect struct {
	// ScoreVerified recomputes the trust score for a verified record.
	ScoreVerified bool
	// ResetScore returns the score to the unverified baseline.
	ResetScore bool
	SetBadge   bool
	ClearBadge bool
	// ClearReason drops a previous failure reason on re-entry to pending.
	ClearReason bool
	Event       Event
}

// Plan validates from -> to and returns the effects to apply.
func Plan(from, to models.Status) (Effect, error) {
	if !CanTransition(from, to) {
		return Effect{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	switch to {
	case models.StatusVerified:
		return Effect{ScoreVerified: true, SetBadge: true, Event: EventVerified}, nil
	case models.StatusFailed:
		return Effect{ResetScore: true, Event: EventFailed}, nil
	case models.StatusRevoked:
		return Effect{ResetScore: true, ClearBadge: true, Event: EventRevoked}, nil
	case models.StatusExpired:
		return Effect{ResetScore: true, ClearBadge: true, Event: EventExpired}, nil
	default:
		return Effect{ResetScore: true, ClearReason: true, Event: EventPending}, nil
	}
}
