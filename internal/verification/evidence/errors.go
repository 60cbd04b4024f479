package evidence

import (
	"errors"
	"fmt"

	"verity/internal/verification/models"
)

// InvalidEvidenceError reports malformed proof of purchase. It is returned
// synchronously and never queued or retried.
type InvalidEvidenceError struct {
	Method models.Method
	Reason string
}

func (e *InvalidEvidenceError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("invalid evidence: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s evidence: %s", e.Method, e.Reason)
}

func invalid(method models.Method, reason string) error {
	return &InvalidEvidenceError{Method: method, Reason: reason}
}

// IsInvalidEvidence reports whether err is an InvalidEvidenceError.
func IsInvalidEvidence(err error) bool {
	var ie *InvalidEvidenceError
	return errors.As(err, &ie)
}
