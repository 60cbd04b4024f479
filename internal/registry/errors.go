package registry

import (
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy of registry calls.
type ErrorCategory string

const (
	// ErrorTimeout indicates the registry took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorRateLimited indicates too many requests
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorOutage indicates the registry is unavailable (5xx, connection refused)
	ErrorOutage ErrorCategory = "registry_outage"

	// ErrorNotFound indicates the marking code is unknown to the registry
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorInvalidFormat indicates the registry rejected the code as malformed
	ErrorInvalidFormat ErrorCategory = "invalid_format"

	// ErrorAuthentication indicates credential or permission issues
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorBadData indicates the registry returned a malformed response
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorInternal indicates an unexpected client-side error
	ErrorInternal ErrorCategory = "internal"
)

// Error wraps registry failures with a normalized category.
type Error struct {
	Category   ErrorCategory
	Message    string
	Underlying error
	Retryable  bool
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("registry [%s]: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("registry [%s]: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError builds a categorized error. Timeouts, rate limits and outages are
// transient; everything else is permanent.
func NewError(category ErrorCategory, message string, underlying error) *Error {
	retryable := category == ErrorTimeout ||
		category == ErrorOutage ||
		category == ErrorRateLimited

	return &Error{
		Category:   category,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// CategoryOf extracts the error category from an error
func CategoryOf(err error) ErrorCategory {
	var re *Error
	if errors.As(err, &re) {
		return re.Category
	}
	return ErrorInternal
}
