// Package domainerrors provides coded errors that services return and
// transports translate into responses. Stores return pkg/platform/sentinel
// errors; services wrap them here with a Code the caller can act on.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"

	// Verification specific codes.
	CodeInvalidEvidence       Code = "invalid_evidence"
	CodeDuplicateVerification Code = "duplicate_verification"
	CodeInvalidTransition     Code = "invalid_transition"
	CodeConfigurationMissing  Code = "configuration_missing"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in the chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Is mirrors errors.Is so callers need a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// ToHTTPStatus maps a code to the status a transport should answer with.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeInvalidEvidence:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeDuplicateVerification, CodeInvalidTransition:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
