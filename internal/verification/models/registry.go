package models

import "time"

// RegistryResult is the structured answer of the government marking registry.
type RegistryResult struct {
	IsValid      bool      `json:"is_valid"`
	IsSold       bool      `json:"is_sold"`
	Status       string    `json:"status"`
	ProductName  string    `json:"product_name,omitempty"`
	ProducerName string    `json:"producer_name,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

// FailureReason is the fixed set of user-facing explanations for a failed or
// withdrawn verification. Raw registry codes never reach end users.
type FailureReason string

const (
	ReasonNone              FailureReason = ""
	ReasonCodeNotFound      FailureReason = "code_not_found"
	ReasonInvalidCodeFormat FailureReason = "invalid_code_format"
	ReasonNotGenuine        FailureReason = "not_genuine"
	ReasonRegistryExhausted FailureReason = "registry_unavailable"
	ReasonRejected          FailureReason = "rejected"
	ReasonCancelled         FailureReason = "cancelled"
	ReasonRevoked           FailureReason = "revoked"
	ReasonExpired           FailureReason = "expired"
)

var failureMessages = map[FailureReason]string{
	ReasonCodeNotFound:      "The marking code was not found in the product registry.",
	ReasonInvalidCodeFormat: "The marking code could not be read. Please scan it again.",
	ReasonNotGenuine:        "The product could not be confirmed as a genuine, sold item.",
	ReasonRegistryExhausted: "The product registry could not be reached. Please try again later.",
	ReasonRejected:          "The proof of purchase was not accepted by a moderator.",
	ReasonCancelled:         "The verification request was cancelled.",
	ReasonRevoked:           "The verification was withdrawn by a moderator.",
	ReasonExpired:           "The verification has expired.",
}

// Message returns the human readable explanation for r.
func (r FailureReason) Message() string {
	if msg, ok := failureMessages[r]; ok {
		return msg
	}
	if r == ReasonNone {
		return ""
	}
	return "The purchase could not be verified."
}

// ReasonForRegistryResult maps a negative registry answer to a reason.
func ReasonForRegistryResult(res *RegistryResult) FailureReason {
	if res == nil {
		return ReasonNotGenuine
	}
	switch res.ErrorCode {
	case "not_found", "code_not_found":
		return ReasonCodeNotFound
	case "invalid_format", "bad_format":
		return ReasonInvalidCodeFormat
	}
	return ReasonNotGenuine
}
