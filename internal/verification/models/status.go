package models

import "fmt"

// Method is the proof-of-purchase channel. It is fixed when a record is created.
type Method string

const (
	MethodRegistryMark    Method = "registry_mark"
	MethodQRScan          Method = "qr_scan"
	MethodReceiptUpload   Method = "receipt_upload"
	MethodManualAdmin     Method = "manual_admin"
	MethodLoyaltyPurchase Method = "loyalty_purchase"
)

// AllMethods lists every supported method in display order.
var AllMethods = []Method{
	MethodRegistryMark,
	MethodQRScan,
	MethodReceiptUpload,
	MethodManualAdmin,
	MethodLoyaltyPurchase,
}

func (m Method) IsValid() bool {
	switch m {
	case MethodRegistryMark, MethodQRScan, MethodReceiptUpload, MethodManualAdmin, MethodLoyaltyPurchase:
		return true
	}
	return false
}

// RequiresExternalCheck reports whether evidence of this method is confirmed
// asynchronously through the registry retry queue.
func (m Method) RequiresExternalCheck() bool {
	return m == MethodRegistryMark
}

func (m Method) String() string { return string(m) }

// ParseMethod validates a raw method name.
func ParseMethod(v string) (Method, error) {
	m := Method(v)
	if !m.IsValid() {
		return "", fmt.Errorf("unknown verification method %q", v)
	}
	return m, nil
}

// Status is the lifecycle state of a VerificationRecord.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
	StatusExpired  Status = "expired"
	StatusRevoked  Status = "revoked"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusFailed, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// CanResubmit reports whether a fresh request may re-enter the lifecycle.
func (s Status) CanResubmit() bool {
	return s == StatusFailed || s == StatusExpired || s == StatusRevoked
}

func (s Status) String() string { return string(s) }

// RequestStatus is the state of a queued external verification attempt.
type RequestStatus string

const (
	RequestQueued     RequestStatus = "queued"
	RequestProcessing RequestStatus = "processing"
	RequestCompleted  RequestStatus = "completed"
	RequestFailed     RequestStatus = "failed"
	RequestCancelled  RequestStatus = "cancelled"
)

// IsTerminal reports whether the request can never be picked up again.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestCompleted || s == RequestFailed || s == RequestCancelled
}

func (s RequestStatus) String() string { return string(s) }
