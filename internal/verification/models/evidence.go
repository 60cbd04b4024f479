package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Evidence is the method-specific proof attached to a record. Each method has
// its own variant with its own required fields.
type Evidence interface {
	Method() Method
	isEvidence()
}

// RegistryMarkEvidence is a government marking code split into its GTIN and
// serial. RegistryResponse is filled in once the registry has answered.
type RegistryMarkEvidence struct {
	Code             string          `json:"code"`
	GTIN             string          `json:"gtin"`
	Serial           string          `json:"serial"`
	ChecksumValid    bool            `json:"checksum_valid"`
	RegistryResponse *RegistryResult `json:"registry_response,omitempty"`
}

type QRScanEvidence struct {
	QRCodeID  string    `json:"qr_code_id"`
	ScannedAt time.Time `json:"scanned_at"`
}

// ReceiptEvidence carries an uploaded receipt. Date and amount are free text
// populated from OCR when available.
type ReceiptEvidence struct {
	ImageRef     string          `json:"image_ref"`
	PurchaseDate string          `json:"purchase_date,omitempty"`
	Amount       string          `json:"amount,omitempty"`
	OCRPayload   json.RawMessage `json:"ocr_payload,omitempty"`
}

type ManualAdminEvidence struct {
	Justification string `json:"justification"`
}

type LoyaltyPurchaseEvidence struct {
	TransactionID string `json:"transaction_id"`
}

func (RegistryMarkEvidence) Method() Method    { return MethodRegistryMark }
func (QRScanEvidence) Method() Method          { return MethodQRScan }
func (ReceiptEvidence) Method() Method         { return MethodReceiptUpload }
func (ManualAdminEvidence) Method() Method     { return MethodManualAdmin }
func (LoyaltyPurchaseEvidence) Method() Method { return MethodLoyaltyPurchase }

func (RegistryMarkEvidence) isEvidence()    {}
func (QRScanEvidence) isEvidence()          {}
func (ReceiptEvidence) isEvidence()         {}
func (ManualAdminEvidence) isEvidence()     {}
func (LoyaltyPurchaseEvidence) isEvidence() {}

// Redacted returns e without the raw registry answer. Registry codes stay on
// the request and the registry audit log.
func Redacted(e Evidence) Evidence {
	if mark, ok := e.(RegistryMarkEvidence); ok {
		mark.RegistryResponse = nil
		return mark
	}
	return e
}

// MarshalEvidence encodes the variant payload. The method travels separately.
func MarshalEvidence(e Evidence) ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	return json.Marshal(e)
}

// UnmarshalEvidence decodes a stored payload into the variant for method.
func UnmarshalEvidence(method Method, data []byte) (Evidence, error) {
	switch method {
	case MethodRegistryMark:
		return decodeVariant[RegistryMarkEvidence](data)
	case MethodQRScan:
		return decodeVariant[QRScanEvidence](data)
	case MethodReceiptUpload:
		return decodeVariant[ReceiptEvidence](data)
	case MethodManualAdmin:
		return decodeVariant[ManualAdminEvidence](data)
	case MethodLoyaltyPurchase:
		return decodeVariant[LoyaltyPurchaseEvidence](data)
	}
	return nil, fmt.Errorf("unknown verification method %q", method)
}

func decodeVariant[T Evidence](data []byte) (Evidence, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s evidence: %w", v.Method(), err)
	}
	return v, nil
}
