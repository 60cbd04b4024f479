// Package evidence turns raw proof-of-purchase input into the canonical
// per-method evidence variant. It performs no I/O.
package evidence

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"verity/internal/verification/models"
)

// Raw is proof of purchase as submitted: a method tag and its JSON payload.
type Raw struct {
	Method  models.Method   `json:"method"`
	Payload json.RawMessage `json:"evidence"`
}

type rawRegistryMark struct {
	Code string `json:"code"`
}

type rawQRScan struct {
	QRCodeID  string    `json:"qr_code_id"`
	ScannedAt time.Time `json:"scanned_at"`
}

type rawReceipt struct {
	ImageRef     string          `json:"image_ref"`
	PurchaseDate string          `json:"purchase_date"`
	Amount       string          `json:"amount"`
	OCRPayload   json.RawMessage `json:"ocr_payload"`
}

type rawManualAdmin struct {
	Justification string `json:"justification"`
}

type rawLoyalty struct {
	TransactionID string `json:"transaction_id"`
}

// Normalize validates raw evidence and returns its canonical variant, or an
// *InvalidEvidenceError.
func Normalize(raw Raw) (models.Evidence, error) {
	if !raw.Method.IsValid() {
		return nil, invalid(raw.Method, "unsupported verification method")
	}
	if len(bytes.TrimSpace(raw.Payload)) == 0 || bytes.Equal(bytes.TrimSpace(raw.Payload), []byte("null")) {
		return nil, invalid(raw.Method, "evidence payload is required")
	}

	switch raw.Method {
	case models.MethodRegistryMark:
		return normalizeRegistryMark(raw.Payload)
	case models.MethodQRScan:
		return normalizeQRScan(raw.Payload)
	case models.MethodReceiptUpload:
		return normalizeReceipt(raw.Payload)
	case models.MethodManualAdmin:
		return normalizeManualAdmin(raw.Payload)
	default:
		return normalizeLoyalty(raw.Payload)
	}
}

func decode[T any](method models.Method, payload json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, invalid(method, "malformed evidence payload")
	}
	return v, nil
}

func normalizeRegistryMark(payload json.RawMessage) (models.Evidence, error) {
	in, err := decode[rawRegistryMark](models.MethodRegistryMark, payload)
	if err != nil {
		return nil, err
	}
	code, reason := ParseMarkingCode(in.Code)
	if reason != "" {
		return nil, invalid(models.MethodRegistryMark, reason)
	}
	return models.RegistryMarkEvidence{
		Code:          code.Raw,
		GTIN:          code.GTIN,
		Serial:        code.Serial,
		ChecksumValid: code.ChecksumValid,
	}, nil
}

func normalizeQRScan(payload json.RawMessage) (models.Evidence, error) {
	in, err := decode[rawQRScan](models.MethodQRScan, payload)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(in.QRCodeID)
	if id == "" {
		return nil, invalid(models.MethodQRScan, "qr_code_id is required")
	}
	if in.ScannedAt.IsZero() {
		return nil, invalid(models.MethodQRScan, "scanned_at is required")
	}
	return models.QRScanEvidence{QRCodeID: id, ScannedAt: in.ScannedAt.UTC()}, nil
}

func normalizeReceipt(payload json.RawMessage) (models.Evidence, error) {
	in, err := decode[rawReceipt](models.MethodReceiptUpload, payload)
	if err != nil {
		return nil, err
	}
	ref := strings.TrimSpace(in.ImageRef)
	if ref == "" {
		return nil, invalid(models.MethodReceiptUpload, "image_ref is required")
	}
	ev := models.ReceiptEvidence{
		ImageRef:     ref,
		PurchaseDate: strings.TrimSpace(in.PurchaseDate),
		Amount:       strings.TrimSpace(in.Amount),
	}
	if len(in.OCRPayload) > 0 && !bytes.Equal(in.OCRPayload, []byte("null")) {
		ev.OCRPayload = in.OCRPayload
	}
	return ev, nil
}

func normalizeManualAdmin(payload json.RawMessage) (models.Evidence, error) {
	in, err := decode[rawManualAdmin](models.MethodManualAdmin, payload)
	if err != nil {
		return nil, err
	}
	justification := strings.TrimSpace(in.Justification)
	if justification == "" {
		return nil, invalid(models.MethodManualAdmin, "justification is required")
	}
	return models.ManualAdminEvidence{Justification: justification}, nil
}

func normalizeLoyalty(payload json.RawMessage) (models.Evidence, error) {
	in, err := decode[rawLoyalty](models.MethodLoyaltyPurchase, payload)
	if err != nil {
		return nil, err
	}
	txID := strings.TrimSpace(in.TransactionID)
	if txID == "" {
		return nil, invalid(models.MethodLoyaltyPurchase, "transaction_id is required")
	}
	return models.LoyaltyPurchaseEvidence{TransactionID: txID}, nil
}
