package evidence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verity/internal/verification/models"
)

func raw(method models.Method, payload string) Raw {
	return Raw{Method: method, Payload: json.RawMessage(payload)}
}

func TestNormalizeRegistryMark(t *testing.T) {
	ev, err := Normalize(raw(models.MethodRegistryMark, `{"code":"010460714435317521SERIAL123"}`))
	require.NoError(t, err)

	mark, ok := ev.(models.RegistryMarkEvidence)
	require.True(t, ok)
	assert.Equal(t, "04607144353175", mark.GTIN)
	assert.Equal(t, "SERIAL123", mark.Serial)
	assert.True(t, mark.ChecksumValid)
	assert.Nil(t, mark.RegistryResponse)
}

func TestNormalizeRegistryMarkWithoutSerial(t *testing.T) {
	_, err := Normalize(raw(models.MethodRegistryMark, `{"code":"0104607144353175"}`))
	require.Error(t, err)
	assert.True(t, IsInvalidEvidence(err))

	var ie *InvalidEvidenceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, models.MethodRegistryMark, ie.Method)
}

func TestNormalizeOtherMethods(t *testing.T) {
	scanned := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	ev, err := Normalize(raw(models.MethodQRScan, `{"qr_code_id":" qr-1 ","scanned_at":"2026-03-01T10:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, models.QRScanEvidence{QRCodeID: "qr-1", ScannedAt: scanned}, ev)

	ev, err = Normalize(raw(models.MethodReceiptUpload, `{"image_ref":"s3://receipts/1.jpg","amount":"12.50","ocr_payload":{"total":"12.50"}}`))
	require.NoError(t, err)
	receipt := ev.(models.ReceiptEvidence)
	assert.Equal(t, "s3://receipts/1.jpg", receipt.ImageRef)
	assert.Equal(t, "12.50", receipt.Amount)
	assert.JSONEq(t, `{"total":"12.50"}`, string(receipt.OCRPayload))

	ev, err = Normalize(raw(models.MethodManualAdmin, `{"justification":"seen invoice"}`))
	require.NoError(t, err)
	assert.Equal(t, models.ManualAdminEvidence{Justification: "seen invoice"}, ev)

	ev, err = Normalize(raw(models.MethodLoyaltyPurchase, `{"transaction_id":"tx-9"}`))
	require.NoError(t, err)
	assert.Equal(t, models.LoyaltyPurchaseEvidence{TransactionID: "tx-9"}, ev)
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name string
		in   Raw
	}{
		{"unknown method", raw("carrier_pigeon", `{}`)},
		{"missing payload", Raw{Method: models.MethodQRScan}},
		{"null payload", raw(models.MethodQRScan, `null`)},
		{"malformed json", raw(models.MethodLoyaltyPurchase, `{"transaction_id":`)},
		{"qr without id", raw(models.MethodQRScan, `{"scanned_at":"2026-03-01T10:00:00Z"}`)},
		{"qr without timestamp", raw(models.MethodQRScan, `{"qr_code_id":"qr-1"}`)},
		{"receipt without image", raw(models.MethodReceiptUpload, `{"amount":"1.00"}`)},
		{"blank justification", raw(models.MethodManualAdmin, `{"justification":"   "}`)},
		{"loyalty without transaction", raw(models.MethodLoyaltyPurchase, `{}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Normalize(tt.in)
			assert.Nil(t, ev)
			assert.True(t, IsInvalidEvidence(err), "got %v", err)
		})
	}
}
