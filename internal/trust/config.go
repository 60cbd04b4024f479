package trust

import (
	"time"

	"github.com/google/uuid"

	"verity/internal/verification/models"
)

// FloorMethodWeight is used for a method that a config does not list.
const FloorMethodWeight = 0.50

// Config is the weighting configuration of one organization, or the global
// default when OrganizationID is nil.
type Config struct {
	OrganizationID      *uuid.UUID
	MethodWeights       map[models.Method]float64
	VerifiedReviewBoost float64
	UnverifiedPenalty   float64
	ShowBadges          bool
	ShowTrustScore      bool
	// VerificationValidity bounds how long a verification stays valid.
	// Zero means verifications never expire.
	VerificationValidity time.Duration
	UpdatedAt            time.Time
	UpdatedBy            *uuid.UUID
}

// DefaultConfig returns the seed values of the global default row.
func DefaultConfig() *Config {
	return &Config{
		MethodWeights: map[models.Method]float64{
			models.MethodRegistryMark:    1.00,
			models.MethodQRScan:          0.80,
			models.MethodReceiptUpload:   0.70,
			models.MethodManualAdmin:     0.90,
			models.MethodLoyaltyPurchase: 0.85,
		},
		VerifiedReviewBoost: 1.50,
		UnverifiedPenalty:   1.00,
		ShowBadges:          true,
		ShowTrustScore:      false,
	}
}

// IsDefault reports whether c is the global default row.
func (c *Config) IsDefault() bool {
	return c.OrganizationID == nil
}

// MethodWeight returns the configured weight for m, or FloorMethodWeight.
func (c *Config) MethodWeight(m models.Method) float64 {
	if w, ok := c.MethodWeights[m]; ok {
		return w
	}
	return FloorMethodWeight
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.MethodWeights = make(map[models.Method]float64, len(c.MethodWeights))
	for k, v := range c.MethodWeights {
		out.MethodWeights[k] = v
	}
	if c.OrganizationID != nil {
		id := *c.OrganizationID
		out.OrganizationID = &id
	}
	if c.UpdatedBy != nil {
		id := *c.UpdatedBy
		out.UpdatedBy = &id
	}
	return &out
}
