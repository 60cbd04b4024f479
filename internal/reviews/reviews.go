// Package reviews adapts the marketplace review table: it looks reviews up
// and maintains their verification badge columns.
package reviews

import (
	"time"

	"github.com/google/uuid"

	"verity/internal/verification/models"
)

// Review is the subset of a marketplace review verification depends on.
type Review struct {
	ID             uuid.UUID
	AuthorID       uuid.UUID
	OrganizationID *uuid.UUID
	ProductID      *uuid.UUID
	Rating         int
	CreatedAt      time.Time

	// Badge columns, owned by verification.
	VerifiedPurchase   bool
	VerificationMethod models.Method
	TrustWeight        float64
}

func (r *Review) clone() *Review {
	if r == nil {
		return nil
	}
	c := *r
	if r.OrganizationID != nil {
		id := *r.OrganizationID
		c.OrganizationID = &id
	}
	if r.ProductID != nil {
		id := *r.ProductID
		c.ProductID = &id
	}
	return &c
}
