package reviews

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"verity/internal/verification/models"
	"verity/pkg/platform/sentinel"
	txcontext "verity/pkg/platform/tx"
)

// PostgresStore reads and updates the reviews table. Badge writes join the
// caller's transaction so they commit together with the status change.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetReview(ctx context.Context, id uuid.UUID) (*Review, error) {
	var (
		r              Review
		orgID, product uuid.NullUUID
		method         sql.NullString
	)
	err := txcontext.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, author_id, organization_id, product_id, rating, created_at,
			is_verified_purchase, verification_method, trust_weight
		FROM reviews WHERE id = $1`, id).Scan(
		&r.ID, &r.AuthorID, &orgID, &product, &r.Rating, &r.CreatedAt,
		&r.VerifiedPurchase, &method, &r.TrustWeight,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	if orgID.Valid {
		v := orgID.UUID
		r.OrganizationID = &v
	}
	if product.Valid {
		v := product.UUID
		r.ProductID = &v
	}
	r.VerificationMethod = models.Method(method.String)
	return &r, nil
}

func (s *PostgresStore) SetVerificationBadge(ctx context.Context, reviewID uuid.UUID, method models.Method, trustWeight float64) error {
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE reviews SET is_verified_purchase = TRUE, verification_method = $2, trust_weight = $3
		WHERE id = $1`, reviewID, string(method), trustWeight)
	if err != nil {
		return fmt.Errorf("set verification badge: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) ClearVerificationBadge(ctx context.Context, reviewID uuid.UUID) error {
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE reviews SET is_verified_purchase = FALSE, verification_method = NULL, trust_weight = $2
		WHERE id = $1`, reviewID, models.NeutralTrustWeight)
	if err != nil {
		return fmt.Errorf("clear verification badge: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
