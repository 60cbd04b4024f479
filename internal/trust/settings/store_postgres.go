package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"verity/internal/trust"
	"verity/internal/verification/models"
	"verity/pkg/platform/sentinel"
	txcontext "verity/pkg/platform/tx"
)

// PostgresStore persists trust configs in the trust_configs table. A partial
// unique index guarantees a single row with a NULL organization_id.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const configColumns = `organization_id, method_weights, verified_review_boost, unverified_penalty,
	show_badges, show_trust_score, verification_validity_seconds, updated_at, updated_by`

func (s *PostgresStore) FindDefault(ctx context.Context) (*trust.Config, error) {
	row := txcontext.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+configColumns+` FROM trust_configs WHERE organization_id IS NULL`)
	return scanConfig(row)
}

func (s *PostgresStore) FindByOrganization(ctx context.Context, orgID uuid.UUID) (*trust.Config, error) {
	row := txcontext.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+configColumns+` FROM trust_configs WHERE organization_id = $1`, orgID)
	return scanConfig(row)
}

func (s *PostgresStore) Upsert(ctx context.Context, cfg *trust.Config) error {
	weights, err := json.Marshal(cfg.MethodWeights)
	if err != nil {
		return fmt.Errorf("encode method weights: %w", err)
	}
	args := []any{
		weights, cfg.VerifiedReviewBoost, cfg.UnverifiedPenalty, cfg.ShowBadges,
		cfg.ShowTrustScore, int64(cfg.VerificationValidity / time.Second), cfg.UpdatedAt,
		nullUUID(cfg.UpdatedBy),
	}

	var query string
	if cfg.IsDefault() {
		query = `
			UPDATE trust_configs SET
				method_weights = $1, verified_review_boost = $2, unverified_penalty = $3,
				show_badges = $4, show_trust_score = $5, verification_validity_seconds = $6,
				updated_at = $7, updated_by = $8
			WHERE organization_id IS NULL`
	} else {
		query = `
			INSERT INTO trust_configs (method_weights, verified_review_boost, unverified_penalty,
				show_badges, show_trust_score, verification_validity_seconds, updated_at, updated_by,
				organization_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (organization_id) WHERE organization_id IS NOT NULL DO UPDATE SET
				method_weights = EXCLUDED.method_weights,
				verified_review_boost = EXCLUDED.verified_review_boost,
				unverified_penalty = EXCLUDED.unverified_penalty,
				show_badges = EXCLUDED.show_badges,
				show_trust_score = EXCLUDED.show_trust_score,
				verification_validity_seconds = EXCLUDED.verification_validity_seconds,
				updated_at = EXCLUDED.updated_at,
				updated_by = EXCLUDED.updated_by`
		args = append(args, *cfg.OrganizationID)
	}

	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("upsert trust config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert trust config: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// InsertDefaultIfMissing seeds the default row. Concurrent seeders race on
// the partial unique index and the loser is ignored.
func (s *PostgresStore) InsertDefaultIfMissing(ctx context.Context, cfg *trust.Config) error {
	weights, err := json.Marshal(cfg.MethodWeights)
	if err != nil {
		return fmt.Errorf("encode method weights: %w", err)
	}
	_, err = txcontext.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO trust_configs (organization_id, method_weights, verified_review_boost,
			unverified_penalty, show_badges, show_trust_score, verification_validity_seconds, updated_at)
		VALUES (NULL, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ((organization_id IS NULL)) WHERE organization_id IS NULL DO NOTHING`,
		weights, cfg.VerifiedReviewBoost, cfg.UnverifiedPenalty, cfg.ShowBadges,
		cfg.ShowTrustScore, int64(cfg.VerificationValidity/time.Second), cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("seed default trust config: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConfig(row scanner) (*trust.Config, error) {
	var (
		cfg             trust.Config
		orgID, updater  uuid.NullUUID
		weights         []byte
		validitySeconds int64
	)
	err := row.Scan(&orgID, &weights, &cfg.VerifiedReviewBoost, &cfg.UnverifiedPenalty,
		&cfg.ShowBadges, &cfg.ShowTrustScore, &validitySeconds, &cfg.UpdatedAt, &updater)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan trust config: %w", err)
	}
	cfg.MethodWeights = map[models.Method]float64{}
	if err := json.Unmarshal(weights, &cfg.MethodWeights); err != nil {
		return nil, fmt.Errorf("decode method weights: %w", err)
	}
	if orgID.Valid {
		id := orgID.UUID
		cfg.OrganizationID = &id
	}
	if updater.Valid {
		id := updater.UUID
		cfg.UpdatedBy = &id
	}
	cfg.VerificationValidity = time.Duration(validitySeconds) * time.Second
	return &cfg, nil
}

func nullUUID(v *uuid.UUID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *v, Valid: true}
}
