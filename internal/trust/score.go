// Package trust computes the trust score of a verification and the rank score
// of a review. Both are pure; configuration is looked up through a provider.
package trust

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"verity/internal/verification/models"
)

// ScoreInput is everything the score depends on besides configuration.
type ScoreInput struct {
	Method         models.Method
	Status         models.Status
	OrganizationID *uuid.UUID
	// CorroboratingMethods is accepted for forward compatibility. A review
	// owns a single record, so it is always empty today.
	CorroboratingMethods []models.Method
	ReviewAge            time.Duration
	ChecksumInvalid      bool
}

// Score is the result of one computation.
type Score struct {
	TrustScore  float64
	TrustWeight float64
	Factors     models.TrustFactors
	// Validity copied from the config used; zero means no expiry.
	Validity time.Duration
}

// Compute scores in against cfg. An unverified status always yields a zero
// score and the neutral weight.
func Compute(cfg *Config, in ScoreInput) Score {
	base := clamp01(cfg.MethodWeight(in.Method))
	factors := models.TrustFactors{
		models.FactorMethodWeight:      base,
		models.FactorVerifiedBoost:     cfg.VerifiedReviewBoost,
		models.FactorCrossVerification: 0,
		models.FactorReviewAgeDays:     roundTo(in.ReviewAge.Hours()/24, 2),
	}
	if in.ChecksumInvalid {
		factors[models.FactorGTINChecksumInvalid] = 0
	}

	if in.Status != models.StatusVerified {
		return Score{
			TrustScore:  0,
			TrustWeight: models.NeutralTrustWeight,
			Factors:     factors,
			Validity:    cfg.VerificationValidity,
		}
	}
	return Score{
		TrustScore:  base,
		TrustWeight: base * cfg.VerifiedReviewBoost,
		Factors:     factors,
		Validity:    cfg.VerificationValidity,
	}
}

// ConfigProvider resolves the effective config of an organization.
type ConfigProvider interface {
	Resolve(ctx context.Context, organizationID *uuid.UUID) (*Config, error)
}

// Engine scores verifications against resolved configuration.
type Engine struct {
	configs ConfigProvider
}

func NewEngine(configs ConfigProvider) *Engine {
	return &Engine{configs: configs}
}

// Score resolves the organization's config (falling back to the default row)
// and computes the score.
func (e *Engine) Score(ctx context.Context, in ScoreInput) (Score, *Config, error) {
	cfg, err := e.configs.Resolve(ctx, in.OrganizationID)
	if err != nil {
		return Score{}, nil, err
	}
	return Compute(cfg, in), cfg, nil
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
