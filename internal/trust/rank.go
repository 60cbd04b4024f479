package trust

import (
	"math"
	"time"

	"verity/internal/verification/models"
)

const (
	// HalfLife is the age at which a review's rank decays by half.
	HalfLife = 90 * 24 * time.Hour
	// DecayFloor keeps old reviews from vanishing from rankings.
	DecayFloor = 0.3
)

// Decay returns max(DecayFloor, 0.5^(age/HalfLife)). Negative ages count as 0.
func Decay(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return math.Max(DecayFloor, math.Pow(0.5, age.Seconds()/HalfLife.Seconds()))
}

// RankScore is rating/5 × trustWeight × decay. Ratings are clamped to 1..5.
func RankScore(rating int, trustWeight float64, createdAt, now time.Time) float64 {
	if rating < 1 {
		rating = 1
	}
	if rating > 5 {
		rating = 5
	}
	base := float64(rating) / 5.0
	return base * trustWeight * Decay(now.Sub(createdAt))
}

// RankingWeight picks the multiplier used for ranking. Verified reviews use
// their stored trust weight; unverified ones get the configured penalty, or
// the neutral weight when no penalty is set.
func RankingWeight(cfg *Config, status models.Status, storedWeight float64) float64 {
	if status == models.StatusVerified {
		return storedWeight
	}
	if cfg != nil && cfg.UnverifiedPenalty > 0 {
		return cfg.UnverifiedPenalty
	}
	return models.NeutralTrustWeight
}
