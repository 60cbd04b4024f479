// Package settings owns TrustConfig rows: the per-organization weighting
// configuration and the single global default. Reads are cached; writes are
// restricted to organization admins by the transport layer.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"verity/internal/platform/metrics"
	"verity/internal/trust"
	"verity/internal/verification/models"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/sentinel"
	"verity/pkg/requestcontext"
)

// ErrConfigurationMissing means neither the organization nor the default row
// exists. The default row is seeded at start-up, so this is an operator alarm.
var ErrConfigurationMissing = errors.New("trust configuration missing")

const (
	defaultKey      = "default"
	defaultCacheTTL = 5 * time.Minute
)

type Store interface {
	FindDefault(ctx context.Context) (*trust.Config, error)
	FindByOrganization(ctx context.Context, orgID uuid.UUID) (*trust.Config, error)
	Upsert(ctx context.Context, cfg *trust.Config) error
	InsertDefaultIfMissing(ctx context.Context, cfg *trust.Config) error
}

type Cache interface {
	Get(ctx context.Context, key string) (CacheEntry, bool, error)
	Set(ctx context.Context, key string, entry CacheEntry, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// Service resolves and updates trust configs.
type Service struct {
	store   Store
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	loads   singleflight.Group
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCache replaces the default in-process cache.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
		}
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cache:  NewInMemoryCache(),
		ttl:    defaultCacheTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed inserts the default row when it does not exist yet.
func (s *Service) Seed(ctx context.Context) error {
	cfg := trust.DefaultConfig()
	cfg.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.InsertDefaultIfMissing(ctx, cfg); err != nil {
		return fmt.Errorf("seed trust config: %w", err)
	}
	return s.cache.Invalidate(ctx, defaultKey)
}

// Resolve returns the organization's config, falling back to the global
// default when the organization has none (or orgID is nil).
func (s *Service) Resolve(ctx context.Context, orgID *uuid.UUID) (*trust.Config, error) {
	if orgID != nil {
		cfg, err := s.lookup(ctx, orgID.String(), func(ctx context.Context) (*trust.Config, error) {
			return s.store.FindByOrganization(ctx, *orgID)
		})
		if err != nil {
			return nil, err
		}
		if cfg != nil {
			return cfg, nil
		}
	}

	cfg, err := s.lookup(ctx, defaultKey, s.store.FindDefault)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		s.metrics.IncConfigurationMissing()
		s.logger.ErrorContext(ctx, "default trust config row is missing",
			"organization_id", orgIDString(orgID),
		)
		return nil, dErrors.Wrap(ErrConfigurationMissing, dErrors.CodeConfigurationMissing, "trust configuration missing")
	}
	return cfg, nil
}

// lookup reads through the cache. A nil config with a nil error means the
// row does not exist.
func (s *Service) lookup(ctx context.Context, key string, load func(context.Context) (*trust.Config, error)) (*trust.Config, error) {
	entry, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "trust config cache read failed", "key", key, "error", err)
	}
	if ok {
		s.metrics.RecordCacheHit()
		if entry.Absent {
			return nil, nil
		}
		return entry.Config.Clone(), nil
	}
	s.metrics.RecordCacheMiss()

	v, err, _ := s.loads.Do(key, func() (any, error) {
		cfg, err := load(ctx)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			s.fill(ctx, key, CacheEntry{Absent: true})
			return (*trust.Config)(nil), nil
		case err != nil:
			return nil, err
		}
		s.fill(ctx, key, CacheEntry{Config: cfg})
		return cfg, nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust configuration")
	}
	return v.(*trust.Config).Clone(), nil
}

func (s *Service) fill(ctx context.Context, key string, entry CacheEntry) {
	if err := s.cache.Set(ctx, key, entry, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "trust config cache write failed", "key", key, "error", err)
	}
}

// Update changes the weighting configuration. Fields left nil keep their
// current value; an organization without a row starts from the default.
type Update struct {
	MethodWeights        map[models.Method]float64
	VerifiedReviewBoost  *float64
	UnverifiedPenalty    *float64
	ShowBadges           *bool
	ShowTrustScore       *bool
	VerificationValidity *time.Duration
}

// Update writes the config of orgID (nil for the global default).
func (s *Service) Update(ctx context.Context, orgID *uuid.UUID, upd Update, actorID uuid.UUID) (*trust.Config, error) {
	current, err := s.current(ctx, orgID)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	next.OrganizationID = orgID
	for method, weight := range upd.MethodWeights {
		next.MethodWeights[method] = weight
	}
	if upd.VerifiedReviewBoost != nil {
		next.VerifiedReviewBoost = *upd.VerifiedReviewBoost
	}
	if upd.UnverifiedPenalty != nil {
		next.UnverifiedPenalty = *upd.UnverifiedPenalty
	}
	if upd.ShowBadges != nil {
		next.ShowBadges = *upd.ShowBadges
	}
	if upd.ShowTrustScore != nil {
		next.ShowTrustScore = *upd.ShowTrustScore
	}
	if upd.VerificationValidity != nil {
		next.VerificationValidity = *upd.VerificationValidity
	}
	if err := Validate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = requestcontext.Now(ctx)
	next.UpdatedBy = &actorID

	if err := s.store.Upsert(ctx, next); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(ErrConfigurationMissing, dErrors.CodeConfigurationMissing, "trust configuration missing")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save trust configuration")
	}

	key := defaultKey
	if orgID != nil {
		key = orgID.String()
	}
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "trust config cache invalidation failed", "key", key, "error", err)
	}
	s.logger.InfoContext(ctx, "trust config updated",
		"organization_id", orgIDString(orgID),
		"actor_id", actorID.String(),
	)
	return next, nil
}

// current returns the row Update starts from, bypassing the cache.
func (s *Service) current(ctx context.Context, orgID *uuid.UUID) (*trust.Config, error) {
	if orgID != nil {
		cfg, err := s.store.FindByOrganization(ctx, *orgID)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust configuration")
		}
	}
	cfg, err := s.store.FindDefault(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.metrics.IncConfigurationMissing()
		return nil, dErrors.Wrap(ErrConfigurationMissing, dErrors.CodeConfigurationMissing, "trust configuration missing")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust configuration")
	}
	return cfg, nil
}

// Validate checks weights are in (0,1], the boost is positive, the penalty
// is in (0,1] and the validity is not negative.
func Validate(cfg *trust.Config) error {
	for method, weight := range cfg.MethodWeights {
		if !method.IsValid() {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown verification method %q", method))
		}
		if weight <= 0 || weight > 1 {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("weight for %s must be in (0, 1]", method))
		}
	}
	if cfg.VerifiedReviewBoost <= 0 {
		return dErrors.New(dErrors.CodeValidation, "verified_review_boost must be positive")
	}
	if cfg.UnverifiedPenalty <= 0 || cfg.UnverifiedPenalty > 1 {
		return dErrors.New(dErrors.CodeValidation, "unverified_penalty must be in (0, 1]")
	}
	if cfg.VerificationValidity < 0 {
		return dErrors.New(dErrors.CodeValidation, "verification_validity must not be negative")
	}
	return nil
}

func orgIDString(id *uuid.UUID) string {
	if id == nil {
		return defaultKey
	}
	return id.String()
}

func parseOrgKey(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode cached organization id: %w", err)
	}
	return id, nil
}
