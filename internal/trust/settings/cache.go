package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"verity/internal/trust"
	"verity/internal/verification/models"
)

// CacheEntry is the cached answer for one key. Absent marks an organization
// known to have no row of its own, so lookups fall straight to the default.
type CacheEntry struct {
	Config *trust.Config
	Absent bool
}

// InMemoryCache caches configs per process with a TTL.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	entry     CacheEntry
	expiresAt time.Time
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *InMemoryCache) Get(_ context.Context, key string) (CacheEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return CacheEntry{}, false, nil
	}
	return CacheEntry{Config: e.entry.Config.Clone(), Absent: e.entry.Absent}, true, nil
}

func (c *InMemoryCache) Set(_ context.Context, key string, entry CacheEntry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{
		entry:     CacheEntry{Config: entry.Config.Clone(), Absent: entry.Absent},
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *InMemoryCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

// RedisCache shares cached configs between service instances.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client, prefix: "verity:trust_config:"}
}

// redisPayload is the msgpack form of a cache entry.
type redisPayload struct {
	Absent               bool                      `msgpack:"absent,omitempty"`
	OrganizationID       string                    `msgpack:"organization_id,omitempty"`
	MethodWeights        map[models.Method]float64 `msgpack:"method_weights,omitempty"`
	VerifiedReviewBoost  float64                   `msgpack:"verified_review_boost"`
	UnverifiedPenalty    float64                   `msgpack:"unverified_penalty"`
	ShowBadges           bool                      `msgpack:"show_badges"`
	ShowTrustScore       bool                      `msgpack:"show_trust_score"`
	VerificationValidity time.Duration             `msgpack:"verification_validity"`
	UpdatedAt            time.Time                 `msgpack:"updated_at"`
}

func (c *RedisCache) Get(ctx context.Context, key string) (CacheEntry, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("redis get trust config: %w", err)
	}
	var p redisPayload
	if err := msgpack.Unmarshal(raw, &p); err != nil {
		return CacheEntry{}, false, fmt.Errorf("decode cached trust config: %w", err)
	}
	if p.Absent {
		return CacheEntry{Absent: true}, true, nil
	}
	cfg := &trust.Config{
		MethodWeights:        p.MethodWeights,
		VerifiedReviewBoost:  p.VerifiedReviewBoost,
		UnverifiedPenalty:    p.UnverifiedPenalty,
		ShowBadges:           p.ShowBadges,
		ShowTrustScore:       p.ShowTrustScore,
		VerificationValidity: p.VerificationValidity,
		UpdatedAt:            p.UpdatedAt,
	}
	if p.OrganizationID != "" {
		id, err := parseOrgKey(p.OrganizationID)
		if err != nil {
			return CacheEntry{}, false, err
		}
		cfg.OrganizationID = &id
	}
	return CacheEntry{Config: cfg}, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, entry CacheEntry, ttl time.Duration) error {
	p := redisPayload{Absent: entry.Absent}
	if cfg := entry.Config; cfg != nil {
		p.MethodWeights = cfg.MethodWeights
		p.VerifiedReviewBoost = cfg.VerifiedReviewBoost
		p.UnverifiedPenalty = cfg.UnverifiedPenalty
		p.ShowBadges = cfg.ShowBadges
		p.ShowTrustScore = cfg.ShowTrustScore
		p.VerificationValidity = cfg.VerificationValidity
		p.UpdatedAt = cfg.UpdatedAt
		if cfg.OrganizationID != nil {
			p.OrganizationID = cfg.OrganizationID.String()
		}
	}
	raw, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode cached trust config: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set trust config: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del trust config: %w", err)
	}
	return nil
}
