// Package cache holds the Redis-backed profile cache. The cache is strictly
// an accelerator: every operation fails open so an unavailable Redis never
// fails or blocks an identity lookup.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/domain"
)

const profileKeyPrefix = "identity:profile:"

// ProfileCache caches assembled customer profiles keyed by canonical ID.
type ProfileCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewProfileCache builds a cache. A nil client disables caching entirely.
func NewProfileCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ProfileCache {
	return &ProfileCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached profile for a canonical ID, or nil on miss or error.
func (c *ProfileCache) Get(ctx context.Context, canonicalID string) *domain.Profile {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, profileKeyPrefix+canonicalID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("profile cache read failed", zap.String("canonical_id", canonicalID), zap.Error(err))
		}
		return nil
	}
	var profile domain.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		c.logger.Warn("profile cache entry corrupt", zap.String("canonical_id", canonicalID), zap.Error(err))
		return nil
	}
	return &profile
}

// Set stores a profile with the configured TTL.
func (c *ProfileCache) Set(ctx context.Context, profile *domain.Profile) {
	if c == nil || c.client == nil || profile == nil {
		return
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return
	}
	if err := c.client.SetEx(ctx, profileKeyPrefix+profile.CanonicalID, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("profile cache write failed", zap.String("canonical_id", profile.CanonicalID), zap.Error(err))
	}
}

// Invalidate drops cached profiles, e.g. after a merge re-points links.
func (c *ProfileCache) Invalidate(ctx context.Context, canonicalIDs ...string) {
	if c == nil || c.client == nil || len(canonicalIDs) == 0 {
		return
	}
	keys := make([]string, len(canonicalIDs))
	for i, id := range canonicalIDs {
		keys[i] = profileKeyPrefix + id
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("profile cache invalidation failed", zap.Error(err))
	}
}
