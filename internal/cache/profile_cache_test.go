package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/domain"
)

func TestProfileCacheNilSafety(t *testing.T) {
	ctx := context.Background()

	var missing *ProfileCache
	assert.Nil(t, missing.Get(ctx, "cid_x"))
	missing.Set(ctx, &domain.Profile{CanonicalID: "cid_x"})
	missing.Invalidate(ctx, "cid_x")

	disabled := NewProfileCache(nil, time.Minute, zap.NewNop())
	assert.Nil(t, disabled.Get(ctx, "cid_x"))
	disabled.Set(ctx, &domain.Profile{CanonicalID: "cid_x"})
	disabled.Invalidate(ctx, "cid_x")
}

func TestProfileCacheFailsOpen(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	c := NewProfileCache(client, time.Minute, zap.NewNop())

	// Every operation against an unreachable Redis degrades to a no-op; a
	// lookup sees a miss, never an error.
	c.Set(ctx, &domain.Profile{CanonicalID: "cid_x"})
	assert.Nil(t, c.Get(ctx, "cid_x"))
	c.Invalidate(ctx, "cid_x", "cid_y")
}
