package identity

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/cache"
	"github.com/spec-kit/identity-service/internal/domain"
)

func seedProfileFixture(t *testing.T, rig *testRig) *domain.CanonicalIdentity {
	t.Helper()
	ctx := context.Background()

	identity, err := rig.store.CreateIdentity(ctx, "molly@example.com", "Molly Stevens")
	require.NoError(t, err)
	require.NoError(t, rig.store.Link(ctx, domain.IdentityLink{
		IDType: domain.IdentifierEcommerceID, IDValue: "123",
		CanonicalID: identity.ID, Source: SourceOrderHistory, Confidence: 1.0, Verified: true,
	}))
	require.NoError(t, rig.store.Link(ctx, domain.IdentityLink{
		IDType: domain.IdentifierEmail, IDValue: "molly@example.com",
		CanonicalID: identity.ID, Source: SourceTicketing, Confidence: 1.0, Verified: true,
	}))
	return identity
}

func TestProfileAssembly(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()
	identity := seedProfileFixture(t, rig)

	recency := 12
	tenure := 900
	orders := &stubOrders{
		intel: map[string]*domain.CustomerIntelligence{
			"123": {
				EcommerceCustomerID:   "123",
				LifetimeValue:         6000,
				TotalOrders:           12,
				ChurnRiskScore:        0.2,
				DaysSinceLastPurchase: &recency,
				CustomerTenureDays:    &tenure,
			},
		},
		orders: map[string][]domain.Order{
			"123": {{OrderID: "o1", OrderNumber: "1001", Total: 120}},
		},
	}
	assembler := NewProfileAssembler(rig.store, rig.resolver, orders, nil, zap.NewNop(), 5)

	profile, err := assembler.GetCompleteProfile(ctx, Query{Identifier: "123"})
	require.NoError(t, err)
	require.NotNil(t, profile)

	assert.Equal(t, identity.ID, profile.CanonicalID)
	assert.Equal(t, "molly@example.com", profile.Email)
	assert.Len(t, profile.Identifiers, 2)
	require.Len(t, profile.RecentOrders, 1)
	assert.Equal(t, "o1", profile.RecentOrders[0].OrderID)

	intel := profile.Intelligence
	require.NotNil(t, intel)
	assert.Equal(t, domain.ValueTierVIP, intel.ValueTier)
	assert.Equal(t, domain.ChurnRiskLow, intel.ChurnRiskLevel)
	assert.InDelta(t, 500.0, intel.AvgOrderValue, 0.001)
	assert.Contains(t, intel.Behaviors, "frequent_buyer")
	assert.Contains(t, intel.Behaviors, "recently_active")
	assert.Contains(t, intel.Behaviors, "long_term_customer")
	assert.Contains(t, intel.Behaviors, "big_basket")
}

func TestProfileUnknownCustomer(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()
	assembler := NewProfileAssembler(rig.store, rig.resolver, &stubOrders{}, nil, zap.NewNop(), 5)

	profile, err := assembler.GetCompleteProfile(ctx, Query{Identifier: "does-not-exist"})
	require.NoError(t, err)
	assert.Nil(t, profile)

	// Assembly never creates identities on a miss.
	stats, err := rig.store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.ActiveIdentities)
}

func TestProfileDegradesOnUpstreamFailure(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()
	identity := seedProfileFixture(t, rig)

	orders := &stubOrders{intelErr: errUpstreamDown, ordersErr: errUpstreamDown}
	assembler := NewProfileAssembler(rig.store, rig.resolver, orders, nil, zap.NewNop(), 5)

	profile, err := assembler.GetCompleteProfile(ctx, Query{Identifier: "123"})
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, identity.ID, profile.CanonicalID)
	assert.Nil(t, profile.Intelligence)
	assert.Empty(t, profile.RecentOrders)
	assert.Len(t, profile.Identifiers, 2)
}

func TestProfileWithoutOrderHistory(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()

	identity, err := rig.store.CreateIdentity(ctx, "ticket-only@example.com", "")
	require.NoError(t, err)
	require.NoError(t, rig.store.Link(ctx, domain.IdentityLink{
		IDType: domain.IdentifierTicketingID, IDValue: "T9",
		CanonicalID: identity.ID, Source: SourceTicketing, Confidence: 1.0,
	}))

	assembler := NewProfileAssembler(rig.store, rig.resolver, &stubOrders{}, nil, zap.NewNop(), 5)
	profile, err := assembler.GetCompleteProfile(ctx, Query{Identifier: "T9"})
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Nil(t, profile.Intelligence)
	assert.Empty(t, profile.RecentOrders)
}

func TestProfileIntelligenceWithoutOrders(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()
	seedProfileFixture(t, rig)

	orders := &stubOrders{
		intel: map[string]*domain.CustomerIntelligence{
			"123": {EcommerceCustomerID: "123", LifetimeValue: 50, TotalOrders: 1, ChurnRiskScore: 0.8},
		},
	}
	assembler := NewProfileAssembler(rig.store, rig.resolver, orders, nil, zap.NewNop(), 5)

	profile, err := assembler.GetCompleteProfile(ctx, Query{Identifier: "123"})
	require.NoError(t, err)
	require.NotNil(t, profile)

	intel := profile.Intelligence
	require.NotNil(t, intel)
	assert.Equal(t, domain.ValueTierNew, intel.ValueTier)
	assert.Equal(t, domain.ChurnRiskHigh, intel.ChurnRiskLevel)
	assert.Contains(t, intel.Behaviors, "one_time_buyer")
	assert.Empty(t, profile.RecentOrders)
}

func TestGetProfileByID(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()
	identity := seedProfileFixture(t, rig)

	assembler := NewProfileAssembler(rig.store, rig.resolver, &stubOrders{}, nil, zap.NewNop(), 5)

	profile, err := assembler.GetProfileByID(ctx, identity.ID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, identity.ID, profile.CanonicalID)
	assert.Len(t, profile.Identifiers, 2)

	missing, err := assembler.GetProfileByID(ctx, "cid_0000000000000000")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestProfileCacheFailureDoesNotBlockLookup(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()
	identity := seedProfileFixture(t, rig)

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	profiles := cache.NewProfileCache(client, time.Minute, zap.NewNop())
	assembler := NewProfileAssembler(rig.store, rig.resolver, &stubOrders{}, profiles, zap.NewNop(), 5)

	// An unreachable cache degrades to a passthrough; assembly still works.
	profile, err := assembler.GetCompleteProfile(ctx, Query{Identifier: "123"})
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, identity.ID, profile.CanonicalID)
}
