package identity

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/domain"
)

func TestMergeClassCollapsesOwners(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()

	a, err := rig.store.CreateIdentity(ctx, "shared@example.com", "Ann")
	require.NoError(t, err)
	b, err := rig.store.CreateIdentity(ctx, "shared@example.com", "Ann S")
	require.NoError(t, err)

	require.NoError(t, rig.store.Link(ctx, domain.IdentityLink{
		IDType: domain.IdentifierEcommerceID, IDValue: "123", CanonicalID: a.ID, Confidence: 1.0,
	}))
	require.NoError(t, rig.store.Link(ctx, domain.IdentityLink{
		IDType: domain.IdentifierTicketingID, IDValue: "T9", CanonicalID: b.ID, Confidence: 1.0,
	}))

	report, err := rig.merger.MergeClass(ctx, "shared@example.com", []string{b.ID, a.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.MergedIdentities)

	// The survivor is the smaller canonical ID regardless of input order.
	ids := []string{a.ID, b.ID}
	sort.Strings(ids)
	survivorID, loserID := ids[0], ids[1]

	survivor, err := rig.store.GetIdentity(ctx, survivorID)
	require.NoError(t, err)
	assert.True(t, survivor.Active)
	assert.Nil(t, survivor.MergedInto)

	loser, err := rig.store.GetIdentity(ctx, loserID)
	require.NoError(t, err)
	assert.False(t, loser.Active)
	require.NotNil(t, loser.MergedInto)
	assert.Equal(t, survivorID, *loser.MergedInto)

	// Both hard identifiers now resolve to the survivor.
	for _, identifier := range []string{"123", "T9"} {
		resolved, err := rig.resolver.Resolve(ctx, Query{Identifier: identifier})
		require.NoError(t, err)
		require.NotNil(t, resolved)
		assert.Equal(t, survivorID, resolved.ID)
	}
}

func TestMergeClassIdempotent(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()

	a, err := rig.store.CreateIdentity(ctx, "shared@example.com", "")
	require.NoError(t, err)
	b, err := rig.store.CreateIdentity(ctx, "shared@example.com", "")
	require.NoError(t, err)

	first, err := rig.merger.MergeClass(ctx, "shared@example.com", []string{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, first.MergedIdentities)

	// Re-running with the original members substitutes survivors and finds a
	// single-member class.
	second, err := rig.merger.MergeClass(ctx, "shared@example.com", []string{a.ID, b.ID})
	require.NoError(t, err)
	assert.Zero(t, second.MergedIdentities)
}

func TestMergeClassThreeWay(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()

	var ids []string
	for i := 0; i < 3; i++ {
		identity, err := rig.store.CreateIdentity(ctx, "shared@example.com", "")
		require.NoError(t, err)
		ids = append(ids, identity.ID)
	}

	report, err := rig.merger.MergeClass(ctx, "shared@example.com", ids)
	require.NoError(t, err)
	assert.Equal(t, 2, report.MergedIdentities)

	sort.Strings(ids)
	survivorID := ids[0]

	// Every loser points directly at the survivor, never at another loser.
	for _, id := range ids[1:] {
		loser, err := rig.store.GetIdentity(ctx, id)
		require.NoError(t, err)
		assert.False(t, loser.Active)
		require.NotNil(t, loser.MergedInto)
		assert.Equal(t, survivorID, *loser.MergedInto)
	}
}

func TestMergeClassIgnoresMissingAndSingle(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()

	only, err := rig.store.CreateIdentity(ctx, "a@example.com", "")
	require.NoError(t, err)

	report, err := rig.merger.MergeClass(ctx, "a@example.com", []string{only.ID, "cid_gone"})
	require.NoError(t, err)
	assert.Zero(t, report.MergedIdentities)

	still, err := rig.store.GetIdentity(ctx, only.ID)
	require.NoError(t, err)
	assert.True(t, still.Active)
}

func TestMergeInvalidatesCachedProfiles(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()
	profiles := &recordingCache{}
	merger := NewMergeResolver(rig.store, profiles, nil, zap.NewNop())

	a, err := rig.store.CreateIdentity(ctx, "shared@example.com", "")
	require.NoError(t, err)
	b, err := rig.store.CreateIdentity(ctx, "shared@example.com", "")
	require.NoError(t, err)

	_, err = merger.MergeClass(ctx, "shared@example.com", []string{a.ID, b.ID})
	require.NoError(t, err)

	// Cached profiles for both sides of the merge are dropped together.
	require.Len(t, profiles.invalidated, 1)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, profiles.invalidated[0])

	// A class with nothing left to merge touches the cache not at all.
	_, err = merger.MergeClass(ctx, "shared@example.com", []string{a.ID, b.ID})
	require.NoError(t, err)
	assert.Len(t, profiles.invalidated, 1)
}

func TestMergeRunScansGraph(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()

	// A clean graph merges nothing.
	report, err := rig.merger.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Classes)
	assert.Zero(t, report.MergedIdentities)
}
