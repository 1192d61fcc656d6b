package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/identity-service/internal/domain"
)

func TestResolvePrecedence(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()

	byEmail, err := rig.store.CreateIdentity(ctx, "molly@example.com", "Molly Stevens")
	require.NoError(t, err)
	byName, err := rig.store.CreateIdentity(ctx, "other@example.com", "Molly Stevens")
	require.NoError(t, err)
	byID, err := rig.store.CreateIdentity(ctx, "third@example.com", "")
	require.NoError(t, err)

	require.NoError(t, rig.store.Link(ctx, domain.IdentityLink{
		IDType: domain.IdentifierEmailHash, IDValue: rig.hasher.HashEmail("molly@example.com"),
		CanonicalID: byEmail.ID, Confidence: domain.ConfidenceEmailHash,
	}))
	require.NoError(t, rig.store.Link(ctx, domain.IdentityLink{
		IDType: domain.IdentifierNameHash, IDValue: rig.hasher.HashName("Molly Stevens"),
		CanonicalID: byName.ID, Confidence: domain.ConfidenceNameHash,
	}))
	require.NoError(t, rig.store.Link(ctx, domain.IdentityLink{
		IDType: domain.IdentifierEcommerceID, IDValue: "123",
		CanonicalID: byID.ID, Confidence: domain.ConfidenceExact,
	}))

	// Direct identifier beats every PII signal.
	resolved, err := rig.resolver.Resolve(ctx, Query{Identifier: "123", Email: "molly@example.com", Name: "Molly Stevens"})
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, byID.ID, resolved.ID)

	// Email hash beats name hash.
	resolved, err = rig.resolver.Resolve(ctx, Query{Email: "molly@example.com", Name: "Molly Stevens"})
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, byEmail.ID, resolved.ID)

	// Name hash alone still matches.
	resolved, err = rig.resolver.Resolve(ctx, Query{Name: "Molly Stevens, Jr."})
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, byName.ID, resolved.ID)
}

func TestResolveMissReturnsNilNil(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()

	resolved, err := rig.resolver.Resolve(ctx, Query{Identifier: "does-not-exist"})
	require.NoError(t, err)
	assert.Nil(t, resolved)

	resolved, err = rig.resolver.Resolve(ctx, Query{})
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestResolveSkipsEmptyHashes(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()

	// A stored empty-value link must never be reachable through malformed PII
	// that normalizes to nothing.
	identity, err := rig.store.CreateIdentity(ctx, "a@example.com", "")
	require.NoError(t, err)
	require.NoError(t, rig.store.Link(ctx, domain.IdentityLink{
		IDType: domain.IdentifierNameHash, IDValue: "",
		CanonicalID: identity.ID, Confidence: domain.ConfidenceNameHash,
	}))

	resolved, err := rig.resolver.Resolve(ctx, Query{Name: "..."})
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestResolveFollowsMergeHop(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()

	survivor, err := rig.store.CreateIdentity(ctx, "a@example.com", "")
	require.NoError(t, err)
	merged, err := rig.store.CreateIdentity(ctx, "b@example.com", "")
	require.NoError(t, err)

	require.NoError(t, rig.store.Link(ctx, domain.IdentityLink{
		IDType: domain.IdentifierTicketingID, IDValue: "T9",
		CanonicalID: merged.ID, Confidence: domain.ConfidenceExact,
	}))
	require.NoError(t, rig.store.Deactivate(ctx, merged.ID, survivor.ID))

	resolved, err := rig.resolver.Resolve(ctx, Query{Identifier: "T9"})
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, survivor.ID, resolved.ID)
	assert.True(t, resolved.Active)
}

func TestResolveOrCreate(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()

	created, wasCreated, err := rig.resolver.ResolveOrCreate(ctx, Query{Email: "New.User@gmail.com", Name: "New User"})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.True(t, wasCreated)
	assert.Equal(t, "newuser@gmail.com", created.PrimaryEmail)

	// The same evidence now resolves instead of creating again.
	again, wasCreated, err := rig.resolver.ResolveOrCreate(ctx, Query{Email: "newuser@gmail.com"})
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.False(t, wasCreated)
	assert.Equal(t, created.ID, again.ID)

	// An identifier-only miss stays a miss.
	missed, wasCreated, err := rig.resolver.ResolveOrCreate(ctx, Query{Identifier: "nope"})
	require.NoError(t, err)
	assert.Nil(t, missed)
	assert.False(t, wasCreated)
}
