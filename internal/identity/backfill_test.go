package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/domain"
)

func TestBackfillAddsHashLinks(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()

	identity, err := rig.store.CreateIdentity(ctx, "molly@example.com", "Molly Stevens")
	require.NoError(t, err)

	backfill := NewHashBackfill(rig.store, rig.hasher, zap.NewNop(), 2, testPlaceholderDomain)
	report, err := backfill.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.IdentitiesScanned)
	assert.Equal(t, 2, report.HashesAdded)

	// Hash lookups now reach the identity.
	resolved, err := rig.resolver.Resolve(ctx, Query{Email: "Molly@Example.com"})
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, identity.ID, resolved.ID)

	resolved, err = rig.resolver.Resolve(ctx, Query{Name: "molly stevens"})
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, identity.ID, resolved.ID)
}

func TestBackfillRerunAddsNothing(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()

	_, err := rig.store.CreateIdentity(ctx, "molly@example.com", "Molly Stevens")
	require.NoError(t, err)

	backfill := NewHashBackfill(rig.store, rig.hasher, zap.NewNop(), 10, testPlaceholderDomain)
	_, err = backfill.Run(ctx)
	require.NoError(t, err)

	second, err := backfill.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.HashesAdded)
}

func TestBackfillSkipsPlaceholders(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()

	_, err := rig.store.CreateIdentity(ctx, "ecom-123@placeholder.invalid", "")
	require.NoError(t, err)

	backfill := NewHashBackfill(rig.store, rig.hasher, zap.NewNop(), 10, testPlaceholderDomain)
	report, err := backfill.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.HashesAdded)
}

func TestBackfillToleratesHashConflicts(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()

	first, err := rig.store.CreateIdentity(ctx, "a@example.com", "Ann Smith")
	require.NoError(t, err)
	_, err = rig.store.CreateIdentity(ctx, "b@example.com", "Ann Smith")
	require.NoError(t, err)

	// Pre-own the shared name hash so the second identity conflicts.
	require.NoError(t, rig.store.Link(ctx, domain.IdentityLink{
		IDType:      domain.IdentifierNameHash,
		IDValue:     rig.hasher.HashName("Ann Smith"),
		CanonicalID: first.ID,
		Confidence:  domain.ConfidenceNameHash,
	}))

	backfill := NewHashBackfill(rig.store, rig.hasher, zap.NewNop(), 10, testPlaceholderDomain)
	report, err := backfill.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Conflicts)

	// The shared name hash stays with its first owner; both identities got
	// their email hashes.
	owner, err := rig.store.LookupOwner(ctx, domain.IdentifierNameHash, rig.hasher.HashName("Ann Smith"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, owner)
	assert.Equal(t, 2, report.HashesAdded)
}
