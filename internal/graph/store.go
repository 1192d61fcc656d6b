// Package graph persists the identity graph: canonical identities and the
// typed identifier links pointing at them.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/identity-service/internal/domain"
)

// ErrNotFound is returned when a lookup yields no identity or link.
var ErrNotFound = errors.New("identity not found")

// ErrLinkConflict is returned when a (type, value) pair is already owned by a
// different canonical identity. Resolving the conflict is the merge
// resolver's job, never an ad hoc overwrite.
var ErrLinkConflict = errors.New("identifier linked to another identity")

// LinkConflictError carries the competing owners of a contested identifier.
type LinkConflictError struct {
	IDType    domain.IdentifierType
	OwnerID   string
	RequestID string
}

func (e *LinkConflictError) Error() string {
	return fmt.Sprintf("identifier of type %s already linked to identity %s (requested %s)", e.IDType, e.OwnerID, e.RequestID)
}

// Is makes errors.Is(err, ErrLinkConflict) match.
func (e *LinkConflictError) Is(target error) bool {
	return target == ErrLinkConflict
}

// Stats summarizes the graph for reporting.
type Stats struct {
	ActiveIdentities      int64            `json:"active_identities"`
	MergedIdentities      int64            `json:"merged_identities"`
	ActiveLinks           int64            `json:"active_links"`
	LinksByType           map[string]int64 `json:"links_by_type"`
	MultiSourceIdentities int64            `json:"multi_source_identities"`
}

// Store is the persisted bipartite identity graph.
//
// Link is an upsert keyed by (IDType, IDValue): an unowned pair is created;
// re-linking a pair to its current owner only ever raises confidence; a pair
// owned by a different identity fails with ErrLinkConflict. At most one
// active link exists per pair, enforced at the storage layer.
type Store interface {
	CreateIdentity(ctx context.Context, primaryEmail, primaryName string) (*domain.CanonicalIdentity, error)
	GetIdentity(ctx context.Context, id string) (*domain.CanonicalIdentity, error)
	UpdatePrimaryContact(ctx context.Context, id, email, name string) error
	ListActiveIdentities(ctx context.Context, limit, offset int) ([]domain.CanonicalIdentity, error)

	Link(ctx context.Context, link domain.IdentityLink) error
	LookupOwner(ctx context.Context, idType domain.IdentifierType, idValue string) (string, error)
	LookupAny(ctx context.Context, idValue string) (string, error)
	ListLinks(ctx context.Context, canonicalID string) ([]domain.IdentityLink, error)

	// EmailsWithMultipleOwners returns every plaintext email value linked to
	// more than one distinct active identity, with owners sorted ascending.
	EmailsWithMultipleOwners(ctx context.Context) (map[string][]string, error)
	// MoveLinks re-points every active link owned by fromID onto toID,
	// retiring any pair toID already owns instead of duplicating it.
	MoveLinks(ctx context.Context, fromID, toID string) (moved, superseded int, err error)
	// Deactivate retires an identity, recording its surviving successor.
	// Identities already merged into id are re-pointed at mergedInto so
	// merge chains stay one hop deep.
	Deactivate(ctx context.Context, id, mergedInto string) error

	Stats(ctx context.Context) (*Stats, error)
}

// NewIdentityID mints an opaque, globally unique canonical identity token.
func NewIdentityID() string {
	return "cid_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
