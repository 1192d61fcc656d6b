// Package identity implements the resolution core: the online resolver, the
// batch graph builder, the merge resolver, the PII hash backfill, and the
// profile assembler.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/graph"
	"github.com/spec-kit/identity-service/internal/observability"
	"github.com/spec-kit/identity-service/internal/pii"
)

// SourceOnlineResolution marks links created during online fallback resolution.
const SourceOnlineResolution = "online_resolution"

// Query carries whatever evidence of identity a caller has: a hard
// identifier, raw PII fragments, or both.
type Query struct {
	Identifier string
	Email      string
	Name       string
	Address    string
}

// IsEmpty reports whether the query carries no usable evidence.
func (q Query) IsEmpty() bool {
	return q.Identifier == "" && q.Email == "" && q.Name == "" && q.Address == ""
}

// Resolver walks a precedence-ordered lookup chain to find the canonical
// identity behind an identifier or PII bundle. "Unknown customer" is an
// expected outcome: a miss returns (nil, nil), never an error.
type Resolver struct {
	store      graph.Store
	hasher     *pii.Hasher
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewResolver constructs a resolver. dispatcher may be nil.
func NewResolver(store graph.Store, hasher *pii.Hasher, dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		store:      store,
		hasher:     hasher,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// Resolve tries, in order: direct identifier match, email-hash match,
// name-hash match, address-hash match. The first hit wins; scores are never
// blended across steps. A deactivated identity is followed one mergedInto
// hop to its living successor.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*domain.CanonicalIdentity, error) {
	if q.IsEmpty() {
		return nil, nil
	}

	type step struct {
		name   string
		idType domain.IdentifierType
		value  string
	}

	steps := []step{}
	if q.Identifier != "" {
		steps = append(steps, step{name: "direct", value: q.Identifier})
	}
	if q.Email != "" {
		steps = append(steps, step{name: "email_hash", idType: domain.IdentifierEmailHash, value: r.hasher.HashEmail(q.Email)})
	}
	if q.Name != "" {
		steps = append(steps, step{name: "name_hash", idType: domain.IdentifierNameHash, value: r.hasher.HashName(q.Name)})
	}
	if q.Address != "" {
		steps = append(steps, step{name: "address_hash", idType: domain.IdentifierAddressHash, value: r.hasher.HashAddress(q.Address)})
	}

	for _, st := range steps {
		// Malformed PII normalizes to the empty string and hashes to "",
		// which must never act as a match key.
		if st.value == "" {
			continue
		}

		var (
			owner string
			err   error
		)
		if st.name == "direct" {
			owner, err = r.store.LookupAny(ctx, st.value)
		} else {
			owner, err = r.store.LookupOwner(ctx, st.idType, st.value)
		}
		if errors.Is(err, graph.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		identity, err := r.activeIdentity(ctx, owner)
		if err != nil {
			return nil, err
		}
		if identity == nil {
			continue
		}

		r.metrics.RecordResolution(st.name, true)
		r.logger.Debug("identity resolved",
			zap.String("step", st.name),
			zap.String("canonical_id", identity.ID))
		return identity, nil
	}

	r.metrics.RecordResolution("none", false)
	return nil, nil
}

// ResolveOrCreate resolves the query, lazily creating a canonical identity
// from the PII bundle when nothing matches. The new identity gets plaintext
// and hashed email links plus a name-hash link so later lookups by any of
// them converge on it.
func (r *Resolver) ResolveOrCreate(ctx context.Context, q Query) (*domain.CanonicalIdentity, bool, error) {
	identity, err := r.Resolve(ctx, q)
	if err != nil {
		return nil, false, err
	}
	if identity != nil {
		return identity, false, nil
	}
	if q.Email == "" {
		// Identifier-only misses stay misses; an identity with no linkable
		// evidence would be unreachable.
		return nil, false, nil
	}

	email := r.hasher.Normalizer().NormalizeEmail(q.Email)
	identity, err = r.store.CreateIdentity(ctx, email, q.Name)
	if err != nil {
		return nil, false, err
	}

	links := []domain.IdentityLink{
		{IDType: domain.IdentifierEmail, IDValue: email, Confidence: domain.ConfidenceExact},
		{IDType: domain.IdentifierEmailHash, IDValue: r.hasher.HashEmail(q.Email), Confidence: domain.ConfidenceEmailHash},
	}
	if q.Name != "" {
		links = append(links, domain.IdentityLink{IDType: domain.IdentifierNameHash, IDValue: r.hasher.HashName(q.Name), Confidence: domain.ConfidenceNameHash})
	}
	for _, link := range links {
		if link.IDValue == "" {
			continue
		}
		link.CanonicalID = identity.ID
		link.Source = SourceOnlineResolution
		if err := r.store.Link(ctx, link); err != nil {
			return nil, false, err
		}
	}

	r.publish(ctx, events.Event{
		Type:        events.EventIdentityCreated,
		CanonicalID: identity.ID,
		PerformedBy: SourceOnlineResolution,
		Payload:     events.IdentityCreatedPayload{Source: SourceOnlineResolution},
	})
	r.logger.Info("identity created on resolution fallback", zap.String("canonical_id", identity.ID))
	return identity, true, nil
}

// activeIdentity loads an identity and follows at most one mergedInto hop.
// Merge chains are kept one hop deep on write, so a successor that is itself
// inactive indicates corruption and resolves to nothing.
func (r *Resolver) activeIdentity(ctx context.Context, id string) (*domain.CanonicalIdentity, error) {
	identity, err := r.store.GetIdentity(ctx, id)
	if errors.Is(err, graph.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if identity.Active {
		return identity, nil
	}
	if identity.MergedInto == nil {
		return nil, nil
	}

	successor, err := r.store.GetIdentity(ctx, *identity.MergedInto)
	if errors.Is(err, graph.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !successor.Active {
		r.logger.Warn("merge chain exceeds one hop",
			zap.String("canonical_id", id),
			zap.String("merged_into", successor.ID))
		return nil, nil
	}
	return successor, nil
}

func (r *Resolver) publish(ctx context.Context, event events.Event) {
	if r.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = r.dispatcher.Publish(ctx, event)
}
