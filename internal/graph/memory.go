package graph

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/identity-service/internal/domain"
)

type pairKey struct {
	idType  domain.IdentifierType
	idValue string
}

// memoryStore is an in-process Store with the same semantics as the Postgres
// implementation. It backs the tests.
type memoryStore struct {
	mu         sync.RWMutex
	identities map[string]*domain.CanonicalIdentity
	links      map[pairKey]*domain.IdentityLink
}

// NewMemoryStore returns an empty in-memory identity graph store.
func NewMemoryStore() Store {
	return &memoryStore{
		identities: make(map[string]*domain.CanonicalIdentity),
		links:      make(map[pairKey]*domain.IdentityLink),
	}
}

func (s *memoryStore) CreateIdentity(_ context.Context, primaryEmail, primaryName string) (*domain.CanonicalIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	identity := &domain.CanonicalIdentity{
		ID:           NewIdentityID(),
		PrimaryEmail: primaryEmail,
		PrimaryName:  primaryName,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.identities[identity.ID] = identity
	out := *identity
	return &out, nil
}

func (s *memoryStore) GetIdentity(_ context.Context, id string) (*domain.CanonicalIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *identity
	return &out, nil
}

func (s *memoryStore) UpdatePrimaryContact(_ context.Context, id, email, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[id]
	if !ok {
		return ErrNotFound
	}
	identity.PrimaryEmail = email
	identity.PrimaryName = name
	identity.UpdatedAt = time.Now()
	return nil
}

func (s *memoryStore) ListActiveIdentities(_ context.Context, limit, offset int) ([]domain.CanonicalIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.identities))
	for id, identity := range s.identities {
		if identity.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		return nil, nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	result := make([]domain.CanonicalIdentity, 0, len(ids))
	for _, id := range ids {
		result = append(result, *s.identities[id])
	}
	return result, nil
}

func (s *memoryStore) Link(_ context.Context, link domain.IdentityLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{idType: link.IDType, idValue: link.IDValue}
	now := time.Now()

	if existing, ok := s.links[key]; ok {
		if existing.CanonicalID != link.CanonicalID {
			return &LinkConflictError{
				IDType:    link.IDType,
				OwnerID:   existing.CanonicalID,
				RequestID: link.CanonicalID,
			}
		}
		if link.Confidence > existing.Confidence {
			existing.Confidence = link.Confidence
		}
		existing.Verified = existing.Verified || link.Verified
		existing.UpdatedAt = now
		return nil
	}

	stored := link
	stored.Active = true
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.links[key] = &stored
	return nil
}

func (s *memoryStore) LookupOwner(_ context.Context, idType domain.IdentifierType, idValue string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[pairKey{idType: idType, idValue: idValue}]
	if !ok {
		return "", ErrNotFound
	}
	return link.CanonicalID, nil
}

func (s *memoryStore) LookupAny(_ context.Context, idValue string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.IdentityLink
	for key, link := range s.links {
		if key.idValue != idValue {
			continue
		}
		if best == nil || link.CreatedAt.Before(best.CreatedAt) {
			best = link
		}
	}
	if best == nil {
		return "", ErrNotFound
	}
	return best.CanonicalID, nil
}

func (s *memoryStore) ListLinks(_ context.Context, canonicalID string) ([]domain.IdentityLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var links []domain.IdentityLink
	for _, link := range s.links {
		if link.CanonicalID == canonicalID {
			links = append(links, *link)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].IDType != links[j].IDType {
			return links[i].IDType < links[j].IDType
		}
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})
	return links, nil
}

func (s *memoryStore) EmailsWithMultipleOwners(_ context.Context) (map[string][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make(map[string]map[string]struct{})
	for key, link := range s.links {
		if key.idType != domain.IdentifierEmail {
			continue
		}
		identity, ok := s.identities[link.CanonicalID]
		if !ok || !identity.Active {
			continue
		}
		if owners[key.idValue] == nil {
			owners[key.idValue] = make(map[string]struct{})
		}
		owners[key.idValue][link.CanonicalID] = struct{}{}
	}

	conflicts := make(map[string][]string)
	for email, set := range owners {
		if len(set) < 2 {
			continue
		}
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		conflicts[email] = ids
	}
	return conflicts, nil
}

func (s *memoryStore) MoveLinks(_ context.Context, fromID, toID string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Pairs are unique per key in this store, so a pair can never be owned by
	// both identities at once; nothing is ever superseded here.
	now := time.Now()
	moved := 0
	for _, link := range s.links {
		if link.CanonicalID != fromID {
			continue
		}
		link.CanonicalID = toID
		link.UpdatedAt = now
		moved++
	}
	return moved, 0, nil
}

func (s *memoryStore) Deactivate(_ context.Context, id, mergedInto string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[id]
	if !ok {
		return ErrNotFound
	}
	identity.Active = false
	identity.MergedInto = &mergedInto
	identity.UpdatedAt = time.Now()

	// Keep merge chains one hop deep.
	for _, other := range s.identities {
		if other.MergedInto != nil && *other.MergedInto == id && other.ID != mergedInto {
			survivor := mergedInto
			other.MergedInto = &survivor
			other.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *memoryStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{LinksByType: make(map[string]int64)}
	for _, identity := range s.identities {
		if identity.Active {
			stats.ActiveIdentities++
		} else {
			stats.MergedIdentities++
		}
	}

	typesByOwner := make(map[string]map[domain.IdentifierType]struct{})
	for key, link := range s.links {
		stats.LinksByType[string(key.idType)]++
		stats.ActiveLinks++
		if typesByOwner[link.CanonicalID] == nil {
			typesByOwner[link.CanonicalID] = make(map[domain.IdentifierType]struct{})
		}
		typesByOwner[link.CanonicalID][key.idType] = struct{}{}
	}
	for _, types := range typesByOwner {
		if len(types) > 1 {
			stats.MultiSourceIdentities++
		}
	}
	return stats, nil
}
