package identity

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/graph"
	"github.com/spec-kit/identity-service/internal/pii"
)

// SourcePIIBackfill marks links created by the hash backfill pass.
const SourcePIIBackfill = "pii_backfill"

// BackfillReport summarizes one backfill run.
type BackfillReport struct {
	IdentitiesScanned int
	HashesAdded       int
	Skipped           int
	Conflicts         int
}

// HashBackfill derives hashed PII links for identities that predate hashing
// or were seeded with plaintext only. Existing hash links are left alone, so
// the pass is safe to rerun after every graph build.
type HashBackfill struct {
	store             graph.Store
	hasher            *pii.Hasher
	logger            *zap.Logger
	batchSize         int
	placeholderDomain string
}

// NewHashBackfill constructs a backfill pass.
func NewHashBackfill(store graph.Store, hasher *pii.Hasher, logger *zap.Logger, batchSize int, placeholderDomain string) *HashBackfill {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &HashBackfill{
		store:             store,
		hasher:            hasher,
		logger:            logger,
		batchSize:         batchSize,
		placeholderDomain: placeholderDomain,
	}
}

// Run walks every active identity and fills in missing email and name hash
// links from the identity's primary contact fields.
func (h *HashBackfill) Run(ctx context.Context) (*BackfillReport, error) {
	report := &BackfillReport{}
	for offset := 0; ; offset += h.batchSize {
		identities, err := h.store.ListActiveIdentities(ctx, h.batchSize, offset)
		if err != nil {
			return report, err
		}
		if len(identities) == 0 {
			break
		}
		for i := range identities {
			report.IdentitiesScanned++
			if err := h.backfillIdentity(ctx, &identities[i], report); err != nil {
				return report, err
			}
		}
		if len(identities) < h.batchSize {
			break
		}
	}

	h.logger.Info("hash backfill complete",
		zap.Int("identities_scanned", report.IdentitiesScanned),
		zap.Int("hashes_added", report.HashesAdded),
		zap.Int("skipped", report.Skipped),
		zap.Int("conflicts", report.Conflicts))
	return report, nil
}

func (h *HashBackfill) backfillIdentity(ctx context.Context, identity *domain.CanonicalIdentity, report *BackfillReport) error {
	// Placeholder contacts are synthetic; hashing them would create match
	// keys for addresses no customer ever used.
	if identity.PrimaryEmail == "" || IsPlaceholderEmail(identity.PrimaryEmail, h.placeholderDomain) {
		report.Skipped++
		return nil
	}

	if err := h.addHash(ctx, identity.ID, domain.IdentifierEmailHash, h.hasher.HashEmail(identity.PrimaryEmail), domain.ConfidenceEmailHash, report); err != nil {
		return err
	}
	if identity.PrimaryName != "" {
		if err := h.addHash(ctx, identity.ID, domain.IdentifierNameHash, h.hasher.HashName(identity.PrimaryName), domain.ConfidenceNameHash, report); err != nil {
			return err
		}
	}
	return nil
}

func (h *HashBackfill) addHash(ctx context.Context, canonicalID string, idType domain.IdentifierType, value string, confidence float64, report *BackfillReport) error {
	if value == "" {
		return nil
	}
	if _, err := h.store.LookupOwner(ctx, idType, value); err == nil {
		return nil
	} else if !errors.Is(err, graph.ErrNotFound) {
		return err
	}

	err := h.store.Link(ctx, domain.IdentityLink{
		IDType:      idType,
		IDValue:     value,
		CanonicalID: canonicalID,
		Source:      SourcePIIBackfill,
		Confidence:  confidence,
		Verified:    true,
	})
	if err == nil {
		report.HashesAdded++
		return nil
	}

	var conflict *graph.LinkConflictError
	if errors.As(err, &conflict) {
		// Two customers sharing a name hash is expected; a hash link never
		// justifies overwriting ownership or forcing a merge.
		h.logger.Debug("hash already owned elsewhere",
			zap.String("id_type", string(idType)),
			zap.String("owner", conflict.OwnerID),
			zap.String("requested", canonicalID))
		report.Conflicts++
		return nil
	}
	return err
}
