package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/graph"
	"github.com/spec-kit/identity-service/internal/pii"
	"github.com/spec-kit/identity-service/internal/source"
)

const (
	SourceOrderHistory = "order_history"
	SourceTicketing    = "ticketing"
)

// BuildReport summarizes one graph build run.
type BuildReport struct {
	EcommerceSeen     int
	EcommerceCreated  int
	TicketingSeen     int
	TicketingAttached int
	TicketingCreated  int
	TicketingSkipped  int
	ConflictsMerged   int
	Merge             MergeReport
}

// GraphBuilder seeds the identity graph from the two upstream systems. Pass
// one creates one identity per distinct e-commerce customer ID; pass two
// walks ticketing customers and either attaches them to an existing identity
// or creates a new one. Both passes skip identifiers that are already linked,
// so a rerun over the same upstream data changes nothing.
type GraphBuilder struct {
	store             graph.Store
	orders            source.OrderHistorySource
	ticketing         source.TicketingSource
	hasher            *pii.Hasher
	merger            *MergeResolver
	dispatcher        events.Dispatcher
	logger            *zap.Logger
	batchSize         int
	placeholderDomain string
}

// NewGraphBuilder constructs a builder. dispatcher may be nil.
func NewGraphBuilder(
	store graph.Store,
	orders source.OrderHistorySource,
	ticketing source.TicketingSource,
	hasher *pii.Hasher,
	merger *MergeResolver,
	dispatcher events.Dispatcher,
	logger *zap.Logger,
	batchSize int,
	placeholderDomain string,
) *GraphBuilder {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &GraphBuilder{
		store:             store,
		orders:            orders,
		ticketing:         ticketing,
		hasher:            hasher,
		merger:            merger,
		dispatcher:        dispatcher,
		logger:            logger,
		batchSize:         batchSize,
		placeholderDomain: placeholderDomain,
	}
}

// Run executes both seeding passes and then a merge pass over any duplicate
// emails the seeding surfaced.
func (b *GraphBuilder) Run(ctx context.Context) (*BuildReport, error) {
	report := &BuildReport{}

	if err := b.seedFromOrderHistory(ctx, report); err != nil {
		return report, fmt.Errorf("seed order history: %w", err)
	}
	if err := b.seedFromTicketing(ctx, report); err != nil {
		return report, fmt.Errorf("seed ticketing: %w", err)
	}

	mergeReport, err := b.merger.Run(ctx)
	if err != nil {
		return report, fmt.Errorf("merge pass: %w", err)
	}
	report.Merge = *mergeReport

	b.logger.Info("graph build complete",
		zap.Int("ecommerce_seen", report.EcommerceSeen),
		zap.Int("ecommerce_created", report.EcommerceCreated),
		zap.Int("ticketing_seen", report.TicketingSeen),
		zap.Int("ticketing_attached", report.TicketingAttached),
		zap.Int("ticketing_created", report.TicketingCreated),
		zap.Int("conflicts_merged", report.ConflictsMerged))
	return report, nil
}

// PlaceholderEmail builds the synthetic primary email used for identities
// seeded from order history alone. The reserved domain guarantees it can
// never collide with a real customer address.
func (b *GraphBuilder) PlaceholderEmail(ecommerceID string) string {
	return fmt.Sprintf("ecom-%s@%s", strings.ToLower(ecommerceID), b.placeholderDomain)
}

// IsPlaceholderEmail reports whether an email was minted by PlaceholderEmail.
func IsPlaceholderEmail(email, placeholderDomain string) bool {
	return strings.HasSuffix(strings.ToLower(email), "@"+placeholderDomain)
}

func (b *GraphBuilder) seedFromOrderHistory(ctx context.Context, report *BuildReport) error {
	for offset := 0; ; offset += b.batchSize {
		ids, err := b.orders.DistinctCustomerIDs(ctx, b.batchSize, offset)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		for _, id := range ids {
			report.EcommerceSeen++
			if err := b.seedEcommerceCustomer(ctx, id, report); err != nil {
				return err
			}
		}
		if len(ids) < b.batchSize {
			return nil
		}
	}
}

func (b *GraphBuilder) seedEcommerceCustomer(ctx context.Context, ecommerceID string, report *BuildReport) error {
	_, err := b.store.LookupOwner(ctx, domain.IdentifierEcommerceID, ecommerceID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, graph.ErrNotFound) {
		return err
	}

	placeholder := b.PlaceholderEmail(ecommerceID)
	identity, err := b.store.CreateIdentity(ctx, placeholder, "")
	if err != nil {
		return err
	}
	if err := b.link(ctx, domain.IdentityLink{
		IDType:      domain.IdentifierEcommerceID,
		IDValue:     ecommerceID,
		CanonicalID: identity.ID,
		Source:      SourceOrderHistory,
		Confidence:  domain.ConfidenceExact,
		Verified:    true,
	}); err != nil {
		return err
	}
	report.EcommerceCreated++
	return nil
}

func (b *GraphBuilder) seedFromTicketing(ctx context.Context, report *BuildReport) error {
	for offset := 0; ; offset += b.batchSize {
		customers, err := b.ticketing.Customers(ctx, b.batchSize, offset)
		if err != nil {
			return err
		}
		if len(customers) == 0 {
			return nil
		}
		for _, customer := range customers {
			report.TicketingSeen++
			if err := b.seedTicketingCustomer(ctx, customer, report); err != nil {
				return err
			}
		}
		if len(customers) < b.batchSize {
			return nil
		}
	}
}

// seedTicketingCustomer attaches one ticketing record. Matching order: an
// existing ticketing_id link wins (rerun), then a shared e-commerce customer
// ID, then an exact normalized-email match. Anything else becomes a new
// identity. Email conflicts surfaced by linking are handed to the merge
// resolver immediately rather than left for the post-pass.
func (b *GraphBuilder) seedTicketingCustomer(ctx context.Context, customer source.TicketingCustomer, report *BuildReport) error {
	if customer.ID == "" {
		report.TicketingSkipped++
		return nil
	}
	if _, err := b.store.LookupOwner(ctx, domain.IdentifierTicketingID, customer.ID); err == nil {
		return nil
	} else if !errors.Is(err, graph.ErrNotFound) {
		return err
	}

	email := b.hasher.Normalizer().NormalizeEmail(customer.Email)

	owner, err := b.store.LookupOwner(ctx, domain.IdentifierEcommerceID, customer.ID)
	if err == nil {
		return b.attachTicketing(ctx, owner, customer, email, true, report)
	}
	if !errors.Is(err, graph.ErrNotFound) {
		return err
	}

	if email != "" {
		owner, err = b.store.LookupOwner(ctx, domain.IdentifierEmail, email)
		if err == nil {
			return b.attachTicketing(ctx, owner, customer, email, false, report)
		}
		if !errors.Is(err, graph.ErrNotFound) {
			return err
		}
	}

	if email == "" {
		// No email and no identifier overlap: nothing this record could ever
		// be matched back to.
		report.TicketingSkipped++
		return nil
	}

	identity, err := b.store.CreateIdentity(ctx, email, customer.Name)
	if err != nil {
		return err
	}
	if err := b.link(ctx, domain.IdentityLink{
		IDType:      domain.IdentifierTicketingID,
		IDValue:     customer.ID,
		CanonicalID: identity.ID,
		Source:      SourceTicketing,
		Confidence:  domain.ConfidenceExact,
		Verified:    true,
	}); err != nil {
		return err
	}
	if err := b.linkEmail(ctx, identity.ID, email, report); err != nil {
		return err
	}
	report.TicketingCreated++
	return nil
}

// attachTicketing binds a ticketing record onto an existing identity. When
// the match came through a shared customer ID and the identity still carries
// a placeholder contact, the real email and name replace it.
func (b *GraphBuilder) attachTicketing(ctx context.Context, ownerID string, customer source.TicketingCustomer, email string, upgradeContact bool, report *BuildReport) error {
	if err := b.link(ctx, domain.IdentityLink{
		IDType:      domain.IdentifierTicketingID,
		IDValue:     customer.ID,
		CanonicalID: ownerID,
		Source:      SourceTicketing,
		Confidence:  domain.ConfidenceExact,
		Verified:    true,
	}); err != nil {
		return err
	}
	if email != "" {
		if err := b.linkEmail(ctx, ownerID, email, report); err != nil {
			return err
		}
	}

	if upgradeContact && email != "" {
		identity, err := b.store.GetIdentity(ctx, ownerID)
		if err != nil {
			return err
		}
		if IsPlaceholderEmail(identity.PrimaryEmail, b.placeholderDomain) {
			if err := b.store.UpdatePrimaryContact(ctx, ownerID, email, customer.Name); err != nil {
				return err
			}
		}
	}
	report.TicketingAttached++
	b.publish(ctx, events.Event{
		Type:        events.EventIdentityLinked,
		CanonicalID: ownerID,
		PerformedBy: SourceTicketing,
		Payload: events.IdentityLinkedPayload{
			IDType:     domain.IdentifierTicketingID,
			Source:     SourceTicketing,
			Confidence: domain.ConfidenceExact,
			Verified:   true,
		},
	})
	return nil
}

// linkEmail links a plaintext email, routing ownership conflicts straight to
// the merge resolver. After the merge collapses the two owners the link is
// retried once against the survivor.
func (b *GraphBuilder) linkEmail(ctx context.Context, canonicalID, email string, report *BuildReport) error {
	link := domain.IdentityLink{
		IDType:      domain.IdentifierEmail,
		IDValue:     email,
		CanonicalID: canonicalID,
		Source:      SourceTicketing,
		Confidence:  domain.ConfidenceExact,
		Verified:    true,
	}

	err := b.store.Link(ctx, link)
	if err == nil {
		return nil
	}

	var conflict *graph.LinkConflictError
	if !errors.As(err, &conflict) {
		return err
	}

	b.logger.Info("email owned by another identity, merging",
		zap.String("owner", conflict.OwnerID),
		zap.String("requested", canonicalID))
	if _, err := b.merger.MergeClass(ctx, email, []string{conflict.OwnerID, canonicalID}); err != nil {
		return err
	}
	report.ConflictsMerged++

	survivor, err := b.store.LookupOwner(ctx, domain.IdentifierEmail, email)
	if err != nil {
		return err
	}
	link.CanonicalID = survivor
	return b.store.Link(ctx, link)
}

func (b *GraphBuilder) publish(ctx context.Context, event events.Event) {
	if b.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = b.dispatcher.Publish(ctx, event)
}

func (b *GraphBuilder) link(ctx context.Context, link domain.IdentityLink) error {
	err := b.store.Link(ctx, link)
	if err == nil {
		return nil
	}
	var conflict *graph.LinkConflictError
	if errors.As(err, &conflict) {
		// Hard identifiers are system-unique upstream; a conflict here means
		// the pair already belongs to a merged-away identity. Log and move on.
		b.logger.Warn("identifier already owned, skipping",
			zap.String("id_type", string(link.IDType)),
			zap.String("owner", conflict.OwnerID),
			zap.String("requested", link.CanonicalID))
		return nil
	}
	return err
}
