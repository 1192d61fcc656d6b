package identity

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/cache"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/graph"
	"github.com/spec-kit/identity-service/internal/source"
)

// ProfileAssembler joins a resolved identity with everything known about the
// customer behind it. Assembly is read-only: an unknown customer yields
// (nil, nil), never a lazily created identity, and upstream failures degrade
// the profile instead of failing it.
type ProfileAssembler struct {
	store             graph.Store
	resolver          *Resolver
	orders            source.OrderHistorySource
	profiles          *cache.ProfileCache
	logger            *zap.Logger
	recentOrdersLimit int
}

// NewProfileAssembler constructs an assembler. profiles may be nil.
func NewProfileAssembler(
	store graph.Store,
	resolver *Resolver,
	orders source.OrderHistorySource,
	profiles *cache.ProfileCache,
	logger *zap.Logger,
	recentOrdersLimit int,
) *ProfileAssembler {
	if recentOrdersLimit <= 0 {
		recentOrdersLimit = 5
	}
	return &ProfileAssembler{
		store:             store,
		resolver:          resolver,
		orders:            orders,
		profiles:          profiles,
		logger:            logger,
		recentOrdersLimit: recentOrdersLimit,
	}
}

// GetCompleteProfile resolves the query and assembles the full customer view
// behind the match: linked identifiers, behavioral intelligence, and recent
// orders. Intelligence and orders come from the order-history source via the
// identity's e-commerce link; without one the profile carries identifiers
// only.
func (a *ProfileAssembler) GetCompleteProfile(ctx context.Context, q Query) (*domain.Profile, error) {
	identity, err := a.resolver.Resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, nil
	}
	return a.assemble(ctx, identity)
}

// GetProfileByID assembles the profile for a known canonical ID, following a
// merge hop the same way resolution does.
func (a *ProfileAssembler) GetProfileByID(ctx context.Context, canonicalID string) (*domain.Profile, error) {
	identity, err := a.resolver.activeIdentity(ctx, canonicalID)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, nil
	}
	return a.assemble(ctx, identity)
}

func (a *ProfileAssembler) assemble(ctx context.Context, identity *domain.CanonicalIdentity) (*domain.Profile, error) {
	if cached := a.profiles.Get(ctx, identity.ID); cached != nil {
		return cached, nil
	}

	links, err := a.store.ListLinks(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	profile := &domain.Profile{
		CanonicalID:   identity.ID,
		Email:         identity.PrimaryEmail,
		Name:          identity.PrimaryName,
		CustomerSince: &identity.CreatedAt,
		Identifiers:   make([]domain.LinkedIdentifier, 0, len(links)),
		RecentOrders:  []domain.Order{},
	}

	var ecommerceID string
	for _, link := range links {
		profile.Identifiers = append(profile.Identifiers, domain.LinkedIdentifier{
			Type:       link.IDType,
			Value:      link.IDValue,
			Source:     link.Source,
			Confidence: link.Confidence,
			Verified:   link.Verified,
		})
		if link.IDType == domain.IdentifierEcommerceID && ecommerceID == "" {
			ecommerceID = link.IDValue
		}
	}

	if ecommerceID != "" {
		a.attachOrderHistory(ctx, profile, ecommerceID)
	}

	a.profiles.Set(ctx, profile)
	return profile, nil
}

func (a *ProfileAssembler) attachOrderHistory(ctx context.Context, profile *domain.Profile, ecommerceID string) {
	intel, err := a.orders.Intelligence(ctx, ecommerceID)
	if err != nil {
		a.logger.Warn("intelligence lookup failed, serving degraded profile",
			zap.String("canonical_id", profile.CanonicalID), zap.Error(err))
	} else if intel != nil {
		enrichIntelligence(intel)
		profile.Intelligence = intel
	}

	orders, err := a.orders.RecentOrders(ctx, ecommerceID, a.recentOrdersLimit)
	if err != nil {
		a.logger.Warn("recent orders lookup failed, serving degraded profile",
			zap.String("canonical_id", profile.CanonicalID), zap.Error(err))
		return
	}
	if orders != nil {
		profile.RecentOrders = orders
	}
}

// enrichIntelligence derives the presentation fields the raw aggregates
// leave blank: average order value when only totals are present, the value
// tier, the churn level, and coarse behavior tags.
func enrichIntelligence(intel *domain.CustomerIntelligence) {
	if intel.AvgOrderValue == 0 && intel.TotalOrders > 0 {
		intel.AvgOrderValue = intel.LifetimeValue / float64(intel.TotalOrders)
	}
	intel.ValueTier = domain.ValueTierForLTV(intel.LifetimeValue)
	intel.ChurnRiskLevel = domain.ChurnRiskForScore(intel.ChurnRiskScore)
	intel.Behaviors = inferBehaviors(intel)
}

func inferBehaviors(intel *domain.CustomerIntelligence) []string {
	var behaviors []string
	if intel.TotalOrders >= 10 {
		behaviors = append(behaviors, "frequent_buyer")
	} else if intel.TotalOrders == 1 {
		behaviors = append(behaviors, "one_time_buyer")
	}
	if intel.AvgOrderValue >= 200 {
		behaviors = append(behaviors, "big_basket")
	}
	if intel.DaysSinceLastPurchase != nil {
		switch {
		case *intel.DaysSinceLastPurchase <= 30:
			behaviors = append(behaviors, "recently_active")
		case *intel.DaysSinceLastPurchase >= 180:
			behaviors = append(behaviors, "lapsed")
		}
	}
	if intel.CustomerTenureDays != nil && *intel.CustomerTenureDays >= 365 {
		behaviors = append(behaviors, "long_term_customer")
	}
	return behaviors
}
