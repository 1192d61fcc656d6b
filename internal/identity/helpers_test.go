package identity

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/graph"
	"github.com/spec-kit/identity-service/internal/observability"
	"github.com/spec-kit/identity-service/internal/pii"
	"github.com/spec-kit/identity-service/internal/source"
)

const testPlaceholderDomain = "placeholder.invalid"

func newTestHasher() *pii.Hasher {
	return pii.NewHasher("test-salt", pii.NewNormalizer([]string{"gmail.com"}))
}

// testRig bundles the collaborators most identity tests need.
type testRig struct {
	store      graph.Store
	hasher     *pii.Hasher
	resolver   *Resolver
	merger     *MergeResolver
	dispatcher *recordingDispatcher
}

func newTestRig() *testRig {
	store := graph.NewMemoryStore()
	hasher := newTestHasher()
	logger := zap.NewNop()
	dispatcher := &recordingDispatcher{}
	resolver := NewResolver(store, hasher, dispatcher, logger, observability.NewMetrics())
	merger := NewMergeResolver(store, nil, dispatcher, logger)
	return &testRig{store: store, hasher: hasher, resolver: resolver, merger: merger, dispatcher: dispatcher}
}

func (r *testRig) newBuilder(orders source.OrderHistorySource, ticketing source.TicketingSource) *GraphBuilder {
	return NewGraphBuilder(r.store, orders, ticketing, r.hasher, r.merger, r.dispatcher, zap.NewNop(), 2, testPlaceholderDomain)
}

// recordingDispatcher captures published events for assertions.
type recordingDispatcher struct {
	published []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.published = append(d.published, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) byType(eventType events.EventType) []events.Event {
	var out []events.Event
	for _, event := range d.published {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

// recordingCache captures profile invalidations for assertions.
type recordingCache struct {
	invalidated [][]string
}

func (c *recordingCache) Invalidate(_ context.Context, canonicalIDs ...string) {
	c.invalidated = append(c.invalidated, canonicalIDs)
}

// stubOrders serves canned order-history data.
type stubOrders struct {
	customerIDs []string
	intel       map[string]*domain.CustomerIntelligence
	orders      map[string][]domain.Order
	intelErr    error
	ordersErr   error
}

func (s *stubOrders) DistinctCustomerIDs(_ context.Context, limit, offset int) ([]string, error) {
	if offset >= len(s.customerIDs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.customerIDs) {
		end = len(s.customerIDs)
	}
	return s.customerIDs[offset:end], nil
}

func (s *stubOrders) Intelligence(_ context.Context, ecommerceID string) (*domain.CustomerIntelligence, error) {
	if s.intelErr != nil {
		return nil, s.intelErr
	}
	return s.intel[ecommerceID], nil
}

func (s *stubOrders) RecentOrders(_ context.Context, ecommerceID string, _ int) ([]domain.Order, error) {
	if s.ordersErr != nil {
		return nil, s.ordersErr
	}
	return s.orders[ecommerceID], nil
}

// stubTicketing serves canned ticketing customers.
type stubTicketing struct {
	customers []source.TicketingCustomer
}

func (s *stubTicketing) Customers(_ context.Context, limit, offset int) ([]source.TicketingCustomer, error) {
	if offset >= len(s.customers) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.customers) {
		end = len(s.customers)
	}
	return s.customers[offset:end], nil
}

var errUpstreamDown = errors.New("upstream unavailable")
