// Package source defines the external collaborator boundaries the identity
// core reads from: the order-history system and the ticketing system. Both
// are read-only from this service's perspective.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/identity-service/internal/domain"
)

// OrderHistorySource exposes the e-commerce order-history system: distinct
// customer identifiers for seeding, behavioral intelligence aggregates, and
// recent orders for profile assembly.
type OrderHistorySource interface {
	// DistinctCustomerIDs pages through unique e-commerce customer IDs.
	DistinctCustomerIDs(ctx context.Context, limit, offset int) ([]string, error)
	// Intelligence returns behavioral aggregates for a customer, or nil when
	// the customer has none.
	Intelligence(ctx context.Context, ecommerceID string) (*domain.CustomerIntelligence, error)
	// RecentOrders returns up to limit recent orders, newest first, with line
	// items grouped per order.
	RecentOrders(ctx context.Context, ecommerceID string, limit int) ([]domain.Order, error)
}

type postgresOrderHistory struct {
	pool *pgxpool.Pool
}

// NewPostgresOrderHistory reads order history from the shared sales schema.
func NewPostgresOrderHistory(pool *pgxpool.Pool) OrderHistorySource {
	return &postgresOrderHistory{pool: pool}
}

func (s *postgresOrderHistory) DistinctCustomerIDs(ctx context.Context, limit, offset int) ([]string, error) {
	const query = `
        SELECT DISTINCT customer_id::text
        FROM combined_sales
        WHERE customer_id IS NOT NULL
        ORDER BY customer_id::text
        LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *postgresOrderHistory) Intelligence(ctx context.Context, ecommerceID string) (*domain.CustomerIntelligence, error) {
	const query = `
        SELECT customer_id::text, lifetime_value, total_orders, churn_risk_score,
               avg_order_value, days_since_last_purchase, customer_tenure_days
        FROM customer_profiles
        WHERE customer_id::text = $1`

	intel := &domain.CustomerIntelligence{}
	var ltv, churn, aov *float64
	var totalOrders *int
	err := s.pool.QueryRow(ctx, query, ecommerceID).Scan(
		&intel.EcommerceCustomerID,
		&ltv,
		&totalOrders,
		&churn,
		&aov,
		&intel.DaysSinceLastPurchase,
		&intel.CustomerTenureDays,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if ltv != nil {
		intel.LifetimeValue = *ltv
	}
	if totalOrders != nil {
		intel.TotalOrders = *totalOrders
	}
	if churn != nil {
		intel.ChurnRiskScore = *churn
	}
	if aov != nil {
		intel.AvgOrderValue = *aov
	}

	// Recency and tenure are frequently unset in the profile table; derive
	// them from order history when missing.
	if intel.DaysSinceLastPurchase == nil || intel.CustomerTenureDays == nil {
		if err := s.fillOrderSpan(ctx, ecommerceID, intel); err != nil {
			return nil, err
		}
	}
	return intel, nil
}

func (s *postgresOrderHistory) fillOrderSpan(ctx context.Context, ecommerceID string, intel *domain.CustomerIntelligence) error {
	const query = `
        SELECT MIN(order_date), MAX(order_date)
        FROM combined_sales
        WHERE customer_id::text = $1`

	var first, last *time.Time
	if err := s.pool.QueryRow(ctx, query, ecommerceID).Scan(&first, &last); err != nil {
		return err
	}
	now := time.Now().UTC()
	if intel.DaysSinceLastPurchase == nil && last != nil {
		days := int(now.Sub(*last).Hours() / 24)
		intel.DaysSinceLastPurchase = &days
	}
	if intel.CustomerTenureDays == nil && first != nil {
		days := int(now.Sub(*first).Hours() / 24)
		intel.CustomerTenureDays = &days
	}
	return nil
}

func (s *postgresOrderHistory) RecentOrders(ctx context.Context, ecommerceID string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 5
	}

	// One row per line item; over-fetch so limit orders survive grouping.
	const query = `
        SELECT order_id::text, order_number::text, order_date, order_total,
               financial_status, fulfillment_status,
               product_name, line_item_sales,
               tracking_number, tracking_url, shipping_carrier
        FROM combined_sales
        WHERE customer_id::text = $1
        ORDER BY order_date DESC, order_number DESC
        LIMIT $2`

	rows, err := s.pool.Query(ctx, query, ecommerceID, limit*10)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	index := make(map[string]int)
	for rows.Next() {
		var (
			orderID, orderNumber        string
			orderDate                   *time.Time
			total, lineItemSales        *float64
			financial, fulfillment      *string
			productName                 *string
			trackingNumber, trackingURL *string
			shippingCarrier             *string
		)
		if err := rows.Scan(
			&orderID,
			&orderNumber,
			&orderDate,
			&total,
			&financial,
			&fulfillment,
			&productName,
			&lineItemSales,
			&trackingNumber,
			&trackingURL,
			&shippingCarrier,
		); err != nil {
			return nil, err
		}

		pos, seen := index[orderID]
		if !seen {
			order := domain.Order{
				OrderID:     orderID,
				OrderNumber: orderNumber,
				OrderDate:   orderDate,
				Products:    []domain.OrderLineItem{},
			}
			if total != nil {
				order.Total = *total
			}
			if financial != nil {
				order.FinancialStatus = *financial
			}
			if fulfillment != nil {
				order.FulfillmentStatus = *fulfillment
			}
			if trackingNumber != nil && *trackingNumber != "" {
				order.TrackingNumbers = []string{*trackingNumber}
			}
			if trackingURL != nil && *trackingURL != "" {
				order.TrackingURLs = []string{*trackingURL}
			}
			if shippingCarrier != nil {
				order.ShippingCarrier = *shippingCarrier
			}
			orders = append(orders, order)
			pos = len(orders) - 1
			index[orderID] = pos
		}

		if productName != nil && *productName != "" {
			item := domain.OrderLineItem{Title: *productName, Quantity: 1}
			if lineItemSales != nil {
				item.Price = *lineItemSales
			}
			orders[pos].Products = append(orders[pos].Products, item)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}
