package domain

import "time"

// ValueTier buckets customers by lifetime value.
type ValueTier string

const (
	ValueTierVIP       ValueTier = "VIP"
	ValueTierHighValue ValueTier = "HIGH_VALUE"
	ValueTierRegular   ValueTier = "REGULAR"
	ValueTierNew       ValueTier = "NEW"
)

// ChurnRiskLevel buckets customers by churn risk score.
type ChurnRiskLevel string

const (
	ChurnRiskHigh   ChurnRiskLevel = "HIGH"
	ChurnRiskMedium ChurnRiskLevel = "MEDIUM"
	ChurnRiskLow    ChurnRiskLevel = "LOW"
)

// ValueTierForLTV maps a lifetime value to its tier.
func ValueTierForLTV(ltv float64) ValueTier {
	switch {
	case ltv >= 5000:
		return ValueTierVIP
	case ltv >= 1000:
		return ValueTierHighValue
	case ltv >= 100:
		return ValueTierRegular
	default:
		return ValueTierNew
	}
}

// ChurnRiskForScore maps a churn risk score in [0,1] to its level.
func ChurnRiskForScore(score float64) ChurnRiskLevel {
	switch {
	case score >= 0.7:
		return ChurnRiskHigh
	case score >= 0.4:
		return ChurnRiskMedium
	default:
		return ChurnRiskLow
	}
}

// CustomerIntelligence holds behavioral aggregates fetched from the
// order-history source, keyed by the e-commerce customer identifier.
type CustomerIntelligence struct {
	EcommerceCustomerID   string         `json:"ecommerce_customer_id"`
	LifetimeValue         float64        `json:"lifetime_value"`
	TotalOrders           int            `json:"total_orders"`
	ChurnRiskScore        float64        `json:"churn_risk_score"`
	AvgOrderValue         float64        `json:"avg_order_value"`
	DaysSinceLastPurchase *int           `json:"days_since_last_purchase,omitempty"`
	CustomerTenureDays    *int           `json:"customer_tenure_days,omitempty"`
	Behaviors             []string       `json:"behaviors,omitempty"`
	ValueTier             ValueTier      `json:"value_tier,omitempty"`
	ChurnRiskLevel        ChurnRiskLevel `json:"churn_risk_level,omitempty"`
}

// OrderLineItem is a single product line on an order.
type OrderLineItem struct {
	Title    string  `json:"title"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is one purchase from the order-history source, with its line items
// grouped together and shipment tracking attached.
type Order struct {
	OrderID           string          `json:"order_id"`
	OrderNumber       string          `json:"order_number"`
	OrderDate         *time.Time      `json:"order_date,omitempty"`
	Total             float64         `json:"total"`
	FinancialStatus   string          `json:"financial_status,omitempty"`
	FulfillmentStatus string          `json:"fulfillment_status,omitempty"`
	Products          []OrderLineItem `json:"products"`
	TrackingNumbers   []string        `json:"tracking_numbers,omitempty"`
	TrackingURLs      []string        `json:"tracking_urls,omitempty"`
	ShippingCarrier   string          `json:"shipping_carrier,omitempty"`
}

// LinkedIdentifier is the API-facing shape of one identity graph edge.
type LinkedIdentifier struct {
	Type       IdentifierType `json:"type"`
	Value      string         `json:"value"`
	Source     string         `json:"source"`
	Confidence float64        `json:"confidence"`
	Verified   bool           `json:"verified"`
}

// Profile is the unified customer view assembled behind a resolved identity.
// Intelligence and RecentOrders degrade to absent/empty when the
// order-history source has nothing, never to an error.
type Profile struct {
	CanonicalID   string                `json:"canonical_id"`
	Email         string                `json:"email"`
	Name          string                `json:"name,omitempty"`
	CustomerSince *time.Time            `json:"customer_since,omitempty"`
	Identifiers   []LinkedIdentifier    `json:"identifiers"`
	Intelligence  *CustomerIntelligence `json:"intelligence,omitempty"`
	RecentOrders  []Order               `json:"recent_orders"`
}
