// Package types holds the shared data model that every engine and the
// alert manager exchange: telemetry observations, contract violations,
// and alerts. Nothing here owns mutable state — that belongs to the
// engines in internal/engines and internal/alerts.
package types

import (
	"fmt"
	"time"
)

// TelemetryRecord is a single observation of a product's price, stock,
// funnel counts, and referrer.
type TelemetryRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	SKU         string    `json:"sku"`
	Price       float64   `json:"price"`
	Stock       int64     `json:"stock"`
	Views       int64     `json:"views"`
	AddToCart   int64     `json:"add_to_cart"`
	Purchases   int64     `json:"purchases"`
	Referrer    string    `json:"referrer,omitempty"`
}

// ConversionRate returns purchases/views, or 0 when views is 0.
func (r TelemetryRecord) ConversionRate() float64 {
	if r.Views <= 0 {
		return 0
	}
	return float64(r.Purchases) / float64(r.Views)
}

// Normalize applies the cents->dollars heuristic in place: a raw price
// above 1000 is interpreted as cents. Returns the normalized price.
func (r *TelemetryRecord) Normalize() float64 {
	if r.Price > 1000 {
		r.Price = r.Price / 100
	}
	return r.Price
}

// ShapeCheck validates the structural invariants that must hold before
// any detector touches the record: non-empty SKU, non-negative funnel
// counts, and a non-negative price. The funnel ordering
// purchases <= add_to_cart <= views is not checked here; the validator
// checks it separately.
func (r TelemetryRecord) ShapeCheck() error {
	if r.SKU == "" {
		return fmt.Errorf("missing sku")
	}
	if r.Views < 0 || r.AddToCart < 0 || r.Purchases < 0 {
		return fmt.Errorf("negative funnel count")
	}
	if r.Price < 0 {
		return fmt.Errorf("negative price")
	}
	return nil
}

// Severity is the shared severity scale used by violations, drift,
// anomalies, and Kalman deviations alike.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ViolationType enumerates the contract-validator failure modes.
type ViolationType string

const (
	ViolationSchemaError      ViolationType = "schema_error"
	ViolationNegativeStock    ViolationType = "negative_stock"
	ViolationPriceJump        ViolationType = "price_jump"
	ViolationUnitError        ViolationType = "unit_error"
	ViolationInvalidTimestamp ViolationType = "invalid_timestamp"
	ViolationMissingRequired  ViolationType = "missing_required"
	ViolationOutOfBounds      ViolationType = "out_of_bounds"
)

// Violation is a single contract-validator finding.
type Violation struct {
	Timestamp     time.Time     `json:"timestamp"`
	SKU           string        `json:"sku"`
	ViolationType ViolationType `json:"violation_type"`
	Reason        string        `json:"reason"`
	Severity      Severity      `json:"severity"`
}

// AlertType enumerates the kinds of alert the AlertManager can create.
type AlertType string

const (
	AlertContractViolation   AlertType = "contract_violation"
	AlertDrift               AlertType = "drift"
	AlertAnomaly             AlertType = "anomaly"
	AlertConversionDeviation AlertType = "conversion_deviation"
)

// Alert is the AlertManager's enriched, queryable record of a finding.
type Alert struct {
	AlertID        string                 `json:"alert_id"`
	AlertType      AlertType              `json:"alert_type"`
	Severity       Severity               `json:"severity"`
	Message        string                 `json:"message"`
	SKU            string                 `json:"sku,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	LastGoodState  map[string]interface{} `json:"last_good_state,omitempty"`
	SuggestedFix   string                 `json:"suggested_fix,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Acknowledged   bool                   `json:"acknowledged"`
	Resolved       bool                   `json:"resolved"`
}
