// Package validator implements the contract validator: schema,
// semantic, and stateful per-SKU price-history checks, with unit
// normalization.
package validator

import (
	"sync"
	"time"

	"github.com/ecomguard/telemetry-guardrail/internal/types"
)

const maxPriceHistory = 100

// Config holds the validator's tunables (spec.md §6).
type Config struct {
	PriceJumpThreshold float64
	MaxPrice           float64
	StaleAfter         time.Duration
	FutureTolerance    time.Duration
}

// DefaultConfig matches spec.md §6's defaults.
func DefaultConfig() Config {
	return Config{
		PriceJumpThreshold: 10.0,
		MaxPrice:           100000.0,
		StaleAfter:         24 * time.Hour,
		FutureTolerance:    1 * time.Hour,
	}
}

// Result is the validator's per-record outcome. Dropped marks a shape
// failure (spec.md §7 input fault): the record never reached
// normalization, so NormalizedRecord is unset and callers must not feed
// it to downstream engines.
type Result struct {
	IsValid          bool
	Dropped          bool
	Violations       []types.Violation
	NormalizedRecord types.TelemetryRecord
}

// Validator owns the bounded per-SKU price-history deques. All
// mutating calls (Validate) take an exclusive lock.
type Validator struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	prices  map[string][]float64
}

func New(cfg Config) *Validator {
	return &Validator{cfg: cfg, now: time.Now, prices: make(map[string][]float64)}
}

// Validate runs the pipeline of spec.md §4.1 in order: shape, price
// normalization, funnel invariants, range checks, stateful price-jump,
// and timestamp freshness. The price range check and the price-jump
// check compare the price as received (before the cents->dollars
// heuristic), and the per-SKU history retains received prices; the
// normalized price is what NormalizedRecord carries downstream. A
// record may accumulate multiple violations; it only short-circuits on
// a shape failure.
func (v *Validator) Validate(rec types.TelemetryRecord) Result {
	if err := rec.ShapeCheck(); err != nil {
		return Result{
			IsValid: false,
			Dropped: true,
			Violations: []types.Violation{{
				Timestamp:     rec.Timestamp,
				SKU:           rec.SKU,
				ViolationType: types.ViolationSchemaError,
				Reason:        err.Error(),
				Severity:      types.SeverityHigh,
			}},
		}
	}

	var violations []types.Violation
	norm := rec
	norm.Normalize()

	if norm.AddToCart > norm.Views || norm.Purchases > norm.AddToCart {
		violations = append(violations, types.Violation{
			Timestamp:     rec.Timestamp,
			SKU:           rec.SKU,
			ViolationType: types.ViolationSchemaError,
			Reason:        "funnel invariant violated: purchases <= add_to_cart <= views",
			Severity:      types.SeverityHigh,
		})
	}

	if norm.Stock < 0 {
		violations = append(violations, types.Violation{
			Timestamp:     rec.Timestamp,
			SKU:           rec.SKU,
			ViolationType: types.ViolationNegativeStock,
			Reason:        "stock is negative",
			Severity:      types.SeverityHigh,
		})
	}

	if rec.Price <= 0 || rec.Price > v.cfg.MaxPrice {
		violations = append(violations, types.Violation{
			Timestamp:     rec.Timestamp,
			SKU:           rec.SKU,
			ViolationType: types.ViolationUnitError,
			Reason:        "price out of bounds (0, max_price]",
			Severity:      types.SeverityCritical,
		})
	}

	if jump, ok := v.checkPriceJump(rec); ok {
		violations = append(violations, jump)
	}
	v.appendPrice(rec.SKU, rec.Price)

	if ts, ok := v.checkFreshness(rec); ok {
		violations = append(violations, ts)
	}

	return Result{
		IsValid:          len(violations) == 0,
		Violations:       violations,
		NormalizedRecord: norm,
	}
}

// checkPriceJump compares the received price against the most
// recently retained price for the SKU. It does not mutate state; the
// caller appends the new price via appendPrice after this check, so
// the history reflects strict arrival order.
func (v *Validator) checkPriceJump(rec types.TelemetryRecord) (types.Violation, bool) {
	v.mu.RLock()
	hist := v.prices[rec.SKU]
	var last float64
	if n := len(hist); n > 0 {
		last = hist[n-1]
	}
	v.mu.RUnlock()

	if last <= 0 {
		return types.Violation{}, false
	}

	ratio := rec.Price / last
	switch {
	case ratio > v.cfg.PriceJumpThreshold:
		return types.Violation{
			Timestamp:     rec.Timestamp,
			SKU:           rec.SKU,
			ViolationType: types.ViolationPriceJump,
			Reason:        "price increased beyond the jump threshold versus last retained price",
			Severity:      types.SeverityCritical,
		}, true
	case ratio < 1/v.cfg.PriceJumpThreshold:
		return types.Violation{
			Timestamp:     rec.Timestamp,
			SKU:           rec.SKU,
			ViolationType: types.ViolationPriceJump,
			Reason:        "price dropped beyond the jump threshold versus last retained price",
			Severity:      types.SeverityHigh,
		}, true
	default:
		return types.Violation{}, false
	}
}

// appendPrice adds the price to the SKU's deque, evicting the oldest
// entry once the deque exceeds maxPriceHistory.
func (v *Validator) appendPrice(sku string, price float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	hist := append(v.prices[sku], price)
	if len(hist) > maxPriceHistory {
		hist = hist[len(hist)-maxPriceHistory:]
	}
	v.prices[sku] = hist
}

func (v *Validator) checkFreshness(rec types.TelemetryRecord) (types.Violation, bool) {
	delta := v.now().Sub(rec.Timestamp)
	switch {
	case delta > v.cfg.StaleAfter:
		return types.Violation{
			Timestamp:     rec.Timestamp,
			SKU:           rec.SKU,
			ViolationType: types.ViolationInvalidTimestamp,
			Reason:        "stale feed",
			Severity:      types.SeverityMedium,
		}, true
	case delta < -v.cfg.FutureTolerance:
		return types.Violation{
			Timestamp:     rec.Timestamp,
			SKU:           rec.SKU,
			ViolationType: types.ViolationInvalidTimestamp,
			Reason:        "time-zone error",
			Severity:      types.SeverityMedium,
		}, true
	default:
		return types.Violation{}, false
	}
}

// PriceHistoryLen reports how many prices are retained for a SKU,
// mainly for tests asserting the 100-entry cap.
func (v *Validator) PriceHistoryLen(sku string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.prices[sku])
}

// LastPrice returns the most recently retained price for a SKU, before
// any record observed in the current call has been appended. Used by
// callers (the pipeline's alert enrichment) to snapshot a last-known-good
// value ahead of calling Validate.
func (v *Validator) LastPrice(sku string) (float64, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	hist := v.prices[sku]
	if len(hist) == 0 {
		return 0, false
	}
	return hist[len(hist)-1], true
}
