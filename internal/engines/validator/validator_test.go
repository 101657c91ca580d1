package validator

import (
	"testing"
	"time"

	"github.com/ecomguard/telemetry-guardrail/internal/types"
)

func rec(sku string, price float64, stock, views, cart, purchases int64) types.TelemetryRecord {
	return types.TelemetryRecord{
		Timestamp: time.Now(),
		SKU:       sku,
		Price:     price,
		Stock:     stock,
		Views:     views,
		AddToCart: cart,
		Purchases: purchases,
	}
}

func TestValidate_PriceJumpCritical(t *testing.T) {
	v := New(DefaultConfig())

	first := v.Validate(rec("sku-1", 19.99, 10, 100, 10, 1))
	if !first.IsValid {
		t.Fatalf("expected first record to be valid, got violations: %+v", first.Violations)
	}

	second := v.Validate(rec("sku-1", 1999.99, 10, 100, 10, 1))
	if second.IsValid {
		t.Fatalf("expected second record to be invalid")
	}
	found := false
	for _, viol := range second.Violations {
		if viol.ViolationType == types.ViolationPriceJump && viol.Severity == types.SeverityCritical {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a critical price_jump violation, got: %+v", second.Violations)
	}
}

func TestValidate_NegativeStock(t *testing.T) {
	v := New(DefaultConfig())
	res := v.Validate(rec("sku-2", 50, -10, 30, 3, 0))
	if res.IsValid {
		t.Fatalf("expected invalid result")
	}
	if len(res.Violations) != 1 || res.Violations[0].ViolationType != types.ViolationNegativeStock {
		t.Fatalf("expected single negative_stock violation, got: %+v", res.Violations)
	}
	if res.Violations[0].Severity != types.SeverityHigh {
		t.Fatalf("expected high severity, got %v", res.Violations[0].Severity)
	}
}

func TestValidate_UnitError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPrice = 1000
	v := New(cfg)
	res := v.Validate(rec("sku-3", 50000, 10, 100, 10, 1))
	if res.IsValid {
		t.Fatalf("expected invalid result")
	}
	if res.Violations[0].ViolationType != types.ViolationUnitError {
		t.Fatalf("expected unit_error, got %+v", res.Violations)
	}
	if res.Violations[0].Severity != types.SeverityCritical {
		t.Fatalf("expected critical severity, got %v", res.Violations[0].Severity)
	}
}

func TestValidate_CentsNormalization(t *testing.T) {
	v := New(DefaultConfig())
	res := v.Validate(rec("sku-4", 1999, 10, 100, 10, 1))
	if !res.IsValid {
		t.Fatalf("expected normalized price to be valid, got: %+v", res.Violations)
	}
	if res.NormalizedRecord.Price != 19.99 {
		t.Fatalf("expected normalized price 19.99, got %v", res.NormalizedRecord.Price)
	}
}

func TestValidate_FunnelInvariant(t *testing.T) {
	v := New(DefaultConfig())
	res := v.Validate(rec("sku-5", 10, 10, 5, 10, 1))
	if res.IsValid {
		t.Fatalf("expected invalid result for add_to_cart > views")
	}
	if res.Violations[0].ViolationType != types.ViolationSchemaError {
		t.Fatalf("expected schema_error, got %+v", res.Violations)
	}
}

func TestValidate_PriceHistoryCap(t *testing.T) {
	v := New(DefaultConfig())
	for i := 0; i < 150; i++ {
		v.Validate(rec("sku-6", 10, 10, 100, 10, 1))
	}
	if got := v.PriceHistoryLen("sku-6"); got != 100 {
		t.Fatalf("expected price history capped at 100, got %d", got)
	}
}

func TestValidate_EmptyHistoryIsDeterministic(t *testing.T) {
	v1 := New(DefaultConfig())
	v2 := New(DefaultConfig())
	r := rec("sku-7", 25, 5, 50, 5, 1)

	res1 := v1.Validate(r)
	res2 := v2.Validate(r)
	if len(res1.Violations) != len(res2.Violations) {
		t.Fatalf("expected identical violation counts from a fresh validator, got %d vs %d",
			len(res1.Violations), len(res2.Violations))
	}
}

func TestValidate_StaleTimestamp(t *testing.T) {
	v := New(DefaultConfig())
	v.now = func() time.Time { return time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC) }

	r := rec("sku-8", 25, 5, 50, 5, 1)
	r.Timestamp = time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)

	res := v.Validate(r)
	found := false
	for _, viol := range res.Violations {
		if viol.ViolationType == types.ViolationInvalidTimestamp {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected invalid_timestamp violation for stale feed, got: %+v", res.Violations)
	}
}
