package anomaly

import (
	"testing"
	"time"

	"github.com/ecomguard/telemetry-guardrail/internal/types"
)

func TestExtractFeatures_NoHistoryDefaults(t *testing.T) {
	h := NewHistory()
	rec := types.TelemetryRecord{SKU: "sku-1", Price: 50, Stock: 100, Views: 100, AddToCart: 10, Purchases: 2, Timestamp: time.Now()}

	f := h.ExtractFeatures(rec)
	if f[0] != 0 {
		t.Fatalf("expected price_delta_pct 0 with no history, got %v", f[0])
	}
	if f[1] != 0 {
		t.Fatalf("expected stock_change 0 with no history, got %v", f[1])
	}
	if f[2] != 0.5 {
		t.Fatalf("expected referrer_irregularity 0.5 with empty table, got %v", f[2])
	}
	if f[3] != 0.5 {
		t.Fatalf("expected conversion_deviation 0.5 with no sku history, got %v", f[3])
	}
}

func TestExtractFeatures_CartIrregularity(t *testing.T) {
	h := NewHistory()
	rec := types.TelemetryRecord{SKU: "sku-1", Price: 50, Stock: 100, Views: 100, AddToCart: 90, Purchases: 2, Timestamp: time.Now()}
	f := h.ExtractFeatures(rec)
	if f[4] != 1 {
		t.Fatalf("expected cart_irregularity 1 for add_to_cart/views > 0.5, got %v", f[4])
	}
}

func TestExtractFeatures_ZeroViewsConversionDeviation(t *testing.T) {
	h := NewHistory()
	rec := types.TelemetryRecord{SKU: "sku-1", Price: 50, Stock: 100, Views: 0, AddToCart: 0, Purchases: 0, Timestamp: time.Now()}
	f := h.ExtractFeatures(rec)
	if f[3] != 0 {
		t.Fatalf("expected conversion_deviation 0 when views=0, got %v", f[3])
	}
	if f[4] != 0 {
		t.Fatalf("expected cart_irregularity 0 when views=0, got %v", f[4])
	}
}

func TestUpdate_HistoryCapped(t *testing.T) {
	h := NewHistory()
	for i := 0; i < 150; i++ {
		h.Update(types.TelemetryRecord{SKU: "sku-1", Price: 50, Stock: 100, Views: 100, AddToCart: 10, Purchases: 2, Timestamp: time.Now()})
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.skus["sku-1"].prices) != maxHistoryLen {
		t.Fatalf("expected price history capped at %d, got %d", maxHistoryLen, len(h.skus["sku-1"].prices))
	}
}
