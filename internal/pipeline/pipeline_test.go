package pipeline

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ecomguard/telemetry-guardrail/internal/alerts"
	"github.com/ecomguard/telemetry-guardrail/internal/config"
	"github.com/ecomguard/telemetry-guardrail/internal/engines/anomaly"
	"github.com/ecomguard/telemetry-guardrail/internal/engines/drift"
	"github.com/ecomguard/telemetry-guardrail/internal/types"
)

func validRecord(sku string, price float64, at time.Time) types.TelemetryRecord {
	return types.TelemetryRecord{
		Timestamp: at,
		SKU:       sku,
		Price:     price,
		Stock:     10,
		Views:     100,
		AddToCart: 20,
		Purchases: 5,
		Referrer:  "search",
	}
}

func TestIngest_AcceptsCleanRecord(t *testing.T) {
	p := New(config.NewDefaultConfig())
	rec := validRecord("sku-1", 19.99, time.Now())

	res := p.Ingest(context.Background(), rec)
	if !res.Success {
		t.Fatalf("expected clean record to be accepted, got %+v", res)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("expected no violations, got %+v", res.Violations)
	}
}

func TestIngest_ShapeFailureDropsRecordBeforeDetectors(t *testing.T) {
	p := New(config.NewDefaultConfig())
	rec := validRecord("", 19.99, time.Now()) // empty SKU fails ShapeCheck

	res := p.Ingest(context.Background(), rec)
	if res.Success {
		t.Fatalf("expected shape failure to reject the record")
	}
	if len(res.Violations) != 1 || res.Violations[0].ViolationType != types.ViolationSchemaError {
		t.Fatalf("expected a single schema_error violation, got %+v", res.Violations)
	}
	if p.Drift.PriceState() != drift.StateEmpty {
		t.Fatalf("expected drift windows untouched by a dropped record")
	}
}

func TestIngest_NegativeStockCreatesViolationAlert(t *testing.T) {
	p := New(config.NewDefaultConfig())
	rec := validRecord("sku-2", 19.99, time.Now())
	rec.Stock = -5

	res := p.Ingest(context.Background(), rec)
	if res.Success {
		t.Fatalf("expected negative stock to fail validation")
	}
	if res.AlertsCreated == 0 {
		t.Fatalf("expected at least one alert to be created")
	}

	active, _ := p.Alerts.Get(alerts.Filter{})
	if len(active) == 0 {
		t.Fatalf("expected the alert to be listed")
	}
}

func TestIngest_InstrumentsMetrics(t *testing.T) {
	p := New(config.NewDefaultConfig())
	p.Ingest(context.Background(), validRecord("sku-3", 19.99, time.Now()))

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	p.Metrics.Handler().ServeHTTP(w, req)
	body := w.Body.String()

	if !strings.Contains(body, "ingest_requests_total") {
		t.Fatalf("expected ingest_requests_total in metrics exposition")
	}
	if !strings.Contains(body, "records_processed_total") {
		t.Fatalf("expected records_processed_total in metrics exposition")
	}
}

func TestIngest_TracksValidationPassRate(t *testing.T) {
	p := New(config.NewDefaultConfig())
	p.Ingest(context.Background(), validRecord("sku-5", 19.99, time.Now()))
	bad := validRecord("sku-5", 19.99, time.Now())
	bad.Stock = -1
	p.Ingest(context.Background(), bad)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	p.Metrics.Handler().ServeHTTP(w, req)
	body := w.Body.String()

	if !strings.Contains(body, "validation_pass_rate 0.5") {
		t.Fatalf("expected validation_pass_rate to reflect one pass of two records, got:\n%s", body)
	}
}

func TestWarmBaseline_SeedsDriftWithoutAlerts(t *testing.T) {
	p := New(config.NewDefaultConfig())
	var records []types.TelemetryRecord
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 20; i++ {
		records = append(records, validRecord("sku-4", 10.0, base.Add(time.Duration(i)*time.Second)))
	}

	if err := p.WarmBaseline(records, anomaly.DefaultForestConfig()); err != nil {
		t.Fatalf("unexpected warm baseline error: %v", err)
	}
	active, _ := p.Alerts.Get(alerts.Filter{})
	if len(active) != 0 {
		t.Fatalf("expected no alerts from warm baseline, got %+v", active)
	}
}
