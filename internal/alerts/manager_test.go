package alerts

import (
	"testing"
	"time"

	"github.com/ecomguard/telemetry-guardrail/internal/types"
)

func TestCreate_IDsAreUniqueAndMonotone(t *testing.T) {
	m := New(DefaultConfig())
	ids := make(map[string]bool)
	var last string
	for i := 0; i < 20; i++ {
		a := m.Create(types.AlertAnomaly, types.SeverityMedium, "test", "sku-1", nil, nil)
		if ids[a.AlertID] {
			t.Fatalf("duplicate alert id: %s", a.AlertID)
		}
		ids[a.AlertID] = true
		if last != "" && a.AlertID <= last {
			t.Fatalf("expected monotone ids, got %s after %s", a.AlertID, last)
		}
		last = a.AlertID
	}
}

func TestAcknowledgeResolve_Idempotent(t *testing.T) {
	m := New(DefaultConfig())
	a := m.Create(types.AlertAnomaly, types.SeverityLow, "test", "sku-1", nil, nil)

	if !m.Acknowledge(a.AlertID) {
		t.Fatalf("expected acknowledge to succeed")
	}
	if !m.Acknowledge(a.AlertID) {
		t.Fatalf("expected second acknowledge to remain idempotently true")
	}
	if !m.Resolve(a.AlertID) {
		t.Fatalf("expected resolve to succeed")
	}
	if !m.Resolve(a.AlertID) {
		t.Fatalf("expected second resolve to remain idempotently true")
	}

	alerts, _ := m.Get(Filter{})
	if len(alerts) != 1 || !alerts[0].Acknowledged || !alerts[0].Resolved {
		t.Fatalf("expected alert to be both acknowledged and resolved, got %+v", alerts)
	}
}

func TestAcknowledge_UnknownID(t *testing.T) {
	m := New(DefaultConfig())
	if m.Acknowledge("ALERT-20260101-000001") {
		t.Fatalf("expected acknowledge of unknown id to return false")
	}
	if m.Resolve("ALERT-20260101-000001") {
		t.Fatalf("expected resolve of unknown id to return false")
	}
}

func TestGet_FilterByResolved(t *testing.T) {
	m := New(DefaultConfig())
	a := m.Create(types.AlertDrift, types.SeverityHigh, "test", "sku-1", nil, nil)
	m.Create(types.AlertDrift, types.SeverityHigh, "test2", "sku-2", nil, nil)
	m.Resolve(a.AlertID)

	resolvedTrue := true
	alerts, _ := m.Get(Filter{Resolved: &resolvedTrue})
	if len(alerts) != 1 || alerts[0].AlertID != a.AlertID {
		t.Fatalf("expected only the resolved alert, got %+v", alerts)
	}

	resolvedFalse := false
	alerts, _ = m.Get(Filter{Resolved: &resolvedFalse})
	if len(alerts) != 1 || alerts[0].AlertID == a.AlertID {
		t.Fatalf("expected only the unresolved alert, got %+v", alerts)
	}
}

func TestGet_NewestFirstAndLimit(t *testing.T) {
	m := New(DefaultConfig())
	first := m.Create(types.AlertDrift, types.SeverityHigh, "first", "", nil, nil)
	_ = first
	second := m.Create(types.AlertDrift, types.SeverityHigh, "second", "", nil, nil)

	alerts, _ := m.Get(Filter{Limit: 1})
	if len(alerts) != 1 || alerts[0].AlertID != second.AlertID {
		t.Fatalf("expected newest-first with limit 1 to return %s, got %+v", second.AlertID, alerts)
	}
}

func TestTTLExpiry_RemovesFromListingsAndStats(t *testing.T) {
	m := New(Config{TTL: 10 * time.Millisecond})
	fakeNow := time.Now()
	m.now = func() time.Time { return fakeNow }

	m.Create(types.AlertAnomaly, types.SeverityLow, "test", "sku-1", nil, nil)

	fakeNow = fakeNow.Add(1 * time.Hour)
	alerts, stats := m.Get(Filter{})
	if len(alerts) != 0 {
		t.Fatalf("expected expired alert to be purged from listing, got %+v", alerts)
	}
	if stats.Total != 0 {
		t.Fatalf("expected expired alert to be purged from stats, got %+v", stats)
	}
}

func TestStats_Aggregates(t *testing.T) {
	m := New(DefaultConfig())
	m.Create(types.AlertAnomaly, types.SeverityCritical, "a", "sku-1", nil, nil)
	second := m.Create(types.AlertDrift, types.SeverityHigh, "b", "sku-2", nil, nil)
	m.Acknowledge(second.AlertID)

	stats := m.Stats()
	if stats.Total != 2 {
		t.Fatalf("expected total 2, got %d", stats.Total)
	}
	if stats.BySeverity[types.SeverityCritical] != 1 || stats.BySeverity[types.SeverityHigh] != 1 {
		t.Fatalf("unexpected severity breakdown: %+v", stats.BySeverity)
	}
	if stats.Unacknowledged != 1 {
		t.Fatalf("expected 1 unacknowledged alert, got %d", stats.Unacknowledged)
	}
	if stats.Unresolved != 2 {
		t.Fatalf("expected 2 unresolved alerts, got %d", stats.Unresolved)
	}
}

func TestFromViolation_SuggestedFix(t *testing.T) {
	m := New(DefaultConfig())
	v := types.Violation{
		Timestamp:     time.Now(),
		SKU:           "sku-1",
		ViolationType: types.ViolationNegativeStock,
		Reason:        "stock is negative",
		Severity:      types.SeverityHigh,
	}
	a := m.FromViolation(v, 10, true)
	if a.SuggestedFix == "" {
		t.Fatalf("expected a suggested fix for negative_stock")
	}
	if a.AlertType != types.AlertContractViolation {
		t.Fatalf("expected contract_violation alert type, got %v", a.AlertType)
	}
}
