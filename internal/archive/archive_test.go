package archive

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ecomguard/telemetry-guardrail/internal/types"
)

func TestOpen_WritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "violations.csv")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	w.Close()

	w2, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected reopen error: %v", err)
	}
	defer w2.Close()

	n, err := rowCount(path)
	if err != nil {
		t.Fatalf("unexpected row count error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one header row after reopen, got %d", n)
	}
}

func TestAppend_AddsOneRowPerViolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "violations.csv")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	defer w.Close()

	v := types.Violation{
		Timestamp:     time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC),
		SKU:           "sku-1",
		ViolationType: types.ViolationNegativeStock,
		Reason:        "stock is negative",
		Severity:      types.SeverityHigh,
	}
	if err := w.Append(v); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	if err := w.Append(v); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}

	n, err := rowCount(path)
	if err != nil {
		t.Fatalf("unexpected row count error: %v", err)
	}
	if n != 3 { // header + 2 rows
		t.Fatalf("expected 3 rows (header + 2), got %d", n)
	}
}

func TestAppendAll_WritesEveryViolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "violations.csv")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	defer w.Close()

	violations := []types.Violation{
		{SKU: "sku-1", ViolationType: types.ViolationPriceJump, Severity: types.SeverityCritical},
		{SKU: "sku-2", ViolationType: types.ViolationUnitError, Severity: types.SeverityHigh},
	}
	if err := w.AppendAll(violations); err != nil {
		t.Fatalf("unexpected appendAll error: %v", err)
	}

	n, err := rowCount(path)
	if err != nil {
		t.Fatalf("unexpected row count error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows (header + 2), got %d", n)
	}
}
