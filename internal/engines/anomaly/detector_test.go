package anomaly

import (
	"strings"
	"testing"
	"time"

	"github.com/ecomguard/telemetry-guardrail/internal/types"
)

func TestPredict_UntrainedModel(t *testing.T) {
	d := NewDetector()
	pred := d.Predict(recAt("sku-1", 50, 100))
	if pred.IsAnomaly {
		t.Fatalf("expected untrained model to report no anomaly")
	}
	if pred.Reason != "Model not trained" {
		t.Fatalf("expected 'Model not trained' reason, got %q", pred.Reason)
	}
}

func TestTrain_RequiresMinimumBatch(t *testing.T) {
	d := NewDetector()
	if err := d.Train(recsAt("sku-1", 50, 100, 5), DefaultForestConfig()); err == nil {
		t.Fatalf("expected training error for batch smaller than 10 records")
	}
}

func TestPredict_FlagsGrossPriceOutlier(t *testing.T) {
	d := NewDetector()
	baseline := recsAt("sku-1", 50, 100, 100)
	if err := d.Train(baseline, DefaultForestConfig()); err != nil {
		t.Fatalf("train failed: %v", err)
	}

	pred := d.Predict(recAt("sku-1", 50000, 100))
	if !pred.IsAnomaly {
		t.Fatalf("expected gross price outlier to be flagged as anomaly, score=%v", pred.Score)
	}
	if pred.Label != -1 {
		t.Fatalf("expected label -1, got %d", pred.Label)
	}

	joined := strings.Join(pred.Explanation, " | ")
	if !strings.Contains(joined, "Unusually high price") && !strings.Contains(joined, "Large price change") {
		t.Fatalf("expected explanation to mention price, got %v", pred.Explanation)
	}
}

func TestPredict_NormalPointIsNotAnomaly(t *testing.T) {
	d := NewDetector()
	baseline := recsAt("sku-1", 50, 100, 100)
	if err := d.Train(baseline, DefaultForestConfig()); err != nil {
		t.Fatalf("train failed: %v", err)
	}

	pred := d.Predict(recAt("sku-1", 50.5, 101))
	if pred.IsAnomaly {
		t.Fatalf("expected a near-baseline point to not be flagged, score=%v explanation=%v", pred.Score, pred.Explanation)
	}
}

// TestTrain_UpdatesHistoryBeforeExtractingFeatures guards the ordering
// in buildTrainingMatrix: with a price/stock sequence that actually
// varies record to record, history-update-then-extract makes every
// training row's own delta features zero (each record becomes its own
// "last" value before its features are read). A regression back to
// extract-then-update would instead see each record's delta against
// its predecessor, which this varying sequence makes nonzero.
func TestTrain_UpdatesHistoryBeforeExtractingFeatures(t *testing.T) {
	d := NewDetector()
	records := make([]types.TelemetryRecord, minTrainingSize+5)
	for i := range records {
		records[i] = recAt("sku-1", 100+float64(i)*7, 500+int64(i)*11)
	}

	matrix := d.buildTrainingMatrix(records)
	for i, feats := range matrix {
		if feats[0] != 0 {
			t.Fatalf("record %d: expected price_delta_pct=0 under update-before-extract, got %v", i, feats[0])
		}
		if feats[1] != 0 {
			t.Fatalf("record %d: expected stock_change=0 under update-before-extract, got %v", i, feats[1])
		}
	}
}

func recAt(sku string, price float64, stock int64) types.TelemetryRecord {
	return types.TelemetryRecord{SKU: sku, Price: price, Stock: stock, Views: 100, AddToCart: 10, Purchases: 2, Timestamp: time.Now()}
}

func recsAt(sku string, price float64, stock int64, n int) []types.TelemetryRecord {
	out := make([]types.TelemetryRecord, n)
	for i := range out {
		out[i] = recAt(sku, price, stock)
	}
	return out
}
