package anomaly

import (
	"fmt"
	"sync"

	"github.com/ecomguard/telemetry-guardrail/internal/types"
)

const minTrainingSize = 10

// thresholds, and their human-readable labels, used by Explain.
var explanationLabels = [featureCount]struct {
	threshold float64
	label     string
}{
	{0.5, "Large price change"},
	{5.0, "Large stock change"},
	{0.7, "Unusual traffic source"},
	{0.5, "Conversion rate deviation"},
	{0.5, "Irregular cart-to-view ratio"},
	{5.0, "Unusually high price"},
	{5.0, "Unusually high stock"},
}

// Prediction is the result of scoring one record.
type Prediction struct {
	IsAnomaly   bool
	Label       int // +1 normal, -1 anomaly
	Score       float64
	Severity    types.Severity
	Explanation []string
	Reason      string // "Model not trained" when untrained
}

// Detector owns the per-SKU/referrer history and the trained forest.
// History mutations (Predict, via its call to Update) take an
// exclusive lock; the forest itself needs no lock once trained
// (spec.md §5).
type Detector struct {
	history *History

	mu     sync.RWMutex
	forest *Forest
}

func NewDetector() *Detector {
	return &Detector{history: NewHistory()}
}

// Train fits the isolation forest on a baseline batch: each record is
// run through history-update then feature-extract, in that order, so
// every record's features are read from a history that already
// includes the record itself (see buildTrainingMatrix). Predict uses
// the opposite order.
func (d *Detector) Train(records []types.TelemetryRecord, cfg ForestConfig) error {
	if len(records) < minTrainingSize {
		return fmt.Errorf("need at least %d baseline records to train, got %d", minTrainingSize, len(records))
	}

	forest := Train(d.buildTrainingMatrix(records), cfg)

	d.mu.Lock()
	d.forest = forest
	d.mu.Unlock()
	return nil
}

// buildTrainingMatrix folds each record into history before extracting
// its own feature vector, so a record's delta-style features (price
// and stock change) are always computed against itself as "last" and
// come out zero: the same self-referential behavior as the reference
// implementation's train().
func (d *Detector) buildTrainingMatrix(records []types.TelemetryRecord) [][featureCount]float64 {
	matrix := make([][featureCount]float64, 0, len(records))
	for _, rec := range records {
		d.history.Update(rec)
		feats := d.history.ExtractFeatures(rec)
		matrix = append(matrix, feats)
	}
	return matrix
}

// Predict extracts features from the CURRENT record without yet
// updating history, scores it against the trained forest, then
// updates history so the next record sees this one.
func (d *Detector) Predict(rec types.TelemetryRecord) Prediction {
	feats := d.history.ExtractFeatures(rec)

	d.mu.RLock()
	forest := d.forest
	d.mu.RUnlock()

	defer d.history.Update(rec)

	if !forest.Trained() {
		return Prediction{Reason: "Model not trained"}
	}

	score := forest.Score(feats)
	isAnomaly := score < forest.Threshold()

	pred := Prediction{
		IsAnomaly: isAnomaly,
		Score:     score,
	}
	if isAnomaly {
		pred.Label = -1
		pred.Severity = anomalySeverity(score)
		pred.Explanation = explain(feats)
	} else {
		pred.Label = 1
	}
	return pred
}

func anomalySeverity(score float64) types.Severity {
	switch {
	case score < -0.5:
		return types.SeverityCritical
	case score < -0.3:
		return types.SeverityHigh
	default:
		return types.SeverityMedium
	}
}

// explain returns a human string for every feature component above its
// threshold, or a generic message when none cross.
func explain(feats [featureCount]float64) []string {
	var out []string
	for i, v := range feats {
		if v > explanationLabels[i].threshold {
			out = append(out, fmt.Sprintf("[%d] > %.1f: %s", i, explanationLabels[i].threshold, explanationLabels[i].label))
		}
	}
	if len(out) == 0 {
		out = []string{"Multiple subtle anomalies detected."}
	}
	return out
}
