package alerts

import (
	"fmt"

	"github.com/ecomguard/telemetry-guardrail/internal/engines/anomaly"
	"github.com/ecomguard/telemetry-guardrail/internal/engines/drift"
	"github.com/ecomguard/telemetry-guardrail/internal/engines/kalman"
	"github.com/ecomguard/telemetry-guardrail/internal/types"
)

// FromViolation creates a contract_violation alert from a validator
// finding. lastGoodPrice is the SKU's most recently retained price
// before this record, if any (spec.md §3's per-SKU price history).
func (m *Manager) FromViolation(v types.Violation, lastGoodPrice float64, hasLastGoodPrice bool) types.Alert {
	message := fmt.Sprintf("%s for sku %s: %s", v.ViolationType, v.SKU, v.Reason)
	var lastGood map[string]interface{}
	if hasLastGoodPrice {
		lastGood = map[string]interface{}{"last_good_price": lastGoodPrice}
	}
	metadata := map[string]interface{}{
		"violation_type": string(v.ViolationType),
	}
	return m.Create(types.AlertContractViolation, v.Severity, message, v.SKU, lastGood, metadata)
}

// FromPriceDrift creates a drift alert from the shared price-window
// detector result.
func (m *Manager) FromPriceDrift(res drift.Result) types.Alert {
	return m.fromDrift("price", res)
}

// FromStockDrift creates a drift alert from the shared stock-window
// detector result.
func (m *Manager) FromStockDrift(res drift.Result) types.Alert {
	return m.fromDrift("stock", res)
}

func (m *Manager) fromDrift(metric string, res drift.Result) types.Alert {
	message := fmt.Sprintf("%s distribution drift detected: PSI=%.3f, KS p=%.4f", metric, res.PSI, res.KSPValue)
	lastGood := map[string]interface{}{
		"baseline_mean": res.BaselineMean,
	}
	metadata := map[string]interface{}{
		"metric":     metric,
		"psi":        res.PSI,
		"ks_stat":    res.KSStat,
		"ks_p_value": res.KSPValue,
		"recent_mean": res.RecentMean,
	}
	return m.Create(types.AlertDrift, res.Severity, message, "", lastGood, metadata)
}

// FromConversionDrift creates a drift alert from the per-SKU
// conversion-rate drift result (spec.md §4.2). This is the Drift
// Detector's own conversion-rate test, distinct from the Kalman
// filter's deviation test (§4.3), which is tagged
// AlertConversionDeviation instead.
func (m *Manager) FromConversionDrift(sku string, res drift.ConversionResult) types.Alert {
	message := fmt.Sprintf("conversion rate drift for sku %s: baseline=%.4f recent=%.4f (p=%.4f)",
		sku, res.BaselineMean, res.RecentMean, res.PValue)
	lastGood := map[string]interface{}{
		"expected_conversion": res.BaselineMean,
	}
	metadata := map[string]interface{}{
		"metric":     "conversion rate",
		"p_value":    res.PValue,
		"delta_mean": res.DeltaMean,
	}
	severity := conversionDriftSeverity(res)
	return m.Create(types.AlertDrift, severity, message, sku, lastGood, metadata)
}

func conversionDriftSeverity(res drift.ConversionResult) types.Severity {
	switch {
	case res.PValue < 0.01:
		return types.SeverityCritical
	case res.PValue < 0.05:
		return types.SeverityHigh
	default:
		return types.SeverityMedium
	}
}

// FromAnomaly creates an anomaly alert from the anomaly detector's
// prediction.
func (m *Manager) FromAnomaly(sku string, pred anomaly.Prediction) types.Alert {
	message := fmt.Sprintf("anomaly detected for sku %s: score=%.3f", sku, pred.Score)
	metadata := map[string]interface{}{
		"score":       pred.Score,
		"explanation": pred.Explanation,
	}
	return m.Create(types.AlertAnomaly, pred.Severity, message, sku, nil, metadata)
}

// FromConversionDeviation creates a conversion_deviation alert from the
// Kalman filter's deviation test.
func (m *Manager) FromConversionDeviation(sku string, dev kalman.Deviation) types.Alert {
	message := fmt.Sprintf("conversion rate for sku %s deviated from the tracked estimate: z=%.2f (observed=%.4f, estimate=%.4f)",
		sku, dev.ZScore, dev.Observed, dev.Estimate)
	lastGood := map[string]interface{}{
		"expected_conversion": dev.Estimate,
		"uncertainty":         dev.Uncertainty,
	}
	metadata := map[string]interface{}{
		"z_score":  dev.ZScore,
		"observed": dev.Observed,
	}
	return m.Create(types.AlertConversionDeviation, dev.Severity, message, sku, lastGood, metadata)
}
