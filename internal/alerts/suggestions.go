package alerts

import "github.com/ecomguard/telemetry-guardrail/internal/types"

// suggestedFix maps a violation/alert kind to its canned remediation
// text (spec.md §4.5). Contract-violation alerts carry the violation
// type in metadata under "violation_type"; drift alerts carry the
// metric under "metric".
func suggestedFix(kind types.AlertType, metadata map[string]interface{}) string {
	switch kind {
	case types.AlertContractViolation:
		vt, _ := metadata["violation_type"].(string)
		switch types.ViolationType(vt) {
		case types.ViolationNegativeStock:
			return "Fix data pipeline to ensure non-negative stock values are emitted."
		case types.ViolationPriceJump:
			return "Verify price updates against the source system for the affected SKU."
		case types.ViolationUnitError:
			return "Normalize price units (cents vs dollars) at ingestion."
		case types.ViolationInvalidTimestamp:
			return "Check data feed freshness and time-zone settings."
		default:
			return "Validate data schema against the contract."
		}
	case types.AlertDrift:
		metric, _ := metadata["metric"].(string)
		if metric == "" {
			metric = "the affected metric"
		}
		return "Review " + metric + " trends for an upstream pricing, inventory, or feed change."
	case types.AlertAnomaly:
		return "Investigate data quality and system behavior for the affected SKU."
	case types.AlertConversionDeviation:
		return "Review conversion funnel instrumentation for the affected SKU."
	default:
		return ""
	}
}
