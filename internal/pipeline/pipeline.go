// Package pipeline wires the five engines into the fixed processing
// order of spec.md §5: validator -> drift update -> anomaly predict ->
// Kalman deviation, funnelling every finding into the AlertManager.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/ecomguard/telemetry-guardrail/internal/alerts"
	"github.com/ecomguard/telemetry-guardrail/internal/config"
	"github.com/ecomguard/telemetry-guardrail/internal/engines/anomaly"
	"github.com/ecomguard/telemetry-guardrail/internal/engines/drift"
	"github.com/ecomguard/telemetry-guardrail/internal/engines/kalman"
	"github.com/ecomguard/telemetry-guardrail/internal/engines/validator"
	"github.com/ecomguard/telemetry-guardrail/internal/metrics"
	"github.com/ecomguard/telemetry-guardrail/internal/types"
)

// Pipeline owns one instance of each engine plus the alert manager. It
// holds no lock of its own: every mutation happens inside the engine
// each call delegates to.
type Pipeline struct {
	Validator *validator.Validator
	Drift     *drift.Detector
	Anomaly   *anomaly.Detector
	Kalman    *kalman.Filter
	Alerts    *alerts.Manager
	Metrics   *metrics.Registry

	breaker *gobreaker.CircuitBreaker
}

// IngestResult is the ingest surface's response (spec.md §6).
type IngestResult struct {
	Success       bool
	Message       string
	Violations    []types.Violation
	AlertsCreated int
}

func New(cfg config.GuardrailConfig) *Pipeline {
	p := &Pipeline{
		Validator: validator.New(cfg.ValidatorConfig()),
		Drift:     drift.New(cfg.DriftConfig()),
		Anomaly:   anomaly.NewDetector(),
		Kalman:    kalman.New(cfg.KalmanFilterConfig()),
		Alerts:    alerts.New(cfg.AlertManagerConfig()),
		Metrics:   metrics.NewRegistry(),
	}

	// Unexpected engine faults (spec.md §7) trip the breaker rather
	// than repeatedly invoking a wedged pipeline; grounded on
	// infra/breakers/breakers.go's gobreaker.Settings wrapper.
	st := gobreaker.Settings{
		Name:        "ingest-pipeline",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	p.breaker = gobreaker.NewCircuitBreaker(st)

	return p
}

// WarmBaseline trains the anomaly model and seeds the drift windows
// from a batch of historical records, without creating alerts.
func (p *Pipeline) WarmBaseline(records []types.TelemetryRecord, forestCfg anomaly.ForestConfig) error {
	for _, rec := range records {
		norm := rec
		norm.Normalize()
		p.Drift.AddPrice(norm.Price)
		p.Drift.AddStock(float64(norm.Stock))
	}
	return p.Anomaly.Train(records, forestCfg)
}

// Ingest runs one record through the full pipeline and returns the
// ingest surface's response (spec.md §6). The fault-isolation breaker
// wraps the whole traversal: a panic inside any engine is recovered,
// counted as a breaker failure, and surfaces as a processing error
// rather than crashing the caller.
func (p *Pipeline) Ingest(ctx context.Context, rec types.TelemetryRecord) IngestResult {
	traceID := uuid.NewString()
	logger := log.With().Str("trace_id", traceID).Str("sku", rec.SKU).Logger()
	timer := p.Metrics.StartIngestTimer()

	out, err := p.breaker.Execute(func() (res interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("engine panic: %v", r)
			}
		}()
		return p.process(ctx, rec, logger)
	})
	if err != nil {
		logger.Error().Err(err).Msg("ingest pipeline fault")
		p.Metrics.ProcessingErrors.WithLabelValues("pipeline_fault").Inc()
		timer.ObserveStatus("error")
		return IngestResult{Success: false, Message: fmt.Sprintf("processing error: %v", err)}
	}

	result := out.(IngestResult)
	if result.Success {
		timer.ObserveStatus("accepted")
	} else {
		timer.ObserveStatus("rejected")
	}
	return result
}

func (p *Pipeline) process(ctx context.Context, rec types.TelemetryRecord, logger zerolog.Logger) (IngestResult, error) {
	if ctx.Err() != nil {
		return IngestResult{}, ctx.Err()
	}

	lastGoodPrice, hasLastGoodPrice := p.Validator.LastPrice(rec.SKU)
	valResult := p.Validator.Validate(rec)
	p.Metrics.RecordValidation(valResult.IsValid)
	alertsCreated := 0

	for _, v := range valResult.Violations {
		a := p.Alerts.FromViolation(v, lastGoodPrice, hasLastGoodPrice)
		alertsCreated++
		p.Metrics.ValidationFailures.WithLabelValues(string(v.ViolationType)).Inc()
		p.Metrics.AlertsTotal.WithLabelValues(string(a.Severity), string(a.AlertType)).Inc()
		logger.Warn().Str("violation_type", string(v.ViolationType)).Msg("contract violation")
	}

	if valResult.Dropped {
		logger.Warn().Msg("record dropped before detector updates: shape check failed")
		return IngestResult{
			Success:    false,
			Message:    ingestMessage(false),
			Violations: valResult.Violations,
		}, nil
	}

	norm := valResult.NormalizedRecord

	p.Drift.AddPrice(norm.Price)
	p.Drift.AddStock(float64(norm.Stock))
	if res := p.Drift.DetectPriceDrift(); res.Reason == "" {
		p.Metrics.DriftScorePrice.Set(res.PSI)
		if res.DriftDetected {
			a := p.Alerts.FromPriceDrift(res)
			alertsCreated++
			p.Metrics.DriftDetections.WithLabelValues("price", string(res.Severity)).Inc()
			p.Metrics.AlertsTotal.WithLabelValues(string(a.Severity), string(a.AlertType)).Inc()
		}
	}
	if res := p.Drift.DetectStockDrift(); res.Reason == "" {
		p.Metrics.DriftScoreStock.Set(res.PSI)
		if res.DriftDetected {
			a := p.Alerts.FromStockDrift(res)
			alertsCreated++
			p.Metrics.DriftDetections.WithLabelValues("stock", string(res.Severity)).Inc()
			p.Metrics.AlertsTotal.WithLabelValues(string(a.Severity), string(a.AlertType)).Inc()
		}
	}
	if res := p.Drift.ObserveConversion(rec.SKU, norm); res.DriftDetected {
		a := p.Alerts.FromConversionDrift(rec.SKU, res)
		alertsCreated++
		p.Metrics.DriftDetections.WithLabelValues("conversion", string(a.Severity)).Inc()
		p.Metrics.AlertsTotal.WithLabelValues(string(a.Severity), string(a.AlertType)).Inc()
	}

	pred := p.Anomaly.Predict(norm)
	p.Metrics.AnomalyScore.Observe(pred.Score)
	if pred.IsAnomaly {
		a := p.Alerts.FromAnomaly(rec.SKU, pred)
		alertsCreated++
		p.Metrics.AnomalyDetections.WithLabelValues(string(pred.Severity)).Inc()
		p.Metrics.AlertsTotal.WithLabelValues(string(a.Severity), string(a.AlertType)).Inc()
	}

	if dev, ok := p.Kalman.Observe(rec.SKU, norm.Views, norm.Purchases); ok && dev.Deviant {
		a := p.Alerts.FromConversionDeviation(rec.SKU, dev)
		alertsCreated++
		p.Metrics.AlertsTotal.WithLabelValues(string(a.Severity), string(a.AlertType)).Inc()
	}

	p.refreshActiveAlertsGauge()
	if alertsCreated > 0 {
		p.Metrics.AlertLatency.Observe(time.Since(rec.Timestamp).Seconds())
	}

	return IngestResult{
		Success:       valResult.IsValid,
		Message:       ingestMessage(valResult.IsValid),
		Violations:    valResult.Violations,
		AlertsCreated: alertsCreated,
	}, nil
}

// refreshActiveAlertsGauge recomputes active_alerts{severity,alert_type}
// from the unresolved alert set. Called after every record so the
// gauge stays current without a separate polling goroutine.
func (p *Pipeline) refreshActiveAlertsGauge() {
	unresolved := false
	active, _ := p.Alerts.Get(alerts.Filter{Resolved: &unresolved})

	counts := make(map[[2]string]int)
	for _, a := range active {
		counts[[2]string{string(a.Severity), string(a.AlertType)}]++
	}
	p.Metrics.ActiveAlerts.Reset()
	for key, n := range counts {
		p.Metrics.ActiveAlerts.WithLabelValues(key[0], key[1]).Set(float64(n))
	}
}

func ingestMessage(valid bool) string {
	if valid {
		return "accepted"
	}
	return "contract violation detected"
}
