// Package kalman implements the per-SKU scalar Kalman filter that
// tracks conversion rate and flags observations that deviate from the
// filter's current estimate.
package kalman

import (
	"math"
	"sync"

	"github.com/ecomguard/telemetry-guardrail/internal/types"
)

// Config holds the filter's tunables (spec.md §6 kalman.*).
type Config struct {
	ProcessVariance     float64
	MeasurementVariance float64
	InitialEstimate     float64
	InitialUncertainty  float64
	ThresholdSigma      float64
}

// DefaultConfig matches spec.md §6's defaults.
func DefaultConfig() Config {
	return Config{
		ProcessVariance:     0.01,
		MeasurementVariance: 0.05,
		InitialEstimate:     0.05,
		InitialUncertainty:  1.0,
		ThresholdSigma:      2.0,
	}
}

// state is a SKU's tracked estimate and uncertainty.
type state struct {
	estimate    float64
	uncertainty float64
}

// Deviation is the result of testing one observation before the filter
// updates on it.
type Deviation struct {
	Deviant        bool
	ZScore         float64
	Severity       types.Severity
	Estimate       float64 // x-hat before this observation's update
	Uncertainty    float64 // P before this observation's update
	Observed       float64 // z = purchases/views
}

// Filter owns the per-SKU (estimate, uncertainty) state map. All
// mutating calls (Observe) take an exclusive lock; EstimateFor and
// AllEstimates are reads and take a shared lock.
type Filter struct {
	cfg Config

	mu     sync.RWMutex
	states map[string]*state
}

func New(cfg Config) *Filter {
	return &Filter{cfg: cfg, states: make(map[string]*state)}
}

// Observe runs the deviation test against the filter's pre-update state,
// then performs the predict/update step regardless of the test's
// outcome, so the filter always learns from what it sees (spec.md
// §4.3: "Then perform the update so the filter learns from the
// observation regardless").
func (f *Filter) Observe(sku string, views, purchases int64) (Deviation, bool) {
	if views <= 0 {
		return Deviation{}, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.states[sku]
	if !ok {
		st = &state{estimate: f.cfg.InitialEstimate, uncertainty: f.cfg.InitialUncertainty}
		f.states[sku] = st
	}

	z := float64(purchases) / float64(views)

	// Deviation test against the pre-update state.
	sigma := math.Sqrt(st.uncertainty)
	if sigma < 0.1 {
		sigma = 0.1
	}
	zScore := math.Abs(z-st.estimate) / sigma

	dev := Deviation{
		ZScore:      zScore,
		Estimate:    st.estimate,
		Uncertainty: st.uncertainty,
		Observed:    z,
		Deviant:     zScore > f.cfg.ThresholdSigma,
	}
	if dev.Deviant {
		switch {
		case zScore > 3.0:
			dev.Severity = types.SeverityCritical
		case zScore > 2.5:
			dev.Severity = types.SeverityHigh
		default:
			dev.Severity = types.SeverityMedium
		}
	}

	// Predict.
	predictedEstimate := st.estimate
	predictedUncertainty := st.uncertainty + f.cfg.ProcessVariance

	// Effective measurement variance shrinks as sample size grows.
	r := f.cfg.MeasurementVariance / math.Sqrt(float64(views))

	// Gain and update.
	gain := predictedUncertainty / (predictedUncertainty + r)
	newEstimate := predictedEstimate + gain*(z-predictedEstimate)
	newEstimate = clamp(newEstimate, 0, 1)
	newUncertainty := (1 - gain) * predictedUncertainty

	st.estimate = newEstimate
	st.uncertainty = newUncertainty

	return dev, true
}

// EstimateFor returns the current (estimate, uncertainty) for a SKU, if
// any observation has been made.
func (f *Filter) EstimateFor(sku string) (estimate, uncertainty float64, ok bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	st, found := f.states[sku]
	if !found {
		return 0, 0, false
	}
	return st.estimate, st.uncertainty, true
}

// AllEstimates returns a snapshot of every tracked SKU's state.
func (f *Filter) AllEstimates() map[string][2]float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string][2]float64, len(f.states))
	for sku, st := range f.states {
		out[sku] = [2]float64{st.estimate, st.uncertainty}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
