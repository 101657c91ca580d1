// Package config loads the guardrail's tunables from a YAML file,
// following the teacher's LoadXConfig(path) (*XConfig, error) pattern.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ecomguard/telemetry-guardrail/internal/alerts"
	"github.com/ecomguard/telemetry-guardrail/internal/engines/anomaly"
	"github.com/ecomguard/telemetry-guardrail/internal/engines/drift"
	"github.com/ecomguard/telemetry-guardrail/internal/engines/kalman"
	"github.com/ecomguard/telemetry-guardrail/internal/engines/validator"
)

// KalmanConfig mirrors spec.md §6's kalman.* tunables with YAML tags.
type KalmanConfig struct {
	ProcessVariance     float64 `yaml:"process_variance"`
	MeasurementVariance float64 `yaml:"measurement_variance"`
	InitialEstimate     float64 `yaml:"initial_estimate"`
	InitialUncertainty  float64 `yaml:"initial_uncertainty"`
	ThresholdSigma      float64 `yaml:"threshold_sigma"`
}

// AnomalyConfig mirrors spec.md §6's anomaly.* tunables.
type AnomalyConfig struct {
	Contamination float64 `yaml:"contamination"`
	NEstimators   int     `yaml:"n_estimators"`
	RandomSeed    int64   `yaml:"random_seed"`
}

// GuardrailConfig is the top-level configuration document.
type GuardrailConfig struct {
	AlertTTLSeconds     int           `yaml:"alert_ttl_seconds"`
	PriceJumpThreshold  float64       `yaml:"price_jump_threshold"`
	MaxPrice            float64       `yaml:"max_price"`
	PSIThreshold        float64       `yaml:"psi_threshold"`
	KSThreshold         float64       `yaml:"ks_threshold"`
	BaselineWindow      int           `yaml:"baseline_window"`
	Kalman              KalmanConfig  `yaml:"kalman"`
	Anomaly             AnomalyConfig `yaml:"anomaly"`
}

// NewDefaultConfig returns spec.md §6's defaults.
func NewDefaultConfig() GuardrailConfig {
	return GuardrailConfig{
		AlertTTLSeconds:    3600,
		PriceJumpThreshold: 10.0,
		MaxPrice:           100000.0,
		PSIThreshold:       0.2,
		KSThreshold:        0.05,
		BaselineWindow:     1000,
		Kalman: KalmanConfig{
			ProcessVariance:     0.01,
			MeasurementVariance: 0.05,
			InitialEstimate:     0.05,
			InitialUncertainty:  1.0,
			ThresholdSigma:      2.0,
		},
		Anomaly: AnomalyConfig{
			Contamination: 0.1,
			NEstimators:   100,
			RandomSeed:    42,
		},
	}
}

// Load reads a YAML config file, falling back to the defaults for any
// field the file doesn't override (the file is unmarshaled onto a
// copy of the defaults).
func Load(path string) (GuardrailConfig, error) {
	cfg := NewDefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ValidatorConfig adapts the loaded config to validator.Config.
func (c GuardrailConfig) ValidatorConfig() validator.Config {
	return validator.Config{
		PriceJumpThreshold: c.PriceJumpThreshold,
		MaxPrice:           c.MaxPrice,
		StaleAfter:         24 * time.Hour,
		FutureTolerance:    1 * time.Hour,
	}
}

// DriftConfig adapts the loaded config to drift.Config.
func (c GuardrailConfig) DriftConfig() drift.Config {
	return drift.Config{
		BaselineWindow: c.BaselineWindow,
		PSIThreshold:   c.PSIThreshold,
		KSThreshold:    c.KSThreshold,
	}
}

// KalmanFilterConfig adapts the loaded config to kalman.Config.
func (c GuardrailConfig) KalmanFilterConfig() kalman.Config {
	return kalman.Config{
		ProcessVariance:     c.Kalman.ProcessVariance,
		MeasurementVariance: c.Kalman.MeasurementVariance,
		InitialEstimate:     c.Kalman.InitialEstimate,
		InitialUncertainty:  c.Kalman.InitialUncertainty,
		ThresholdSigma:      c.Kalman.ThresholdSigma,
	}
}

// AnomalyForestConfig adapts the loaded config to anomaly.ForestConfig.
func (c GuardrailConfig) AnomalyForestConfig() anomaly.ForestConfig {
	return anomaly.ForestConfig{
		NEstimators:   c.Anomaly.NEstimators,
		Contamination: c.Anomaly.Contamination,
		RandomSeed:    c.Anomaly.RandomSeed,
	}
}

// AlertManagerConfig adapts the loaded config to alerts.Config.
func (c GuardrailConfig) AlertManagerConfig() alerts.Config {
	return alerts.Config{TTL: time.Duration(c.AlertTTLSeconds) * time.Second}
}
