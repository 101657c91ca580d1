// Package generator produces synthetic telemetry records to warm the
// drift baseline and anomaly model before serving real traffic, and to
// drive the CLI demo. Its Config follows the teacher's
// internal/scheduler/scheduler.go JobConfig shape (a flat, YAML-taggable
// struct of tunables); its record fabrication follows
// internal/metrics/collector.go's pattern of simulating realistic
// fluctuations with math/rand around a baseline.
package generator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ecomguard/telemetry-guardrail/internal/types"
)

// Config controls the synthetic feed's shape.
type Config struct {
	SKUCount       int     `yaml:"sku_count"`
	BasePrice      float64 `yaml:"base_price"`
	BaseViews      int64   `yaml:"base_views"`
	BaseConversion float64 `yaml:"base_conversion"` // purchases / views, steady-state
	AnomalyRate    float64 `yaml:"anomaly_rate"`     // fraction of records perturbed into outliers
	Seed           int64   `yaml:"seed"`
}

// DefaultConfig returns a modest, demo-friendly feed shape.
func DefaultConfig() Config {
	return Config{
		SKUCount:       20,
		BasePrice:      25.0,
		BaseViews:      200,
		BaseConversion: 0.05,
		AnomalyRate:    0.02,
		Seed:           1,
	}
}

// Generator fabricates TelemetryRecord streams around a per-SKU
// baseline, perturbed with normal noise and an occasional gross
// outlier (per AnomalyRate).
type Generator struct {
	cfg  Config
	rng  *rand.Rand
	skus []string
	now  func() time.Time
}

// New builds a Generator with a dedicated, seeded random source so
// demo runs are reproducible.
func New(cfg Config) *Generator {
	skus := make([]string, cfg.SKUCount)
	for i := range skus {
		skus[i] = fmt.Sprintf("sku-%04d", i+1)
	}
	return &Generator{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		skus: skus,
		now:  time.Now,
	}
}

// Batch fabricates n records per SKU, in chronological order, suitable
// for WarmBaseline. Records are "clean" (shape-valid, no gross
// outliers) except for the AnomalyRate fraction, which matches the
// steady-state noise a live feed also contains.
func (g *Generator) Batch(perSKU int) []types.TelemetryRecord {
	var out []types.TelemetryRecord
	base := g.now().Add(-time.Duration(perSKU) * time.Minute)
	for _, sku := range g.skus {
		for i := 0; i < perSKU; i++ {
			out = append(out, g.record(sku, base.Add(time.Duration(i)*time.Minute)))
		}
	}
	return out
}

// Stream emits one record every interval until ctx is canceled,
// cycling through the configured SKUs. Used by the demo command to
// feed the pipeline continuously.
func (g *Generator) Stream(ctx context.Context, interval time.Duration) <-chan types.TelemetryRecord {
	out := make(chan types.TelemetryRecord)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		i := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sku := g.skus[i%len(g.skus)]
				i++
				select {
				case out <- g.record(sku, g.now()):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// record fabricates one observation for sku at ts, drawn from the
// per-SKU baseline with Gaussian noise, occasionally replaced by a
// gross outlier.
func (g *Generator) record(sku string, ts time.Time) types.TelemetryRecord {
	if g.rng.Float64() < g.cfg.AnomalyRate {
		return g.anomalousRecord(sku, ts)
	}
	return g.cleanRecord(sku, ts)
}

// cleanRecord fabricates one observation for sku at ts from the
// per-SKU baseline with Gaussian noise, never an outlier.
func (g *Generator) cleanRecord(sku string, ts time.Time) types.TelemetryRecord {
	views := g.cfg.BaseViews + int64(g.rng.NormFloat64()*float64(g.cfg.BaseViews)*0.1)
	if views < 1 {
		views = 1
	}
	conversion := g.cfg.BaseConversion + g.rng.NormFloat64()*0.005
	purchases := int64(float64(views) * clampNonNegative(conversion))
	addToCart := purchases + int64(float64(views)*0.1)
	if addToCart > views {
		addToCart = views
	}
	price := g.cfg.BasePrice + g.rng.NormFloat64()*g.cfg.BasePrice*0.02

	return types.TelemetryRecord{
		Timestamp: ts,
		SKU:       sku,
		Price:     price,
		Stock:     int64(50 + g.rng.Intn(50)),
		Views:     views,
		AddToCart: addToCart,
		Purchases: purchases,
		Referrer:  g.referrer(),
	}
}

// anomalousRecord perturbs one of price, stock, or conversion into a
// gross outlier, modeling the classes of anomaly spec.md §4.4 expects
// the isolation forest to catch.
func (g *Generator) anomalousRecord(sku string, ts time.Time) types.TelemetryRecord {
	rec := g.cleanRecord(sku, ts) // start clean, then corrupt one field
	switch g.rng.Intn(3) {
	case 0:
		rec.Price *= 5 + g.rng.Float64()*5
	case 1:
		rec.Stock = -int64(g.rng.Intn(100))
	case 2:
		rec.Purchases = rec.Views // implausibly high conversion
	}
	return rec
}

func (g *Generator) referrer() string {
	referrers := []string{"search", "social", "email", "direct", "affiliate"}
	return referrers[g.rng.Intn(len(referrers))]
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
