// Package anomaly implements streaming feature extraction over per-SKU
// history and an isolation-forest model trained on a baseline batch.
package anomaly

import (
	"math"
	"sync"

	"github.com/ecomguard/telemetry-guardrail/internal/types"
)

const (
	featureCount  = 7
	maxHistoryLen = 100
)

// skuHistory is the bounded per-SKU history the feature extractor
// consults: last price/stock and the last 100 prices/stocks/conversions.
type skuHistory struct {
	lastPrice float64
	lastStock float64
	hasLast   bool

	prices      []float64
	stocks      []float64
	conversions []float64
}

func (h *skuHistory) meanConversion() (float64, bool) {
	if len(h.conversions) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range h.conversions {
		sum += v
	}
	return sum / float64(len(h.conversions)), true
}

// History owns the per-SKU feature history plus the process-wide
// referrer frequency table. It is independent of the validator's
// price history by design (spec.md §3).
type History struct {
	mu          sync.RWMutex
	skus        map[string]*skuHistory
	referrerCnt map[string]int64
	referrerTot int64
}

func NewHistory() *History {
	return &History{
		skus:        make(map[string]*skuHistory),
		referrerCnt: make(map[string]int64),
	}
}

// ExtractFeatures computes the fixed-length 7-feature vector for a
// record against the CURRENT history (i.e. without having yet applied
// this record's own update). Call Update afterward.
func (h *History) ExtractFeatures(rec types.TelemetryRecord) [featureCount]float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var f [featureCount]float64
	hist, ok := h.skus[rec.SKU]

	// [0] price_delta_pct
	if ok && hist.hasLast && hist.lastPrice != 0 {
		f[0] = math.Abs(rec.Price-hist.lastPrice) / hist.lastPrice
	}

	// [1] stock_change / 100
	if ok && hist.hasLast {
		f[1] = math.Abs(float64(rec.Stock)-hist.lastStock) / 100
	}

	// [2] referrer_irregularity = 1 - freq(referrer)
	if h.referrerTot == 0 {
		f[2] = 0.5
	} else {
		freq := float64(h.referrerCnt[rec.Referrer]) / float64(h.referrerTot)
		f[2] = 1 - freq
	}

	// [3] conversion_deviation
	if rec.Views == 0 {
		f[3] = 0
	} else if ok {
		if meanConv, has := hist.meanConversion(); has && meanConv != 0 {
			c := rec.ConversionRate()
			f[3] = math.Abs(c-meanConv) / meanConv
		} else {
			f[3] = 0.5
		}
	} else {
		f[3] = 0.5
	}

	// [4] cart_irregularity
	if rec.Views > 0 {
		ratio := float64(rec.AddToCart) / float64(rec.Views)
		if ratio > 0.5 || ratio < 0.01 {
			f[4] = 1
		}
	}

	// [5] price_magnitude
	f[5] = math.Min(rec.Price/1000, 10)

	// [6] stock_magnitude
	f[6] = math.Min(float64(rec.Stock)/1000, 10)

	return f
}

// Update applies a record's observation to the per-SKU history and the
// process-wide referrer table, evicting beyond the 100-entry cap.
func (h *History) Update(rec types.TelemetryRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	hist, ok := h.skus[rec.SKU]
	if !ok {
		hist = &skuHistory{}
		h.skus[rec.SKU] = hist
	}

	hist.prices = appendCapped(hist.prices, rec.Price, maxHistoryLen)
	hist.stocks = appendCapped(hist.stocks, float64(rec.Stock), maxHistoryLen)
	if rec.Views > 0 {
		hist.conversions = appendCapped(hist.conversions, rec.ConversionRate(), maxHistoryLen)
	}

	hist.lastPrice = rec.Price
	hist.lastStock = float64(rec.Stock)
	hist.hasLast = true

	h.referrerCnt[rec.Referrer]++
	h.referrerTot++
}

func appendCapped(s []float64, v float64, limit int) []float64 {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}
