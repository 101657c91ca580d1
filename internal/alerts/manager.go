// Package alerts implements the AlertManager: severity assignment,
// enrichment, lifecycle, TTL expiry, and filtered listing of alerts
// derived from detector findings.
package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/ecomguard/telemetry-guardrail/internal/types"
)

// Config holds the alert manager's tunables (spec.md §6).
type Config struct {
	TTL time.Duration
}

func DefaultConfig() Config {
	return Config{TTL: 3600 * time.Second}
}

// Filter narrows a Get call; a nil/empty field means "don't filter on
// this dimension".
type Filter struct {
	Severity  types.Severity
	AlertType types.AlertType
	SKU       string
	Resolved  *bool
	Limit     int
}

// Stats summarizes the current (post-purge) alert table.
type Stats struct {
	Total          int
	BySeverity     map[types.Severity]int
	ByType         map[types.AlertType]int
	Unresolved     int
	Unacknowledged int
}

// Manager owns the alert table exclusively. Mutating operations
// (Create, Acknowledge, Resolve, purge) take an exclusive lock; Get
// and Stats also purge expired alerts first, so they too take the
// exclusive lock (spec.md §5: purge happens on every get/stats call).
type Manager struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	alerts  map[string]*types.Alert
	order   []string // insertion order, for stable newest-first listing
	counter int
}

func New(cfg Config) *Manager {
	return &Manager{
		cfg:    cfg,
		now:    time.Now,
		alerts: make(map[string]*types.Alert),
	}
}

// Create assembles and stores a new alert, returning it.
func (m *Manager) Create(kind types.AlertType, severity types.Severity, message string, sku string,
	lastGoodState, metadata map[string]interface{}) types.Alert {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter++
	now := m.now()
	id := fmt.Sprintf("ALERT-%s-%06d", now.Format("20060102"), m.counter)

	alert := &types.Alert{
		AlertID:       id,
		AlertType:     kind,
		Severity:      severity,
		Message:       message,
		SKU:           sku,
		Timestamp:     now,
		LastGoodState: lastGoodState,
		SuggestedFix:  suggestedFix(kind, metadata),
		Metadata:      metadata,
	}
	m.alerts[id] = alert
	m.order = append(m.order, id)

	return *alert
}

// Get returns alerts matching filter, newest first, truncated to
// filter.Limit (0 means unlimited). Expired alerts are purged first.
func (m *Manager) Get(filter Filter) ([]types.Alert, Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked()

	var matched []types.Alert
	for i := len(m.order) - 1; i >= 0; i-- {
		a, ok := m.alerts[m.order[i]]
		if !ok {
			continue
		}
		if !matches(*a, filter) {
			continue
		}
		matched = append(matched, *a)
		if filter.Limit > 0 && len(matched) >= filter.Limit {
			break
		}
	}

	return matched, m.statsLocked()
}

func matches(a types.Alert, f Filter) bool {
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.AlertType != "" && a.AlertType != f.AlertType {
		return false
	}
	if f.SKU != "" && a.SKU != f.SKU {
		return false
	}
	if f.Resolved != nil && a.Resolved != *f.Resolved {
		return false
	}
	return true
}

// Acknowledge marks an alert acknowledged. Idempotent: acknowledging an
// already-acknowledged alert leaves it acknowledged and still returns
// true. Returns false for an unknown id.
func (m *Manager) Acknowledge(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked()
	a, ok := m.alerts[id]
	if !ok {
		return false
	}
	a.Acknowledged = true
	return true
}

// Resolve marks an alert resolved. Idempotent like Acknowledge.
func (m *Manager) Resolve(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked()
	a, ok := m.alerts[id]
	if !ok {
		return false
	}
	a.Resolved = true
	return true
}

// Stats returns aggregate counts after purging expired alerts.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked()
	return m.statsLocked()
}

func (m *Manager) statsLocked() Stats {
	st := Stats{
		BySeverity: make(map[types.Severity]int),
		ByType:     make(map[types.AlertType]int),
	}
	for _, id := range m.order {
		a, ok := m.alerts[id]
		if !ok {
			continue
		}
		st.Total++
		st.BySeverity[a.Severity]++
		st.ByType[a.AlertType]++
		if !a.Resolved {
			st.Unresolved++
		}
		if !a.Acknowledged {
			st.Unacknowledged++
		}
	}
	return st
}

// purgeLocked evicts alerts older than the TTL. Called opportunistically
// from Get/Stats/Acknowledge/Resolve rather than on a timer (spec.md §4.5).
func (m *Manager) purgeLocked() {
	now := m.now()
	live := m.order[:0:0]
	for _, id := range m.order {
		a, ok := m.alerts[id]
		if !ok {
			continue
		}
		if now.Sub(a.Timestamp) > m.cfg.TTL {
			delete(m.alerts, id)
			continue
		}
		live = append(live, id)
	}
	m.order = live
}
