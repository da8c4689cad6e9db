package dispatch

import (
	"sort"
	"sync"
	"time"

	"github.com/dshills/agenthook/dispatch/handler"
	"github.com/dshills/agenthook/event"
)

// Metrics collects dispatch statistics.
type Metrics struct {
	mu sync.RWMutex

	// Per-kind metrics
	kindMetrics map[event.Kind]*KindMetrics

	// Global counters
	totalDispatches uint64
	totalDenies     uint64
	totalFailures   uint64

	// Timing
	totalDuration time.Duration
}

// KindMetrics holds metrics for a specific event kind.
type KindMetrics struct {
	Kind          event.Kind
	DispatchCount uint64
	DenyCount     uint64
	AskCount      uint64
	FailureCount  uint64
	TotalDuration time.Duration
	MinDuration   time.Duration
	MaxDuration   time.Duration
	LastDecision  handler.Decision
	LastDispatch  time.Time
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		kindMetrics: make(map[event.Kind]*KindMetrics),
	}
}

// RecordDispatch records one completed dispatch.
// handlerFailed marks dispatches where at least one handler failed or the
// envelope was rejected before evaluation.
func (m *Metrics) RecordDispatch(kind event.Kind, duration time.Duration, decision handler.Decision, handlerFailed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalDispatches++
	m.totalDuration += duration

	if decision == handler.DecisionDeny {
		m.totalDenies++
	}
	if handlerFailed {
		m.totalFailures++
	}

	km := m.kindMetrics[kind]
	if km == nil {
		km = &KindMetrics{
			Kind:        kind,
			MinDuration: duration,
			MaxDuration: duration,
		}
		m.kindMetrics[kind] = km
	}

	km.DispatchCount++
	km.TotalDuration += duration
	km.LastDecision = decision
	km.LastDispatch = time.Now()

	switch decision {
	case handler.DecisionDeny:
		km.DenyCount++
	case handler.DecisionAsk:
		km.AskCount++
	}
	if handlerFailed {
		km.FailureCount++
	}

	if duration < km.MinDuration {
		km.MinDuration = duration
	}
	if duration > km.MaxDuration {
		km.MaxDuration = duration
	}
}

// TotalDispatches returns the total dispatch count.
func (m *Metrics) TotalDispatches() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalDispatches
}

// TotalDenies returns the number of dispatches that ended in Deny.
func (m *Metrics) TotalDenies() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalDenies
}

// TotalFailures returns the number of dispatches with a handler failure.
func (m *Metrics) TotalFailures() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalFailures
}

// AvgDuration returns the mean dispatch duration.
func (m *Metrics) AvgDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.totalDispatches == 0 {
		return 0
	}
	return m.totalDuration / time.Duration(m.totalDispatches)
}

// ForKind returns a copy of the metrics for one event kind.
// The second return is false if the kind has never been dispatched.
func (m *Metrics) ForKind(kind event.Kind) (KindMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	km := m.kindMetrics[kind]
	if km == nil {
		return KindMetrics{}, false
	}
	return *km, true
}

// Kinds returns the kinds with recorded dispatches in a stable order.
func (m *Metrics) Kinds() []event.Kind {
	m.mu.RLock()
	defer m.mu.RUnlock()

	kinds := make([]event.Kind, 0, len(m.kindMetrics))
	for k := range m.kindMetrics {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Reset clears all collected metrics.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.kindMetrics = make(map[event.Kind]*KindMetrics)
	m.totalDispatches = 0
	m.totalDenies = 0
	m.totalFailures = 0
	m.totalDuration = 0
}
