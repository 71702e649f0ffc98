// Package budget implements the runtime core's C2 Budget Manager:
// per-unit, per-tick nanosecond accounting against a soft budget, plus
// the global tick budget and the tick-overrun counter. Grounded on the
// original PerformanceBudgetManager; ModuleBudget becomes UnitBudget,
// TimingContext becomes Timing (a start/Stop helper rather than Java's
// AutoCloseable).
package budget

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rubidium-run/rubidium/internal/metrics"
)

const (
	// DefaultTickBudget matches spec.md §3's 45ms default.
	DefaultTickBudget = 45 * time.Millisecond
	// DefaultUnitBudget is seeded for units that register without an
	// explicit override.
	DefaultUnitBudget = 10 * time.Millisecond

	// MinTickBudget and MaxTickBudget bound SetTickBudget's input, per
	// spec.md §3's [1ms, 100ms) validation window.
	MinTickBudget = 1 * time.Millisecond
	MaxTickBudget = 100 * time.Millisecond
)

// Manager tracks nanoseconds consumed per registered unit per tick and
// the process-wide tick budget. Unregistered units charge to a default
// bucket and are always within budget: only explicit registration opts
// a unit into enforcement.
type Manager struct {
	metrics *metrics.Registry

	tickBudget atomic.Int64 // nanoseconds

	mu    sync.RWMutex
	units map[string]*UnitBudget

	totalOverruns   atomic.Uint64
	lastOverrunTick atomic.Int64
}

// New creates a Manager bound to the given metrics registry, to which
// tick overruns are forwarded.
func New(reg *metrics.Registry) *Manager {
	m := &Manager{metrics: reg, units: make(map[string]*UnitBudget)}
	m.tickBudget.Store(int64(DefaultTickBudget))
	m.lastOverrunTick.Store(-1)
	return m
}

// SetTickBudget sets the global per-tick budget, clamped to
// [MinTickBudget, MaxTickBudget).
func (m *Manager) SetTickBudget(d time.Duration) {
	if d < MinTickBudget {
		d = MinTickBudget
	}
	if d >= MaxTickBudget {
		d = MaxTickBudget - time.Nanosecond
	}
	m.tickBudget.Store(int64(d))
}

// TickBudget returns the current global per-tick budget.
func (m *Manager) TickBudget() time.Duration {
	return time.Duration(m.tickBudget.Load())
}

// RegisterUnit opts a unit into budget enforcement with an explicit
// nanosecond allowance. Re-registering replaces the budget with a fresh
// record, resetting accumulated totals and the over-budget count,
// matching the original's registerModule overwrite with a fresh
// ModuleBudget.
func (m *Manager) RegisterUnit(unitID string, d time.Duration) {
	if d <= 0 {
		d = DefaultUnitBudget
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[unitID] = &UnitBudget{UnitID: unitID, BudgetNanos: int64(d)}
}

// UnregisterUnit removes a unit from enforcement (e.g. on unload).
func (m *Manager) UnregisterUnit(unitID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.units, unitID)
}

// RecordExecution atomically adds ns to unitID's tick and total
// counters, incrementing OverBudgetCount the instant the tick counter
// crosses the unit's budget, and forwards the duration to C1 under
// "task.<owner>" regardless of whether the unit is registered.
func (m *Manager) RecordExecution(unitID string, d time.Duration) {
	if m.metrics != nil {
		m.metrics.RecordTaskExecution(unitID, d)
	}

	b := m.lookup(unitID)
	if b == nil {
		return
	}
	b.addExecution(int64(d))
}

// WithinBudget reports whether unitID's tick-consumed counter is still
// under its budget. Unregistered units are always within budget.
func (m *Manager) WithinBudget(unitID string) bool {
	b := m.lookup(unitID)
	if b == nil {
		return true
	}
	return b.tickConsumed.Load() < b.BudgetNanos
}

// Remaining returns the nanoseconds left in unitID's budget for the
// current tick, floored at zero. Unregistered units report their
// default allowance.
func (m *Manager) Remaining(unitID string) time.Duration {
	b := m.lookup(unitID)
	if b == nil {
		return DefaultUnitBudget
	}
	remaining := b.BudgetNanos - b.tickConsumed.Load()
	if remaining < 0 {
		remaining = 0
	}
	return time.Duration(remaining)
}

func (m *Manager) lookup(unitID string) *UnitBudget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.units[unitID]
}

// ResetTickBudgets zeroes every unit's current-tick counter. Called once
// at the start of every tick, before the ready-drain phase.
func (m *Manager) ResetTickBudgets() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.units {
		b.tickConsumed.Store(0)
	}
}

// ReportTickOverrun increments the global overrun counter, records the
// tick number, and forwards to the metrics registry. Called by the
// scheduler whenever a tick's wall duration exceeds the tick period.
func (m *Manager) ReportTickOverrun(tick uint64, d time.Duration) {
	m.totalOverruns.Add(1)
	m.lastOverrunTick.Store(int64(tick))
	if m.metrics != nil {
		m.metrics.RecordTickOverrun(tick, int64(d))
	}
}

// Stats summarizes overrun counters for operator visibility.
type Stats struct {
	TotalOverruns  uint64
	LastOverrunTick int64
	TickBudget     time.Duration
	TrackedUnits   int
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	tracked := len(m.units)
	m.mu.RUnlock()
	return Stats{
		TotalOverruns:   m.totalOverruns.Load(),
		LastOverrunTick: m.lastOverrunTick.Load(),
		TickBudget:      m.TickBudget(),
		TrackedUnits:    tracked,
	}
}

// UnitStats is the detailed per-unit view the embedder can surface for
// a /modules-style introspection endpoint.
type UnitStats struct {
	UnitID          string
	BudgetNanos     int64
	TotalNanos      int64
	TickNanos       int64
	OverBudgetCount uint64
}

// UnitStats returns a detailed snapshot for a single unit, or false if
// it is not registered.
func (m *Manager) UnitStats(unitID string) (UnitStats, bool) {
	b := m.lookup(unitID)
	if b == nil {
		return UnitStats{}, false
	}
	return UnitStats{
		UnitID:          unitID,
		BudgetNanos:     b.BudgetNanos,
		TotalNanos:      b.totalConsumed.Load(),
		TickNanos:       b.tickConsumed.Load(),
		OverBudgetCount: b.overBudgetCount.Load(),
	}, true
}

// UnitBudget tracks nanoseconds consumed per unit per tick.
type UnitBudget struct {
	UnitID      string
	BudgetNanos int64

	tickConsumed    atomic.Int64
	totalConsumed   atomic.Int64
	overBudgetCount atomic.Uint64
}

func (b *UnitBudget) addExecution(nanos int64) {
	b.totalConsumed.Add(nanos)
	if b.tickConsumed.Add(nanos) > b.BudgetNanos {
		b.overBudgetCount.Add(1)
	}
}

// Timing is a start/stop helper mirroring the original's TimingContext,
// used by callers who want to time an operation without threading a
// start timestamp through themselves.
type Timing struct {
	mgr    *Manager
	unitID string
	start  time.Time
}

// StartTiming begins timing unitID's current operation.
func (m *Manager) StartTiming(unitID string) *Timing {
	return &Timing{mgr: m, unitID: unitID, start: time.Now()}
}

// Stop records the elapsed time since StartTiming against the unit.
func (t *Timing) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.mgr.RecordExecution(t.unitID, elapsed)
	return elapsed
}
