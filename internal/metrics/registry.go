// Package metrics implements the runtime core's C1 Metrics Registry:
// lookup-or-create Counter/Gauge/Histogram/Timer handles, a rolling
// tick-duration ring, a bounded overrun log, and a registry of export
// sinks. The dynamic, name-keyed shape is grounded on the original
// MetricsRegistry; the Prometheus wiring (a custom prometheus.Collector
// that snapshots the dynamic handle maps on each scrape) is grounded on
// the teacher's internal/app/metrics and internal/engine/metrics, which
// both register collectors into an explicit prometheus.Registry rather
// than the global default one.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

const (
	// TickRingSize holds one minute of history at 20 ticks/second.
	TickRingSize = 1200

	// MemorySampleEveryTicks matches spec.md's "every 20th recorded tick".
	MemorySampleEveryTicks = 20

	// MaxOverrunRecords bounds the overrun log to the most recent window.
	MaxOverrunRecords = 100
)

// Registry is the process-wide metrics registry. Zero value is not
// usable; construct with New.
type Registry struct {
	namespace string

	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	timers     map[string]*Timer

	tickDurations [TickRingSize]int64
	tickIndex     atomic.Uint64
	totalTicks    atomic.Uint64

	overrunMu sync.Mutex
	overruns  []OverrunRecord

	sinkMu  sync.Mutex
	sinks   []Sink

	promReg *prometheus.Registry
}

// New creates a Registry and wires a dedicated prometheus.Registry (not
// the global default) that exports every dynamically created handle.
func New(namespace string) *Registry {
	r := &Registry{
		namespace:  namespace,
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		timers:     make(map[string]*Timer),
		promReg:    prometheus.NewRegistry(),
	}
	r.promReg.MustRegister(&promCollector{reg: r}, prometheus.NewGoCollector())
	return r
}

// Handler exposes every metric in this registry in Prometheus exposition
// format, independent of any other process-wide registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.promReg, promhttp.HandlerOpts{})
}

// Counter returns the named counter, creating it on first reference.
func (r *Registry) Counter(name string) *Counter {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c = &Counter{name: name}
	r.counters[name] = c
	return c
}

// Gauge returns the named gauge, creating it on first reference.
func (r *Registry) Gauge(name string) *Gauge {
	r.mu.RLock()
	g, ok := r.gauges[name]
	r.mu.RUnlock()
	if ok {
		return g
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g = &Gauge{name: name}
	r.gauges[name] = g
	return g
}

// Histogram returns the named histogram, creating it on first reference.
func (r *Registry) Histogram(name string) *Histogram {
	r.mu.RLock()
	h, ok := r.histograms[name]
	r.mu.RUnlock()
	if ok {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	h = &Histogram{name: name, min: math.MaxFloat64, max: -math.MaxFloat64}
	r.histograms[name] = h
	return h
}

// Timer returns the named timer, creating it on first reference.
func (r *Registry) Timer(name string) *Timer {
	r.mu.RLock()
	t, ok := r.timers[name]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[name]; ok {
		return t
	}
	t = &Timer{name: name, min: math.MaxInt64, max: math.MinInt64}
	r.timers[name] = t
	return t
}

// RecordTickDuration writes nanos into the ring at tickIndex mod
// TickRingSize, increments the total tick count, feeds the
// "tick.duration" histogram in milliseconds, and samples memory every
// MemorySampleEveryTicks ticks.
func (r *Registry) RecordTickDuration(nanos int64) {
	idx := r.tickIndex.Add(1) - 1
	r.tickDurations[idx%TickRingSize] = nanos
	total := r.totalTicks.Add(1)

	r.Histogram("tick.duration").Record(float64(nanos) / 1e6)

	if total%MemorySampleEveryTicks == 0 {
		r.sampleMemory()
	}
}

// RecordTaskExecution records a task/unit's wall duration against the
// "task.<owner>" timer. Tick-thread and cron closures reach it through
// the budget manager, async closures directly; deferred-drain closures
// are not timed. It has nothing to do with budget enforcement, which
// lives in the budget package.
func (r *Registry) RecordTaskExecution(owner string, d time.Duration) {
	r.Timer("task." + owner).Record(d)
}

// OverrunRecord captures one tick whose wall duration exceeded the tick
// period.
type OverrunRecord struct {
	Tick      uint64
	Nanos     int64
	Timestamp time.Time
}

// RecordTickOverrun appends an overrun record, evicting the oldest entry
// once the bounded window is full, and increments "tick.overruns".
func (r *Registry) RecordTickOverrun(tick uint64, nanos int64) {
	r.Counter("tick.overruns").Inc()

	r.overrunMu.Lock()
	defer r.overrunMu.Unlock()
	r.overruns = append(r.overruns, OverrunRecord{Tick: tick, Nanos: nanos, Timestamp: time.Now()})
	if len(r.overruns) > MaxOverrunRecords {
		r.overruns = r.overruns[len(r.overruns)-MaxOverrunRecords:]
	}
}

// RecentOverruns returns a copy of the bounded overrun window.
func (r *Registry) RecentOverruns() []OverrunRecord {
	r.overrunMu.Lock()
	defer r.overrunMu.Unlock()
	out := make([]OverrunRecord, len(r.overruns))
	copy(out, r.overruns)
	return out
}

// TickStats summarizes the valid prefix of the tick ring.
type TickStats struct {
	Mean       float64
	Min        int64
	Max        int64
	P99        int64
	TotalTicks uint64
}

// GetTickStats computes mean/min/max/p99 over min(total, TickRingSize)
// samples via a full sort, matching the original's "simplicity over
// speed; core is 1,200 samples" tradeoff.
func (r *Registry) GetTickStats() TickStats {
	total := r.totalTicks.Load()
	count := total
	if count > TickRingSize {
		count = TickRingSize
	}
	if count == 0 {
		return TickStats{}
	}

	samples := make([]int64, count)
	copy(samples, r.tickDurations[:count])

	var sum int64
	min, max := samples[0], samples[0]
	for _, v := range samples {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	sorted := make([]int64, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	p99idx := int(float64(len(sorted)) * 0.99)
	if p99idx >= len(sorted) {
		p99idx = len(sorted) - 1
	}
	p99 := sorted[p99idx]

	return TickStats{
		Mean:       float64(sum) / float64(count),
		Min:        min,
		Max:        max,
		P99:        p99,
		TotalTicks: total,
	}
}

func (r *Registry) sampleMemory() {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	r.Gauge("memory.used").Set(float64(vm.Used))
	r.Gauge("memory.free").Set(float64(vm.Available))
	r.Gauge("memory.max").Set(float64(vm.Total))
}

// AddExporter registers a sink that receives every snapshot produced by
// ExportToAll.
func (r *Registry) AddExporter(s Sink) {
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()
	r.sinks = append(r.sinks, s)
}

// ExportToAll snapshots every metric once and hands it to each
// registered sink in turn. A sink that returns an error has the error
// logged, and the remaining sinks still receive the snapshot.
func (r *Registry) ExportToAll() {
	snap := r.Snapshot()

	r.sinkMu.Lock()
	sinks := make([]Sink, len(r.sinks))
	copy(sinks, r.sinks)
	r.sinkMu.Unlock()

	for _, s := range sinks {
		if err := s.Export(snap); err != nil {
			logrus.WithField("sink", fmt.Sprintf("%T", s)).WithError(err).Error("metrics sink export failed")
		}
	}
}

// Snapshot takes a point-in-time copy of every metric's current value.
type Snapshot struct {
	Counters   map[string]uint64
	Gauges     map[string]float64
	Histograms map[string]HistogramStats
	Timers     map[string]TimerStats
	Timestamp  time.Time
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Counters:   make(map[string]uint64, len(r.counters)),
		Gauges:     make(map[string]float64, len(r.gauges)),
		Histograms: make(map[string]HistogramStats, len(r.histograms)),
		Timers:     make(map[string]TimerStats, len(r.timers)),
		Timestamp:  time.Now(),
	}
	for name, c := range r.counters {
		snap.Counters[name] = c.Value()
	}
	for name, g := range r.gauges {
		snap.Gauges[name] = g.Value()
	}
	for name, h := range r.histograms {
		snap.Histograms[name] = h.Stats()
	}
	for name, t := range r.timers {
		snap.Timers[name] = t.Stats()
	}
	return snap
}

// Sink receives metrics snapshots from ExportToAll. An error a sink
// returns is logged by ExportToAll; a sink must not panic.
type Sink interface {
	Export(Snapshot) error
}
