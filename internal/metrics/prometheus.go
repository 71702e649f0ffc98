package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// promCollector is a prometheus.Collector that re-derives its metric
// family list from the registry's dynamic handle maps on every scrape,
// rather than declaring a fixed set of vectors up front. This is the
// idiomatic way to expose a name-on-first-use registry (this package's
// Counter/Gauge/Histogram/Timer are created on demand, unlike the
// statically-declared CounterVec/GaugeVec/HistogramVec collectors in
// internal/app/metrics and internal/engine/metrics).
type promCollector struct {
	reg *Registry
}

func (p *promCollector) Describe(chan<- *prometheus.Desc) {
	// Dynamic metric set: intentionally unchecked, per prometheus's
	// "unchecked collector" convention for registries with a variable
	// metric surface.
}

func (p *promCollector) Collect(ch chan<- prometheus.Metric) {
	snap := p.reg.Snapshot()

	for name, v := range snap.Counters {
		ch <- mustConst(p.reg.namespace, name, prometheus.CounterValue, float64(v))
	}
	for name, v := range snap.Gauges {
		ch <- mustConst(p.reg.namespace, name, prometheus.GaugeValue, v)
	}
	for name, hs := range snap.Histograms {
		ch <- mustConst(p.reg.namespace, name+"_mean", prometheus.GaugeValue, hs.Mean)
		ch <- mustConst(p.reg.namespace, name+"_count", prometheus.CounterValue, float64(hs.Count))
	}
	for name, ts := range snap.Timers {
		ch <- mustConst(p.reg.namespace, name+"_mean_nanos", prometheus.GaugeValue, ts.MeanNanos)
		ch <- mustConst(p.reg.namespace, name+"_count", prometheus.CounterValue, float64(ts.Count))
	}
}

func mustConst(namespace, name string, vt prometheus.ValueType, v float64) prometheus.Metric {
	fqName := sanitize(namespace) + "_" + sanitize(name)
	desc := prometheus.NewDesc(fqName, "runtime core metric "+name, nil, nil)
	m, err := prometheus.NewConstMetric(desc, vt, v)
	if err != nil {
		return prometheus.NewInvalidMetric(desc, err)
	}
	return m
}

func sanitize(s string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(s)
}
