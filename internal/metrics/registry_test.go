package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounter_LookupOrCreateIsStable(t *testing.T) {
	r := New("test")
	r.Counter("ticks").Inc()
	r.Counter("ticks").Add(4)

	assert.Equal(t, uint64(5), r.Counter("ticks").Value())
}

func TestGauge_SetOverwrites(t *testing.T) {
	r := New("test")
	r.Gauge("mem").Set(1.5)
	r.Gauge("mem").Set(2.5)

	assert.Equal(t, 2.5, r.Gauge("mem").Value())
}

func TestHistogram_StatsReflectRecordedValues(t *testing.T) {
	r := New("test")
	h := r.Histogram("latency")
	h.Record(10)
	h.Record(20)
	h.Record(30)

	stats := h.Stats()
	assert.Equal(t, uint64(3), stats.Count)
	assert.Equal(t, 20.0, stats.Mean)
	assert.Equal(t, 10.0, stats.Min)
	assert.Equal(t, 30.0, stats.Max)
}

func TestTimer_StatsReflectRecordedDurations(t *testing.T) {
	r := New("test")
	timer := r.Timer("op")
	timer.Record(5 * time.Millisecond)
	timer.Record(15 * time.Millisecond)

	stats := timer.Stats()
	assert.Equal(t, uint64(2), stats.Count)
	assert.Equal(t, int64(5*time.Millisecond), stats.MinNanos)
	assert.Equal(t, int64(15*time.Millisecond), stats.MaxNanos)
}

func TestRecordTickDuration_FillsRingAndTotals(t *testing.T) {
	r := New("test")
	for i := 0; i < 5; i++ {
		r.RecordTickDuration(int64(10 * time.Millisecond))
	}

	stats := r.GetTickStats()
	assert.Equal(t, uint64(5), stats.TotalTicks)
	assert.Equal(t, int64(10*time.Millisecond), stats.Min)
	assert.Equal(t, int64(10*time.Millisecond), stats.Max)
}

func TestRecordTickOverrun_BoundsWindow(t *testing.T) {
	r := New("test")
	for i := 0; i < MaxOverrunRecords+10; i++ {
		r.RecordTickOverrun(uint64(i), int64(60*time.Millisecond))
	}

	overruns := r.RecentOverruns()
	assert.Len(t, overruns, MaxOverrunRecords)
	assert.Equal(t, uint64(MaxOverrunRecords+9), overruns[len(overruns)-1].Tick)
}

func TestExportToAll_ReachesEverySink(t *testing.T) {
	r := New("test")
	r.Counter("hits").Inc()

	var got []Snapshot
	r.AddExporter(sinkFunc(func(s Snapshot) error {
		got = append(got, s)
		return nil
	}))

	r.ExportToAll()

	assert.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].Counters["hits"])
}

type sinkFunc func(Snapshot) error

func (f sinkFunc) Export(s Snapshot) error { return f(s) }
