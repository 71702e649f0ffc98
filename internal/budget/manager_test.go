package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rubidium-run/rubidium/internal/metrics"
)

func TestSetTickBudget_ClampsToWindow(t *testing.T) {
	m := New(metrics.New("test"))

	m.SetTickBudget(0)
	assert.Equal(t, MinTickBudget, m.TickBudget())

	m.SetTickBudget(500 * time.Millisecond)
	assert.Less(t, m.TickBudget(), MaxTickBudget)

	m.SetTickBudget(20 * time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, m.TickBudget())
}

func TestWithinBudget_UnregisteredUnitAlwaysTrue(t *testing.T) {
	m := New(metrics.New("test"))
	assert.True(t, m.WithinBudget("ghost"))
}

func TestRecordExecution_FlagsOverBudgetUnit(t *testing.T) {
	m := New(metrics.New("test"))
	m.RegisterUnit("physics", 5*time.Millisecond)

	m.RecordExecution("physics", 2*time.Millisecond)
	assert.True(t, m.WithinBudget("physics"))

	m.RecordExecution("physics", 10*time.Millisecond)
	assert.False(t, m.WithinBudget("physics"))

	stats, ok := m.UnitStats("physics")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), stats.OverBudgetCount)
}

func TestResetTickBudgets_ZeroesCurrentTickOnly(t *testing.T) {
	m := New(metrics.New("test"))
	m.RegisterUnit("ai", 5*time.Millisecond)
	m.RecordExecution("ai", 3*time.Millisecond)

	m.ResetTickBudgets()

	stats, ok := m.UnitStats("ai")
	assert.True(t, ok)
	assert.Equal(t, int64(0), stats.TickNanos)
	assert.Equal(t, int64(3*time.Millisecond), stats.TotalNanos)
}

func TestUnregisterUnit_DropsEnforcement(t *testing.T) {
	m := New(metrics.New("test"))
	m.RegisterUnit("ai", 1*time.Millisecond)
	m.RecordExecution("ai", 5*time.Millisecond)
	assert.False(t, m.WithinBudget("ai"))

	m.UnregisterUnit("ai")
	assert.True(t, m.WithinBudget("ai"))
}

func TestReportTickOverrun_UpdatesStats(t *testing.T) {
	m := New(metrics.New("test"))
	m.ReportTickOverrun(42, 60*time.Millisecond)

	stats := m.Stats()
	assert.Equal(t, uint64(1), stats.TotalOverruns)
	assert.Equal(t, int64(42), stats.LastOverrunTick)
}

func TestTiming_RecordsElapsedAgainstUnit(t *testing.T) {
	m := New(metrics.New("test"))
	m.RegisterUnit("render", 50*time.Millisecond)

	timing := m.StartTiming("render")
	time.Sleep(1 * time.Millisecond)
	elapsed := timing.Stop()

	assert.Greater(t, elapsed, time.Duration(0))

	stats, ok := m.UnitStats("render")
	assert.True(t, ok)
	assert.Greater(t, stats.TotalNanos, int64(0))
}
