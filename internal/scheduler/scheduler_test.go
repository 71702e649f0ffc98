package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubidium-run/rubidium/internal/budget"
	"github.com/rubidium-run/rubidium/internal/metrics"
)

func newTestScheduler() *Scheduler {
	reg := metrics.New("test")
	bm := budget.New(reg)
	return New(bm, reg, nil, Options{MaxConcurrentAsync: 2})
}

func TestRunTask_ExecutesOnNextTick(t *testing.T) {
	s := newTestScheduler()
	var ran atomic.Bool
	s.RunTask("unit-a", func() { ran.Store(true) })

	s.Start()
	defer s.Stop()

	require.Eventually(t, ran.Load, time.Second, 5*time.Millisecond)
}

func TestRunTaskTimer_RepeatsAtPeriod(t *testing.T) {
	s := newTestScheduler()
	var count atomic.Int32
	s.RunTaskTimer("unit-a", func() { count.Add(1) }, 0, 1, Normal)

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestCancel_PreventsExecution(t *testing.T) {
	s := newTestScheduler()
	var ran atomic.Bool
	h := s.RunTaskLater("unit-a", func() { ran.Store(true) }, 5, Normal)

	assert.True(t, h.Cancel())
	assert.False(t, h.Cancel())

	s.Start()
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	assert.False(t, ran.Load())
}

func TestCancelOwner_RemovesAllTasksForOwner(t *testing.T) {
	s := newTestScheduler()
	s.RunTaskLater("unit-a", func() {}, 10, Normal)
	s.RunTaskLater("unit-a", func() {}, 10, Normal)
	s.RunTaskLater("unit-b", func() {}, 10, Normal)

	cancelled := s.CancelOwner("unit-a")
	assert.Equal(t, 2, cancelled)
}

func TestRunTaskAsync_RunsOutsideTickLoop(t *testing.T) {
	s := newTestScheduler()
	s.Start()
	defer s.Stop()

	done := make(chan struct{})
	s.RunTaskAsync("unit-a", func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async task did not run")
	}
}

func TestRunTask_PanicIsRecovered(t *testing.T) {
	s := newTestScheduler()
	s.RunTask("unit-a", func() { panic("boom") })

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return s.metrics.Snapshot().Counters["scheduler.task.errors"] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCriticalPriority_NeverDeferred(t *testing.T) {
	s := newTestScheduler()
	s.budget.SetTickBudget(1 * time.Millisecond)

	var ran atomic.Bool
	s.RunTaskLater("unit-a", func() {
		time.Sleep(2 * time.Millisecond)
		ran.Store(true)
	}, 0, Critical)

	s.Start()
	defer s.Stop()

	require.Eventually(t, ran.Load, time.Second, 5*time.Millisecond)
}

func TestRunTask_CanScheduleAnotherTaskFromWithinItself(t *testing.T) {
	s := newTestScheduler()
	var ran atomic.Bool
	s.RunTask("unit-a", func() {
		s.RunTask("unit-a", func() { ran.Store(true) })
	})

	s.Start()
	defer s.Stop()

	require.Eventually(t, ran.Load, time.Second, 5*time.Millisecond)
}

func TestRunTask_CanCancelOwnerFromWithinItself(t *testing.T) {
	s := newTestScheduler()
	var done atomic.Bool
	s.RunTask("unit-a", func() {
		s.CancelOwner("unit-a")
		done.Store(true)
	})

	s.Start()
	defer s.Stop()

	require.Eventually(t, done.Load, time.Second, 5*time.Millisecond)
}

func TestIsTickThread_TrueOnlyFromTickGoroutine(t *testing.T) {
	s := newTestScheduler()
	assert.False(t, s.IsTickThread())

	var fromTask, fromMain bool
	fromMain = s.IsTickThread()

	done := make(chan struct{})
	s.RunTask("unit-a", func() {
		fromTask = s.IsTickThread()
		close(done)
	})

	s.Start()
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}

	assert.False(t, fromMain)
	assert.True(t, fromTask)
}

func TestRunTaskAsyncResult_WaitReturnsValue(t *testing.T) {
	s := newTestScheduler()
	s.Start()
	defer s.Stop()

	fut := s.RunTaskAsyncResult("unit-a", func() (any, error) { return 42, nil })

	v, err := fut.Wait()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestScheduleCron_Fires(t *testing.T) {
	s := newTestScheduler()
	s.Start()
	defer s.Stop()

	var ran atomic.Bool
	_, err := s.ScheduleCron("unit-a", "* * * * * *", func() { ran.Store(true) })
	require.NoError(t, err)

	require.Eventually(t, ran.Load, 2*time.Second, 10*time.Millisecond)
}
