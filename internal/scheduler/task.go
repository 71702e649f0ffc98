package scheduler

// TaskFunc is a unit of scheduled work. A panic inside a TaskFunc is
// recovered by the tick loop / async worker and turned into a
// corerr.TaskError, never propagated to the caller.
type TaskFunc func()

// task is the scheduler's internal record for one scheduled closure.
// Mirrors the original's ScheduledTask record; Go gives us a mutable
// struct instead of a record-with-withExecuteTick, so re-insertion just
// mutates executeTick in place before re-heaping.
type task struct {
	id          uint64
	owner       string
	fn          TaskFunc
	executeTick uint64
	periodTicks uint64
	priority    Priority
	async       bool

	// heapIndex is maintained by container/heap for O(log n) removal;
	// -1 means the task is not currently in the ready heap.
	heapIndex int
}

// Handle lets a caller cancel a task it previously scheduled. Mirrors
// the original TaskHandle; cancel is idempotent and returns false if the
// task already ran, was already cancelled, or never existed.
type Handle struct {
	id    uint64
	sched *Scheduler
}

// ID returns the task's unique identifier.
func (h Handle) ID() uint64 { return h.id }

// Cancel removes the task from the live-task table. A periodic task
// that is mid-execution this tick will not be re-inserted afterward. A
// zero-value handle (returned for submissions rejected during shutdown)
// has a no-op Cancel.
func (h Handle) Cancel() bool {
	if h.sched == nil {
		return false
	}
	return h.sched.cancelTask(h.id)
}
