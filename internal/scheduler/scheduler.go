// Package scheduler implements the runtime core's C4 fixed-rate tick
// scheduler: a ready min-heap ordered by (execute tick, priority), a
// deferred-task drain for non-critical overflow, and an async pool for
// work that must not block the tick thread. Grounded on the original
// RubidiumScheduler; TaskHandle/TaskPriority carry over as Handle/
// Priority. ScheduleCron is a supplement grounded on the teacher's
// platform/os/scheduler_api.go, which already exposes a ScheduleCron
// verb on top of a tick-free cron library.
package scheduler

import (
	"container/heap"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rubidium-run/rubidium/internal/budget"
	"github.com/rubidium-run/rubidium/internal/corelog"
	"github.com/rubidium-run/rubidium/internal/corerr"
	"github.com/rubidium-run/rubidium/internal/metrics"
)

const (
	// TicksPerSecond is the runtime core's fixed tick rate.
	TicksPerSecond = 20
	// TickPeriod is the wall-clock duration of one tick.
	TickPeriod = time.Second / TicksPerSecond
)

// Scheduler drives the fixed-rate tick loop and the task bookkeeping
// around it. Zero value is not usable; construct with New.
type Scheduler struct {
	budget  *budget.Manager
	metrics *metrics.Registry
	logger  *corelog.Logger

	currentTick   atomic.Uint64
	taskIDCounter atomic.Uint64
	running       atomic.Bool
	stopped       atomic.Bool

	mu    sync.Mutex
	tasks map[uint64]*task
	ready readyHeap

	deferredMu sync.Mutex
	deferred   []*deferredTask

	asyncSem chan struct{}
	asyncWG  sync.WaitGroup

	cron *cron.Cron

	ticker *time.Ticker
	stopCh chan struct{}
	doneWG sync.WaitGroup

	tickGoroutineID atomic.Uint64
}

type deferredTask struct {
	owner    string
	fn       TaskFunc
	priority Priority
}

// Options configures a new Scheduler.
type Options struct {
	MaxConcurrentAsync int
}

// New creates a Scheduler bound to the given budget manager, metrics
// registry, and scoped logger. It does not start the tick loop; call
// Start for that.
func New(b *budget.Manager, m *metrics.Registry, logger *corelog.Logger, opts Options) *Scheduler {
	maxAsync := opts.MaxConcurrentAsync
	if maxAsync <= 0 {
		maxAsync = 4
	}
	return &Scheduler{
		budget:   b,
		metrics:  m,
		logger:   logger,
		tasks:    make(map[uint64]*task),
		asyncSem: make(chan struct{}, maxAsync),
		cron:     cron.New(cron.WithSeconds()),
	}
}

// Start launches the tick goroutine and the cron scheduler. Idempotent.
func (s *Scheduler) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.stopped.Store(false)
	s.stopCh = make(chan struct{})
	s.ticker = time.NewTicker(TickPeriod)
	s.cron.Start()

	s.doneWG.Add(1)
	go s.run()
}

// Stop halts the tick loop and the cron scheduler, waits for in-flight
// async tasks to finish, and clears all scheduling state. Idempotent.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.stopped.Store(true)
	close(s.stopCh)
	s.doneWG.Wait()
	s.ticker.Stop()
	<-s.cron.Stop().Done()

	s.asyncWG.Wait()

	s.mu.Lock()
	s.tasks = make(map[uint64]*task)
	s.ready = nil
	s.mu.Unlock()

	s.deferredMu.Lock()
	s.deferred = nil
	s.deferredMu.Unlock()
}

func (s *Scheduler) run() {
	defer s.doneWG.Done()
	s.tickGoroutineID.Store(goroutineID())
	for {
		select {
		case <-s.ticker.C:
			s.tick()
		case <-s.stopCh:
			return
		}
	}
}

// CurrentTick returns the number of the most recently started tick;
// while a tick is in flight this is that tick's number.
func (s *Scheduler) CurrentTick() uint64 { return s.currentTick.Load() }

// IsTickThread reports whether the calling goroutine is the scheduler's
// tick goroutine, letting a caller holding a reference from off-tick
// code decide whether to run something inline or bounce it through
// RunTask instead. Returns false when the scheduler has never started.
func (s *Scheduler) IsTickThread() bool {
	id := s.tickGoroutineID.Load()
	return id != 0 && id == goroutineID()
}

// RunTask schedules fn to run on the next tick at Normal priority.
func (s *Scheduler) RunTask(owner string, fn TaskFunc) Handle {
	return s.RunTaskLater(owner, fn, 0, Normal)
}

// RunTaskLater schedules fn to run delayTicks ticks from now. A delay
// of 0 runs on the next tick; an off-tick submission made while a tick
// is in flight may instead run within that tick. Submission is accepted
// both before
// the first Start and while running; only after Stop is it rejected
// silently, matching spec.md §4.4(e)'s shutdown edge case — the
// returned handle's Cancel is then a no-op.
func (s *Scheduler) RunTaskLater(owner string, fn TaskFunc, delayTicks uint64, priority Priority) Handle {
	if s.stopped.Load() {
		return Handle{}
	}
	t := &task{
		id:          s.taskIDCounter.Add(1),
		owner:       owner,
		fn:          fn,
		executeTick: s.nextTickBase() + delayTicks,
		priority:    priority,
		heapIndex:   -1,
	}
	s.insert(t)
	return Handle{id: t.id, sched: s}
}

// RunTaskTimer schedules fn to run every periodTicks ticks, starting
// delayTicks from now. periodTicks is clamped to at least 1.
func (s *Scheduler) RunTaskTimer(owner string, fn TaskFunc, delayTicks, periodTicks uint64, priority Priority) Handle {
	if s.stopped.Load() {
		return Handle{}
	}
	if periodTicks == 0 {
		periodTicks = 1
	}
	t := &task{
		id:          s.taskIDCounter.Add(1),
		owner:       owner,
		fn:          fn,
		executeTick: s.nextTickBase() + delayTicks,
		periodTicks: periodTicks,
		priority:    priority,
		heapIndex:   -1,
	}
	s.insert(t)
	return Handle{id: t.id, sched: s}
}

// nextTickBase is the tick number a delay=0 submission lands on.
// Between ticks currentTick holds the last completed tick, so for an
// off-tick caller currentTick+delayTicks already means "the following
// tick"; an off-tick caller racing an in-flight tick gets that tick's
// number and may be drained within it.
// A task running on the tick goroutine itself sees currentTick already
// bumped to the in-flight tick number, so without the +1 here a
// delay=0 self-resubmission would land back in the same tick's
// ready-drain loop instead of the next one (spec §8's mid-tick
// submission boundary).
func (s *Scheduler) nextTickBase() uint64 {
	base := s.currentTick.Load()
	if s.IsTickThread() {
		base++
	}
	return base
}

// RunTaskAsync submits fn to the bounded async pool immediately, outside
// the tick loop entirely. Its duration is recorded to the metrics
// registry only: async work does not consume tick budget (spec §4.4(d)).
func (s *Scheduler) RunTaskAsync(owner string, fn TaskFunc) {
	if s.stopped.Load() {
		return
	}
	s.asyncWG.Add(1)
	go func() {
		defer s.asyncWG.Done()
		s.asyncSem <- struct{}{}
		defer func() { <-s.asyncSem }()

		defer s.recoverTask(owner)

		start := time.Now()
		fn()
		s.recordAsyncExecution(owner, time.Since(start))
	}()
}

// Future is the result handle for a callable submitted via
// RunTaskAsyncResult: the async analogue of spec.md §4.4(d)'s "future-
// like handle when a callable variant is used".
type Future struct {
	done chan struct{}
	val  any
	err  error
}

// Wait blocks until the callable completes and returns its result.
func (f *Future) Wait() (any, error) {
	<-f.done
	return f.val, f.err
}

// RunTaskAsyncResult submits a callable to the async pool and returns a
// Future the caller can Wait on, rather than firing-and-forgetting.
func (s *Scheduler) RunTaskAsyncResult(owner string, fn func() (any, error)) *Future {
	fut := &Future{done: make(chan struct{})}
	if s.stopped.Load() {
		close(fut.done)
		return fut
	}

	s.asyncWG.Add(1)
	go func() {
		defer s.asyncWG.Done()
		s.asyncSem <- struct{}{}
		defer func() { <-s.asyncSem }()
		defer close(fut.done)

		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				fut.err = panicAsError(r)
				s.metrics.Counter("scheduler.task.errors").Inc()
			}
			s.recordAsyncExecution(owner, time.Since(start))
		}()

		fut.val, fut.err = fn()
	}()
	return fut
}

// ScheduleCron supplements the tick scheduler with wall-clock cron
// scheduling for tasks that should run on a real-time schedule rather
// than a tick cadence (e.g. "every night at 03:00, persist world
// state"). Grounded on the teacher's SchedulerAPI.ScheduleCron, backed
// here by github.com/robfig/cron/v3 instead of a hand-rolled cron
// parser.
func (s *Scheduler) ScheduleCron(owner, spec string, fn TaskFunc) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, func() {
		defer s.recoverTask(owner)
		start := time.Now()
		fn()
		s.recordExecution(owner, time.Since(start))
	})
}

// CancelCron removes a previously scheduled cron entry.
func (s *Scheduler) CancelCron(id cron.EntryID) {
	s.cron.Remove(id)
}

// Defer enqueues fn to run during the current tick's deferred-drain
// phase, after every regular tick task. Intended for non-critical,
// budget-sensitive work (e.g. telemetry flush, housekeeping).
func (s *Scheduler) Defer(owner string, fn TaskFunc, priority Priority) {
	s.deferredMu.Lock()
	defer s.deferredMu.Unlock()
	s.deferred = append(s.deferred, &deferredTask{owner: owner, fn: fn, priority: priority})
}

func (s *Scheduler) insert(t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.id] = t
	heap.Push(&s.ready, t)
}

// cancelTask removes a task from the live table. If it is still sitting
// in the ready heap, it is also removed from there so a stale periodic
// re-insertion cannot resurrect it.
func (s *Scheduler) cancelTask(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	delete(s.tasks, id)
	if t.heapIndex >= 0 {
		heap.Remove(&s.ready, t.heapIndex)
	}
	return true
}

// CancelOwner cancels every live task owned by owner (e.g. on unit
// disable/unload), returning how many were cancelled.
func (s *Scheduler) CancelOwner(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uint64
	for id, t := range s.tasks {
		if t.owner == owner {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		t := s.tasks[id]
		delete(s.tasks, id)
		if t.heapIndex >= 0 {
			heap.Remove(&s.ready, t.heapIndex)
		}
	}
	return len(ids)
}

func (s *Scheduler) tick() {
	tickNumber := s.currentTick.Add(1)
	tickStart := time.Now()
	budgetNanos := int64(s.budget.TickBudget())

	s.budget.ResetTickBudgets()

	var processed, deferredCount int

	for {
		t, deferred, stop := s.popReady(tickNumber, budgetNanos, time.Since(tickStart))
		if stop {
			break
		}
		if deferred {
			deferredCount++
			continue
		}
		if t == nil {
			continue
		}

		// The closure runs with s.mu released so that a task which
		// itself calls back into the scheduler (RunTask, CancelOwner,
		// etc. — e.g. a unit's OnDisable hook invoked from a tick
		// task) does not deadlock against the non-reentrant mutex
		// held by this loop.
		s.runReady(t, tickNumber)
		processed++
	}

	remaining := time.Duration(budgetNanos) - time.Since(tickStart)
	if remaining > 0 {
		quarterBudget := time.Duration(budgetNanos) / 4
		if remaining < quarterBudget {
			s.processDeferred(remaining)
		} else {
			s.processDeferred(quarterBudget)
		}
	}

	duration := time.Since(tickStart)
	s.metrics.RecordTickDuration(int64(duration))
	s.metrics.Counter("scheduler.tasks.processed").Add(uint64(processed))
	s.metrics.Counter("scheduler.tasks.deferred").Add(uint64(deferredCount))

	if duration > TickPeriod {
		s.budget.ReportTickOverrun(tickNumber, duration)
	}
}

// popReady pops and returns the next task eligible to run this tick, or
// reports deferred=true if the top of the heap was pushed back to
// next-tick under global or per-unit budget pressure, or stop=true once
// the heap is empty or its top is not yet due. Cancelled tasks (absent
// from s.tasks) are silently skipped and the caller should loop again.
func (s *Scheduler) popReady(tickNumber uint64, budgetNanos int64, elapsedSinceTickStart time.Duration) (t *task, deferred bool, stop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.ready.Len() > 0 {
		top := s.ready[0]
		if top.executeTick > tickNumber {
			return nil, false, true
		}
		heap.Pop(&s.ready)

		if _, live := s.tasks[top.id]; !live {
			continue
		}

		if top.priority != Critical {
			overGlobal := elapsedSinceTickStart.Nanoseconds() > budgetNanos
			overUnit := !s.budget.WithinBudget(top.owner)
			if overGlobal || overUnit {
				top.executeTick = tickNumber + 1
				heap.Push(&s.ready, top)
				return nil, true, false
			}
		}

		return top, false, false
	}
	return nil, false, true
}

// runReady executes t's closure with no scheduler lock held, then
// reacquires the lock to re-insert it (if periodic and still live) or
// drop it from the live-task table. Running the closure unlocked lets a
// task that calls back into the scheduler (RunTask, CancelOwner, a
// unit's OnDisable hook, ...) avoid deadlocking against the
// non-reentrant mutex this loop otherwise holds. A panic inside t.fn is
// recovered and counted, never propagated into the tick loop.
func (s *Scheduler) runReady(t *task, tickNumber uint64) {
	func() {
		defer s.recoverTask(t.owner)
		start := time.Now()
		t.fn()
		s.recordExecution(t.owner, time.Since(start))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if t.periodTicks > 0 {
		if _, stillLive := s.tasks[t.id]; stillLive {
			t.executeTick = tickNumber + t.periodTicks
			heap.Push(&s.ready, t)
			return
		}
	}
	delete(s.tasks, t.id)
}

func (s *Scheduler) processDeferred(budget time.Duration) {
	start := time.Now()

	s.deferredMu.Lock()
	pending := s.deferred
	s.deferred = nil
	s.deferredMu.Unlock()

	var remaining []*deferredTask
	for i, dt := range pending {
		if time.Since(start) > budget {
			remaining = append(remaining, pending[i:]...)
			break
		}
		s.runDeferred(dt)
	}

	if len(remaining) > 0 {
		s.deferredMu.Lock()
		s.deferred = append(remaining, s.deferred...)
		s.deferredMu.Unlock()
	}
}

func (s *Scheduler) runDeferred(dt *deferredTask) {
	defer s.recoverTask(dt.owner)
	dt.fn()
}

func (s *Scheduler) recoverTask(owner string) {
	if r := recover(); r != nil {
		s.metrics.Counter("scheduler.task.errors").Inc()
		if s.logger != nil {
			s.logger.Error("task panicked", corerr.TaskError(owner, panicAsError(r)))
		}
	}
}

// recordExecution is for tick-thread and cron work: it charges the
// owner's C2 budget, which itself forwards the duration to C1's
// "task.<owner>" timer. Async work must not consume tick budget (spec
// §4.4(d)) and uses recordAsyncExecution instead.
func (s *Scheduler) recordExecution(owner string, d time.Duration) {
	s.budget.RecordExecution(owner, d)
}

// recordAsyncExecution records duration to C1 only, leaving the owner's
// C2 tick budget untouched.
func (s *Scheduler) recordAsyncExecution(owner string, d time.Duration) {
	s.metrics.RecordTaskExecution(owner, d)
}

func panicAsError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}

// goroutineID extracts the calling goroutine's numeric id from its
// stack trace header ("goroutine 123 [running]: ..."). Go deliberately
// has no public goroutine-local-storage API; this is the conventional
// stdlib-only workaround used for exactly one purpose here — letting
// IsTickThread compare "am I the goroutine that owns the tick loop"
// without threading a context value through every call path a unit
// might use to check. Called once when the tick goroutine starts, and
// on every IsTickThread query (directly, or via nextTickBase on task
// submission) — never inside the ready-drain loop itself.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	_, _ = fmt.Sscanf(string(buf[:n]), "goroutine %d ", &id)
	return id
}
