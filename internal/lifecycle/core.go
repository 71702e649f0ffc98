// Package lifecycle implements the orchestrator tying the runtime
// core's C1–C5 subsystems together: bring-up order, rollback on a
// failed start, shutdown-hook-driven teardown, and config/unit reload.
// Grounded on the original RubidiumCore/LifecycleManager split.
package lifecycle

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rubidium-run/rubidium/internal/budget"
	"github.com/rubidium-run/rubidium/internal/config"
	"github.com/rubidium-run/rubidium/internal/corelog"
	"github.com/rubidium-run/rubidium/internal/metrics"
	"github.com/rubidium-run/rubidium/internal/scheduler"
	"github.com/rubidium-run/rubidium/internal/unit"
)

// metricsExportPeriodTicks exports a metrics snapshot to every
// registered sink roughly once a second at the scheduler's 20 TPS rate.
const metricsExportPeriodTicks = scheduler.TicksPerSecond

// Core is the runtime core's top-level orchestrator. Construct with New
// and drive it through Start/Stop/Reload; it owns C1 (Metrics), C2
// (Budget), C3 (Config), C4 (Scheduler), and C5 (Units).
type Core struct {
	dataDir string

	Logs      *corelog.Manager
	Metrics   *metrics.Registry
	Budget    *budget.Manager
	Config    *config.Store
	Scheduler *scheduler.Scheduler
	Units     *unit.Manager

	phase     atomic.Int32
	startTime atomic.Int64

	hooks hookRegistry
}

// New constructs every subsystem but starts none of them, mirroring the
// original constructor's "wire everything, start nothing" split from
// start().
func New(dataDir, product string) (*Core, error) {
	logs, err := corelog.New(filepath.Join(dataDir, "logs"), product)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: create log manager: %w", err)
	}

	m := metrics.New(product)
	b := budget.New(m)
	cfg := config.New(filepath.Join(dataDir, "config"))
	sched := scheduler.New(b, m, logs.Logger("scheduler"), scheduler.Options{})
	units := unit.New(filepath.Join(dataDir, "units"), logs, cfg, sched, m, b)

	c := &Core{
		dataDir:   dataDir,
		Logs:      logs,
		Metrics:   m,
		Budget:    b,
		Config:    cfg,
		Scheduler: sched,
		Units:     units,
	}
	c.phase.Store(int32(Stopped))
	return c, nil
}

// Phase returns the current lifecycle phase.
func (c *Core) Phase() Phase { return Phase(c.phase.Load()) }

// IsRunning reports whether the core is in the Running phase.
func (c *Core) IsRunning() bool { return c.Phase() == Running }

// Uptime returns how long the core has been running, or 0 if stopped.
func (c *Core) Uptime() time.Duration {
	if !c.IsRunning() {
		return 0
	}
	return time.Since(time.Unix(0, c.startTime.Load()))
}

// AddListener registers a phase-transition listener.
func (c *Core) AddListener(l Listener) { c.hooks.addListener(l) }

// AddShutdownHook registers an action to run during Stopping, in
// reverse registration order.
func (c *Core) AddShutdownHook(name string, action func()) {
	c.hooks.addShutdownHook(name, action)
}

func (c *Core) transition(p Phase) {
	old := Phase(c.phase.Swap(int32(p)))
	if old != p {
		c.Logs.Logger("core").Info(fmt.Sprintf("lifecycle transition: %s -> %s", old, p))
		c.hooks.notify(old, p)
	}
}

// Start brings up C1 through C5 in order: config, budget limits seeded
// from config, scheduler, then unit discovery/load/enable. A failure at
// any step rolls back everything already started, in reverse order,
// and returns the triggering error. Idempotent: calling Start while
// already running is a no-op.
func (c *Core) Start() error {
	if c.IsRunning() {
		c.Logs.Logger("core").Warn("core is already running")
		return nil
	}

	c.startTime.Store(time.Now().UnixNano())
	c.transition(Starting)
	logger := c.Logs.Logger("core")
	logger.Info("starting runtime core")

	var configStarted, schedulerStarted bool

	rollback := func(cause error) error {
		logger.Error("startup failed, rolling back", cause)
		c.Units.UnloadAll()
		if schedulerStarted {
			c.Scheduler.Stop()
		}
		if configStarted {
			c.Config.Shutdown()
		}
		c.transition(Stopped)
		return fmt.Errorf("lifecycle: start failed: %w", cause)
	}

	if err := c.Config.Initialize(); err != nil {
		return rollback(err)
	}
	configStarted = true

	limits, err := config.Register(c.Config, config.LimitsID, func() *config.LimitsConfig {
		return &config.LimitsConfig{}
	}, limitsDefault())
	if err != nil {
		return rollback(err)
	}
	c.Budget.SetTickBudget(limits.TickBudget())
	c.Config.AddListener(config.LimitsID, func(_, updated config.TypedConfig) {
		if l, ok := updated.(*config.LimitsConfig); ok {
			c.Budget.SetTickBudget(l.TickBudget())
		}
	})

	c.Scheduler.Start()
	schedulerStarted = true

	c.Metrics.AddExporter(metrics.NewLogSink(c.Logs.Logger("metrics")))
	c.Scheduler.RunTaskTimer("core", c.Metrics.ExportToAll, metricsExportPeriodTicks, metricsExportPeriodTicks, scheduler.Low)

	if failures := c.Units.DiscoverAndLoad(); len(failures) > 0 {
		for id, ferr := range failures {
			logger.Error(fmt.Sprintf("unit %q failed during startup", id), ferr)
		}
	}

	c.transition(Running)
	logger.Info(fmt.Sprintf("runtime core started in %s", time.Since(time.Unix(0, c.startTime.Load()))))
	return nil
}

// Stop tears down C5 through C1 in reverse bring-up order, running
// shutdown hooks first. Idempotent.
func (c *Core) Stop() {
	if !c.IsRunning() && c.Phase() != Reloading {
		return
	}

	logger := c.Logs.Logger("core")
	logger.Info("stopping runtime core")
	c.transition(Stopping)
	c.hooks.runShutdownHooksReverse()

	c.Units.UnloadAll()
	c.Scheduler.Stop()
	c.Config.Shutdown()

	c.transition(Stopped)
	logger.Info("runtime core stopped")
	c.Logs.Shutdown()
}

// Reload reloads every hot-reloadable config and every enabled unit
// that supports it, without stopping the scheduler or unloading units.
func (c *Core) Reload() {
	logger := c.Logs.Logger("core")
	logger.Info("reloading runtime core")
	c.transition(Reloading)

	if failures := c.Config.ReloadAll(); len(failures) > 0 {
		for id, ferr := range failures {
			logger.Error(fmt.Sprintf("config %q failed to reload", id), ferr)
		}
	}
	if failures := c.Units.ReloadAll(); len(failures) > 0 {
		for id, ferr := range failures {
			logger.Error(fmt.Sprintf("unit %q failed to reload", id), ferr)
		}
	}

	c.transition(Running)
	logger.Info("runtime core reloaded")
}

func limitsDefault() *config.LimitsConfig {
	d := config.DefaultLimitsConfig()
	return &d
}
