package config

import (
	"fmt"
	"strconv"
	"time"
)

// LimitsID is the well-known id the lifecycle orchestrator registers
// its own scheduling limits under, so an operator can hand-edit
// <data_dir>/config/limits.properties and have the tick budget
// hot-reload without a restart. unit_budget_ms and max_concurrent_async
// are loaded and validated but not applied by the core.
const LimitsID = "limits"

// LimitsConfig is the runtime core's own config, supplementing
// spec.md's C2/C3 wiring with the original RubidiumConfig's
// tick-budget and module-budget knobs.
type LimitsConfig struct {
	BaseConfig

	TickBudgetMillis   int
	UnitBudgetMillis   int
	MaxConcurrentAsync int
}

// DefaultLimitsConfig mirrors budget.DefaultTickBudget/DefaultUnitBudget
// so a freshly initialized data directory gets sane out-of-the-box
// values without internal/config importing internal/budget.
func DefaultLimitsConfig() LimitsConfig {
	return LimitsConfig{
		TickBudgetMillis:   45,
		UnitBudgetMillis:   10,
		MaxConcurrentAsync: 4,
	}
}

func (c *LimitsConfig) Load(kv map[string]string) error {
	var err error
	if c.TickBudgetMillis, err = intOr(kv, "tick_budget_ms", 45); err != nil {
		return err
	}
	if c.UnitBudgetMillis, err = intOr(kv, "unit_budget_ms", 10); err != nil {
		return err
	}
	if c.MaxConcurrentAsync, err = intOr(kv, "max_concurrent_async", 4); err != nil {
		return err
	}
	return nil
}

func (c *LimitsConfig) Save(kv map[string]string) {
	kv["tick_budget_ms"] = strconv.Itoa(c.TickBudgetMillis)
	kv["unit_budget_ms"] = strconv.Itoa(c.UnitBudgetMillis)
	kv["max_concurrent_async"] = strconv.Itoa(c.MaxConcurrentAsync)
}

func (c *LimitsConfig) Validate() []string {
	var errs []string
	if c.TickBudgetMillis < 1 || c.TickBudgetMillis >= 100 {
		errs = append(errs, "tick_budget_ms must be in [1, 100)")
	}
	if c.UnitBudgetMillis < 1 {
		errs = append(errs, "unit_budget_ms must be >= 1")
	}
	if c.MaxConcurrentAsync < 1 {
		errs = append(errs, "max_concurrent_async must be >= 1")
	}
	return errs
}

// TickBudget returns TickBudgetMillis as a time.Duration.
func (c *LimitsConfig) TickBudget() time.Duration {
	return time.Duration(c.TickBudgetMillis) * time.Millisecond
}

// UnitBudget returns UnitBudgetMillis as a time.Duration.
func (c *LimitsConfig) UnitBudget() time.Duration {
	return time.Duration(c.UnitBudgetMillis) * time.Millisecond
}

func intOr(kv map[string]string, key string, def int) (int, error) {
	v, ok := kv[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
