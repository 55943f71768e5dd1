package runtime

import "time"

// Config holds the per-project engine knobs. All thresholds live in
// configuration; the defaults below are fallbacks for tests and bare setups.
type Config struct {
	// MaxSteps bounds the number of execution cycles for one run.
	MaxSteps int
	// Timeout is the per-run wall-clock budget. Zero disables it.
	Timeout time.Duration
	// MaxConcurrentNodes caps the READY fan-out within one cycle.
	MaxConcurrentNodes int64
	// MaxPlanningLayer bounds recursion depth; a PLAN node at this layer is
	// forced through the atomizer's atomic branch.
	MaxPlanningLayer int
	// MaxReplanAttempts bounds how often a PLAN node may replan before it
	// fails.
	MaxReplanAttempts int
	// MaxRecoveryAttempts bounds targeted recoveries per node before a
	// forced failure.
	MaxRecoveryAttempts int

	// Stuck-node escalation thresholds over time-in-status.
	StuckWarning time.Duration
	StuckSoft    time.Duration
	StuckHard    time.Duration

	// MonitorInterval is how often the stuck monitor scans while a READY
	// fan-out is in flight.
	MonitorInterval time.Duration

	// PlanDoneSettleBound caps the PLAN_DONE settling passes in one cycle.
	PlanDoneSettleBound int
}

// DefaultConfig returns the compiled-in fallbacks.
func DefaultConfig() Config {
	return Config{
		MaxSteps:            250,
		Timeout:             10 * time.Minute,
		MaxConcurrentNodes:  8,
		MaxPlanningLayer:    3,
		MaxReplanAttempts:   2,
		MaxRecoveryAttempts: 2,
		StuckWarning:        30 * time.Second,
		StuckSoft:           90 * time.Second,
		StuckHard:           3 * time.Minute,
		MonitorInterval:     500 * time.Millisecond,
		PlanDoneSettleBound: 10,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxSteps <= 0 {
		c.MaxSteps = def.MaxSteps
	}
	if c.MaxConcurrentNodes <= 0 {
		c.MaxConcurrentNodes = def.MaxConcurrentNodes
	}
	if c.MaxPlanningLayer <= 0 {
		c.MaxPlanningLayer = def.MaxPlanningLayer
	}
	if c.MaxReplanAttempts <= 0 {
		c.MaxReplanAttempts = def.MaxReplanAttempts
	}
	if c.MaxRecoveryAttempts <= 0 {
		c.MaxRecoveryAttempts = def.MaxRecoveryAttempts
	}
	if c.StuckWarning <= 0 {
		c.StuckWarning = def.StuckWarning
	}
	if c.StuckSoft <= 0 {
		c.StuckSoft = def.StuckSoft
	}
	if c.StuckHard <= 0 {
		c.StuckHard = def.StuckHard
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = def.MonitorInterval
	}
	if c.PlanDoneSettleBound <= 0 {
		c.PlanDoneSettleBound = def.PlanDoneSettleBound
	}
	return c
}
