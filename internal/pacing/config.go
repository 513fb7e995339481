package pacing

import (
	"errors"
	"fmt"
	"time"
)

// DefaultZone is the canonical settlement zone. Checkpoints are defined in it
// regardless of where the dispatcher runs.
const DefaultZone = "America/New_York"

// Config is the immutable pacing configuration, built once at startup.
type Config struct {
	Table CycleTable

	// Midpoint splits the cycle: steps [0, Midpoint) are the early sub-cycle,
	// [Midpoint, LastStep] the late one. Zero leaves the early sub-cycle empty.
	Midpoint Step
	LastStep Step

	// Floor is the minimum selection size for any in-cycle invocation.
	Floor int

	// WaveSize caps the items spread across one window.
	WaveSize int
	// WindowSeconds is the time budget a wave is spread across.
	WindowSeconds int

	Zone *time.Location
}

// DefaultConfig returns the settlement schedule: hourly checkpoints from 05:00
// to 23:00, the late sub-cycle starting at 15:00, a floor of 50 items and waves
// of 11 spread over five minutes.
func DefaultConfig() Config {
	table, err := HourlyCycleTable(5, 23)
	if err != nil {
		panic(err)
	}
	zone, err := time.LoadLocation(DefaultZone)
	if err != nil {
		panic(fmt.Sprintf("pacing: load %s: %v", DefaultZone, err))
	}
	return Config{
		Table:         table,
		Midpoint:      10,
		LastStep:      table.LastStep(),
		Floor:         50,
		WaveSize:      11,
		WindowSeconds: 300,
		Zone:          zone,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Table.Len() == 0 {
		return errors.New("pacing: cycle table is empty")
	}
	if c.LastStep < 0 || c.LastStep > c.Table.LastStep() {
		return fmt.Errorf("pacing: last_step %d outside table (0..%d)", c.LastStep, c.Table.LastStep())
	}
	if c.Midpoint < 0 || c.Midpoint > c.LastStep {
		return fmt.Errorf("pacing: midpoint %d must be in 0..%d", c.Midpoint, c.LastStep)
	}
	if c.Floor < 0 {
		return errors.New("pacing: floor must be >= 0")
	}
	if c.WaveSize < 1 {
		return errors.New("pacing: wave_size must be >= 1")
	}
	if c.WindowSeconds < 0 {
		return errors.New("pacing: window_seconds must be >= 0")
	}
	if c.Zone == nil {
		return errors.New("pacing: zone is required")
	}
	return nil
}

// Window returns the wave window as a duration.
func (c Config) Window() time.Duration { return time.Duration(c.WindowSeconds) * time.Second }

// Resolve maps now to a cycle step using the configured table and zone.
func (c Config) Resolve(now time.Time) (Step, bool) {
	return ResolveStep(now, c.Table, c.Zone)
}

// SubCycleOf classifies step against the configured midpoint and last step.
func (c Config) SubCycleOf(step Step) SubCycle {
	return SubCycleOf(step, c.Midpoint, c.LastStep)
}

// SelectionSize sizes an invocation at step for backlogCount pending items.
func (c Config) SelectionSize(step Step, backlogCount int) int {
	return SelectionSize(step, backlogCount, c.Midpoint, c.LastStep, c.Floor)
}
