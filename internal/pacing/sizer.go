package pacing

// SubCycle identifies which half of the daily cycle a step belongs to.
// Each sub-cycle has its own drain deadline.
type SubCycle int

const (
	// SubCycleNone is any step outside [0, lastStep].
	SubCycleNone SubCycle = iota
	// SubCycleEarly covers steps [0, midpoint).
	SubCycleEarly
	// SubCycleLate covers steps [midpoint, lastStep], midpoint included.
	SubCycleLate
)

func (s SubCycle) String() string {
	switch s {
	case SubCycleEarly:
		return "early"
	case SubCycleLate:
		return "late"
	default:
		return "none"
	}
}

// SubCycleOf classifies step.
func SubCycleOf(step, midpoint, lastStep Step) SubCycle {
	switch {
	case step < 0 || step > lastStep:
		return SubCycleNone
	case step < midpoint:
		return SubCycleEarly
	default:
		return SubCycleLate
	}
}

// RemainingInSubCycle is the number of invocations left before the deadline of
// step's sub-cycle, the current one included. It is 0 outside the cycle.
func RemainingInSubCycle(step, midpoint, lastStep Step) int {
	switch SubCycleOf(step, midpoint, lastStep) {
	case SubCycleEarly:
		return int(midpoint - step)
	case SubCycleLate:
		return int(lastStep + 1 - step)
	default:
		return 0
	}
}

// SelectionSize returns how many items to release at step so that
// backlogCount drains evenly by the sub-cycle deadline, never less than floor.
// Steps outside the cycle release nothing.
func SelectionSize(step Step, backlogCount int, midpoint, lastStep Step, floor int) int {
	remaining := RemainingInSubCycle(step, midpoint, lastStep)
	if remaining <= 0 {
		return 0
	}
	if backlogCount < 0 {
		backlogCount = 0
	}
	raw := (backlogCount + remaining - 1) / remaining
	if raw < floor {
		return floor
	}
	return raw
}
