package pacing

import "testing"

func TestSubCycleBoundaries(t *testing.T) {
	const mid, last Step = 10, 18
	cases := []struct {
		step      Step
		sub       SubCycle
		remaining int
	}{
		{-1, SubCycleNone, 0},
		{0, SubCycleEarly, 10},
		{9, SubCycleEarly, 1},
		{10, SubCycleLate, 9}, // midpoint belongs to the late sub-cycle
		{17, SubCycleLate, 2},
		{18, SubCycleLate, 1},
		{19, SubCycleNone, 0},
	}
	for _, tc := range cases {
		if got := SubCycleOf(tc.step, mid, last); got != tc.sub {
			t.Fatalf("SubCycleOf(%d) = %s, want %s", tc.step, got, tc.sub)
		}
		if got := RemainingInSubCycle(tc.step, mid, last); got != tc.remaining {
			t.Fatalf("RemainingInSubCycle(%d) = %d, want %d", tc.step, got, tc.remaining)
		}
	}
}

func TestSelectionSize(t *testing.T) {
	const mid, last Step = 10, 18
	cases := []struct {
		name    string
		step    Step
		backlog int
		floor   int
		want    int
	}{
		{"ceil division early", 1, 14, 1, 2},     // ceil(14/9)
		{"exact division", 0, 100, 1, 10},         // 100/10
		{"floor wins", 0, 14, 50, 50},             // ceil(14/10)=2 < 50
		{"raw wins over floor", 0, 1000, 50, 100}, // 1000/10
		{"midpoint uses late deadline", 10, 90, 0, 10},
		{"last step drains everything", 18, 137, 1, 137},
		{"last step clamped by floor", 18, 3, 10, 10},
		{"empty backlog gives floor", 4, 0, 50, 50},
		{"empty backlog zero floor", 4, 0, 0, 0},
		{"negative backlog treated as empty", 4, -5, 0, 0},
		{"outside cycle", 19, 1000, 50, 0},
		{"before cycle", -1, 1000, 50, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SelectionSize(tc.step, tc.backlog, mid, last, tc.floor); got != tc.want {
				t.Fatalf("SelectionSize(%d, %d) = %d, want %d", tc.step, tc.backlog, got, tc.want)
			}
		})
	}
}

func TestSelectionSizeMatchesCeilFormula(t *testing.T) {
	const mid, last Step = 10, 18
	for step := Step(0); step <= last; step++ {
		remaining := RemainingInSubCycle(step, mid, last)
		for backlog := 0; backlog <= 250; backlog += 7 {
			for _, floor := range []int{0, 1, 13, 50} {
				raw := backlog / remaining
				if backlog%remaining != 0 {
					raw++
				}
				want := max(raw, floor)
				if got := SelectionSize(step, backlog, mid, last, floor); got != want {
					t.Fatalf("step=%d backlog=%d floor=%d: got %d want %d", step, backlog, floor, got, want)
				}
			}
		}
	}
}

// Draining a fixed backlog across a sub-cycle releases everything by the
// final step, and the cumulative release never decreases.
func TestSubCycleDrainsByDeadline(t *testing.T) {
	const mid, last Step = 10, 18
	for _, start := range []struct {
		first, deadline Step
	}{{0, mid - 1}, {mid, last}} {
		for _, backlog := range []int{0, 1, 14, 99, 500, 12345} {
			for _, floor := range []int{0, 1, 50} {
				pending := backlog
				released := 0
				for step := start.first; step <= start.deadline; step++ {
					size := SelectionSize(step, pending, mid, last, floor)
					take := min(size, pending)
					if take < 0 {
						t.Fatalf("step %d released a negative amount", step)
					}
					released += take
					pending -= take
				}
				if released != backlog {
					t.Fatalf("sub-cycle from %d: backlog=%d floor=%d released %d", start.first, backlog, floor, released)
				}
			}
		}
	}
}
