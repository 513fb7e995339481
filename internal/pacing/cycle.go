package pacing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	// The canonical zone must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"
)

// Step is the index of a checkpoint within the daily cycle (0..N-1).
type Step int

// CycleTable maps checkpoint labels ("HH:MM") to steps.
// It is immutable once built; the zero value is an empty table.
type CycleTable struct {
	labels []string
	steps  map[string]Step
}

// NewCycleTable builds a table from checkpoint labels in cycle order.
// Label i gets step i. Labels must be valid HH:MM on the hour and strictly
// increasing, since steps resolve by hour.
func NewCycleTable(labels ...string) (CycleTable, error) {
	if len(labels) == 0 {
		return CycleTable{}, errors.New("cycle table: at least one checkpoint required")
	}
	t := CycleTable{
		labels: make([]string, 0, len(labels)),
		steps:  make(map[string]Step, len(labels)),
	}
	prev := -1
	for i, raw := range labels {
		label, mins, err := normalizeLabel(raw)
		if err != nil {
			return CycleTable{}, fmt.Errorf("cycle table: checkpoint %d: %w", i, err)
		}
		if mins%60 != 0 {
			return CycleTable{}, fmt.Errorf("cycle table: checkpoint %q is not on the hour", label)
		}
		if mins <= prev {
			return CycleTable{}, fmt.Errorf("cycle table: checkpoint %q is not after %q", label, t.labels[len(t.labels)-1])
		}
		prev = mins
		t.labels = append(t.labels, label)
		t.steps[label] = Step(i)
	}
	return t, nil
}

// MustCycleTable is NewCycleTable for static tables; it panics on error.
func MustCycleTable(labels ...string) CycleTable {
	t, err := NewCycleTable(labels...)
	if err != nil {
		panic(err)
	}
	return t
}

// HourlyCycleTable returns one checkpoint per hour from firstHour to lastHour inclusive.
func HourlyCycleTable(firstHour, lastHour int) (CycleTable, error) {
	if firstHour < 0 || lastHour > 23 || firstHour > lastHour {
		return CycleTable{}, fmt.Errorf("cycle table: invalid hour range %d..%d", firstHour, lastHour)
	}
	labels := make([]string, 0, lastHour-firstHour+1)
	for h := firstHour; h <= lastHour; h++ {
		labels = append(labels, fmt.Sprintf("%02d:00", h))
	}
	return NewCycleTable(labels...)
}

// Lookup returns the step for label. A miss is an idle period, not an error.
func (t CycleTable) Lookup(label string) (Step, bool) {
	s, ok := t.steps[label]
	return s, ok
}

// Len returns the number of checkpoints.
func (t CycleTable) Len() int { return len(t.labels) }

// Labels returns a copy of the checkpoint labels in step order.
func (t CycleTable) Labels() []string {
	return append([]string(nil), t.labels...)
}

// Label returns the label of step s, or "" if s is out of range.
func (t CycleTable) Label(s Step) string {
	if s < 0 || int(s) >= len(t.labels) {
		return ""
	}
	return t.labels[s]
}

// LastStep returns the highest step in the table, or -1 for an empty table.
func (t CycleTable) LastStep() Step { return Step(len(t.labels) - 1) }

// HourLabel truncates now to the start of its hour in zone and formats it as HH:MM.
func HourLabel(now time.Time, zone *time.Location) string {
	if zone == nil {
		zone = time.UTC
	}
	return fmt.Sprintf("%02d:00", now.In(zone).Hour())
}

// ResolveStep maps now to a cycle step in the given zone.
// It returns false for hours the table does not cover; callers release nothing then.
func ResolveStep(now time.Time, table CycleTable, zone *time.Location) (Step, bool) {
	return table.Lookup(HourLabel(now, zone))
}

func normalizeLabel(raw string) (string, int, error) {
	s := strings.TrimSpace(raw)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return "", 0, fmt.Errorf("invalid checkpoint %q, expected HH:MM", raw)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return "", 0, fmt.Errorf("invalid hour in %q", raw)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 || m < 0 || m > 59 {
		return "", 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return fmt.Sprintf("%02d:%02d", h, m), h*60 + m, nil
}
