package pacing

import (
	"testing"
	"time"
)

func mustZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return loc
}

func TestNewCycleTableRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		labels []string
	}{
		{"empty", nil},
		{"malformed", []string{"5am"}},
		{"bad hour", []string{"24:00"}},
		{"bad minute", []string{"05:7"}},
		{"duplicate", []string{"05:00", "05:00"}},
		{"decreasing", []string{"06:00", "05:00"}},
		{"off the hour", []string{"05:00", "05:30", "06:00"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewCycleTable(tc.labels...); err == nil {
				t.Fatalf("expected error for %v", tc.labels)
			}
		})
	}
}

func TestCycleTableLookup(t *testing.T) {
	table := MustCycleTable("05:00", " 6:00", "07:00")
	if table.Len() != 3 {
		t.Fatalf("Len = %d, want 3", table.Len())
	}
	if s, ok := table.Lookup("06:00"); !ok || s != 1 {
		t.Fatalf("Lookup(06:00) = %d,%v; want 1,true", s, ok)
	}
	if _, ok := table.Lookup("04:00"); ok {
		t.Fatalf("Lookup(04:00) should miss")
	}
	if got := table.Label(2); got != "07:00" {
		t.Fatalf("Label(2) = %q", got)
	}
	if got := table.Label(3); got != "" {
		t.Fatalf("Label(3) = %q, want empty", got)
	}
	if table.LastStep() != 2 {
		t.Fatalf("LastStep = %d", table.LastStep())
	}
}

func TestHourlyCycleTable(t *testing.T) {
	table, err := HourlyCycleTable(5, 23)
	if err != nil {
		t.Fatalf("HourlyCycleTable: %v", err)
	}
	if table.Len() != 19 {
		t.Fatalf("Len = %d, want 19", table.Len())
	}
	if s, _ := table.Lookup("15:00"); s != 10 {
		t.Fatalf("15:00 step = %d, want 10", s)
	}
	if s, _ := table.Lookup("23:00"); s != 18 {
		t.Fatalf("23:00 step = %d, want 18", s)
	}
	if _, err := HourlyCycleTable(10, 5); err == nil {
		t.Fatalf("expected error for reversed range")
	}
}

func TestEveryCheckpointResolves(t *testing.T) {
	eastern := mustZone(t, DefaultZone)
	table := MustCycleTable("05:00", "09:00", "17:00")
	for i, label := range table.Labels() {
		hour := 0
		for _, c := range label[:2] {
			hour = hour*10 + int(c-'0')
		}
		at := time.Date(2024, 1, 10, hour, 17, 0, 0, eastern)
		step, ok := ResolveStep(at, table, eastern)
		if !ok || step != Step(i) {
			t.Fatalf("ResolveStep(%s) = %d,%v; want %d,true", at, step, ok, i)
		}
	}
}

func TestResolveStepUsesCanonicalZone(t *testing.T) {
	cfg := DefaultConfig()
	central := mustZone(t, "America/Chicago")

	cases := []struct {
		at     time.Time
		step   Step
		inside bool
	}{
		// 05:00 Central is 06:00 Eastern.
		{time.Date(2017, 11, 8, 5, 0, 0, 0, central), 1, true},
		// Minutes inside the hour resolve to the same checkpoint.
		{time.Date(2017, 11, 8, 5, 59, 59, 0, central), 1, true},
		// 04:00 Central is 05:00 Eastern, the first checkpoint.
		{time.Date(2017, 11, 8, 4, 0, 0, 0, central), 0, true},
		// 22:00 Central is 23:00 Eastern, the last checkpoint.
		{time.Date(2017, 11, 8, 22, 0, 0, 0, central), 18, true},
		// 00:00 Central is 01:00 Eastern: idle.
		{time.Date(2017, 11, 8, 0, 0, 0, 0, central), 0, false},
		// 23:00 Central is midnight Eastern: idle.
		{time.Date(2017, 11, 8, 23, 0, 0, 0, central), 0, false},
		// UTC input is converted too: 20:00 UTC is 15:00 EST.
		{time.Date(2017, 11, 8, 20, 0, 0, 0, time.UTC), 10, true},
	}
	for _, tc := range cases {
		step, ok := cfg.Resolve(tc.at)
		if ok != tc.inside || (ok && step != tc.step) {
			t.Fatalf("Resolve(%s) = %d,%v; want %d,%v", tc.at, step, ok, tc.step, tc.inside)
		}
	}
}

func TestHourLabel(t *testing.T) {
	eastern := mustZone(t, DefaultZone)
	at := time.Date(2024, 7, 1, 13, 42, 10, 0, time.UTC) // 09:42 EDT
	if got := HourLabel(at, eastern); got != "09:00" {
		t.Fatalf("HourLabel = %q, want 09:00", got)
	}
	if got := HourLabel(at, nil); got != "13:00" {
		t.Fatalf("HourLabel(nil zone) = %q, want 13:00", got)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	single := DefaultConfig()
	single.Table = MustCycleTable("12:00")
	single.LastStep = 0
	single.Midpoint = 0
	if err := single.Validate(); err != nil {
		t.Fatalf("single checkpoint config invalid: %v", err)
	}
	if got := single.SelectionSize(0, 120); got != 120 {
		t.Fatalf("single checkpoint selection = %d, want 120", got)
	}

	mutate := []struct {
		name string
		fn   func(*Config)
	}{
		{"empty table", func(c *Config) { c.Table = CycleTable{} }},
		{"negative midpoint", func(c *Config) { c.Midpoint = -1 }},
		{"midpoint past last", func(c *Config) { c.Midpoint = c.LastStep + 1 }},
		{"last step past table", func(c *Config) { c.LastStep = 19 }},
		{"negative floor", func(c *Config) { c.Floor = -1 }},
		{"zero wave", func(c *Config) { c.WaveSize = 0 }},
		{"negative window", func(c *Config) { c.WindowSeconds = -1 }},
		{"nil zone", func(c *Config) { c.Zone = nil }},
	}
	for _, m := range mutate {
		t.Run(m.name, func(t *testing.T) {
			c := DefaultConfig()
			m.fn(&c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
