package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"paypacer/internal/pacing"
	"paypacer/internal/storage"
	logx "paypacer/pkg/logx"
)

type fakePlanner struct {
	at  time.Time
	res pacing.Result
	err error
}

func (f *fakePlanner) Preview(_ context.Context, now time.Time) (pacing.Result, error) {
	f.at = now
	res := f.res
	res.At = now
	return res, f.err
}

type fakeRuns struct {
	limit int
	runs  []storage.RunRecord
}

func (f *fakeRuns) RecentRuns(_ context.Context, limit int) ([]storage.RunRecord, error) {
	f.limit = limit
	return f.runs, nil
}

func do(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(Config{}, Deps{Health: func() map[string]any { return map[string]any{"pending": 3} }}, logx.Nop())
	rec := do(t, s, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["pending"] != float64(3) {
		t.Fatalf("body = %v", body)
	}
}

func TestPlan(t *testing.T) {
	plan := pacing.PlanWaves([]pacing.ItemID{"a", "b"}, 11, 300)
	fp := &fakePlanner{res: pacing.Result{InCycle: true, Step: 10, SubCycle: pacing.SubCycleLate, Backlog: 2, Size: 50, Plan: plan}}
	s := New(Config{}, Deps{Planner: fp}, logx.Nop())

	rec := do(t, s, "/plan?at=2017-11-08T15:00:00-05:00")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if want := time.Date(2017, 11, 8, 20, 0, 0, 0, time.UTC); !fp.at.Equal(want) {
		t.Fatalf("preview at %s, want %s", fp.at, want)
	}
	var v PlanView
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Step == nil || *v.Step != 10 || v.SubCycle != "late" || v.Dispatched != 2 {
		t.Fatalf("view = %+v", v)
	}
	if len(v.Assignments) != 2 || v.Assignments[1].DelaySeconds != 150 {
		t.Fatalf("assignments = %+v", v.Assignments)
	}
}

func TestPlanErrors(t *testing.T) {
	s := New(Config{}, Deps{Planner: &fakePlanner{err: errors.New("db down")}}, logx.Nop())
	if rec := do(t, s, "/plan?at=yesterday"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad at status = %d", rec.Code)
	}
	if rec := do(t, s, "/plan"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("preview error status = %d", rec.Code)
	}
}

func TestRuns(t *testing.T) {
	fr := &fakeRuns{runs: []storage.RunRecord{{ID: "r1", Label: "05:00"}}}
	s := New(Config{}, Deps{Runs: fr}, logx.Nop())

	if rec := do(t, s, "/runs"); rec.Code != http.StatusOK || fr.limit != defaultRunLimit {
		t.Fatalf("status=%d limit=%d", rec.Code, fr.limit)
	}
	if rec := do(t, s, "/runs?limit=9999"); rec.Code != http.StatusOK || fr.limit != maxRunLimit {
		t.Fatalf("status=%d limit=%d", rec.Code, fr.limit)
	}
	if rec := do(t, s, "/runs?limit=0"); rec.Code != http.StatusBadRequest {
		t.Fatalf("limit=0 status = %d", rec.Code)
	}
}

func TestUnconfiguredRoutes(t *testing.T) {
	s := New(Config{}, Deps{}, logx.Nop())
	for _, p := range []string{"/runs", "/plan", "/metrics"} {
		if rec := do(t, s, p); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s status = %d", p, rec.Code)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("up 1\n")) })
	s := New(Config{}, Deps{Metrics: h}, logx.Nop())
	if rec := do(t, s, "/metrics"); rec.Body.String() != "up 1\n" {
		t.Fatalf("metrics body = %q", rec.Body.String())
	}
}

func TestPprofRoute(t *testing.T) {
	if rec := do(t, New(Config{}, Deps{}, logx.Nop()), "/debug/pprof/cmdline"); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof off: status = %d", rec.Code)
	}

	s := New(Config{Pprof: true, PprofToken: "s3cret"}, Deps{}, logx.Nop())
	if rec := do(t, s, "/debug/pprof/cmdline"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}
	if rec := do(t, s, "/debug/pprof/cmdline?token=wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d", rec.Code)
	}
	if rec := do(t, s, "/debug/pprof/cmdline?token=s3cret"); rec.Code != http.StatusOK {
		t.Fatalf("good token: status = %d", rec.Code)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer: status = %d", rec.Code)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:8080": true,
		"localhost:8080": true,
		"[::1]:8080":     true,
		":8080":          false,
		"0.0.0.0:8080":   false,
		"10.0.0.5:8080":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := IsLoopbackAddr(addr); got != want {
			t.Fatalf("IsLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
