package httpapi

import (
	"time"

	"paypacer/internal/pacing"
)

// PlanView is the JSON form of a pacing decision.
type PlanView struct {
	At          time.Time        `json:"at"`
	Hour        string           `json:"hour"`
	InCycle     bool             `json:"in_cycle"`
	Step        *int             `json:"step,omitempty"`
	SubCycle    string           `json:"sub_cycle,omitempty"`
	Backlog     int              `json:"backlog"`
	Size        int              `json:"size"`
	Dispatched  int              `json:"dispatched"`
	Waves       int              `json:"waves"`
	SpanSeconds float64          `json:"span_seconds"`
	Assignments []AssignmentView `json:"assignments"`
}

type AssignmentView struct {
	ID           string  `json:"id"`
	Wave         int     `json:"wave"`
	DelaySeconds float64 `json:"delay_seconds"`
}

func NewPlanView(res pacing.Result) PlanView {
	v := PlanView{
		At:          res.At,
		Hour:        res.Label,
		InCycle:     res.InCycle,
		Backlog:     res.Backlog,
		Size:        res.Size,
		Dispatched:  res.Dispatched(),
		Waves:       res.Plan.Waves(),
		SpanSeconds: res.Plan.Span().Seconds(),
		Assignments: make([]AssignmentView, 0, len(res.Plan)),
	}
	if res.InCycle {
		step := int(res.Step)
		v.Step = &step
		v.SubCycle = res.SubCycle.String()
	}
	for _, a := range res.Plan {
		v.Assignments = append(v.Assignments, AssignmentView{ID: string(a.ID), Wave: a.Wave, DelaySeconds: a.Delay.Seconds()})
	}
	return v
}
