package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"paypacer/internal/app"
	"paypacer/internal/httpapi"
)

var (
	planAt      string
	planHours   int
	planDetails bool
	planFollow  bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview pacing decisions without dispatching",
	Long: `Preview what the tick would release at a given time. With --hours the
preview walks forward hour by hour against the current backlog. With
--schedule it previews the next fire times of the configured tick instead.

Examples:
  paypacer plan --at 2017-11-08T15:00:00-05:00 --details
  paypacer plan --hours 24
  paypacer plan --schedule --hours 6
`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planAt, "at", "", "first preview time (RFC3339), default now")
	planCmd.Flags().IntVar(&planHours, "hours", 1, "number of consecutive hours to preview")
	planCmd.Flags().BoolVar(&planDetails, "details", false, "list every assignment")
	planCmd.Flags().BoolVar(&planFollow, "schedule", false, "preview at the tick schedule's next fire times after --at")
}

func runPlan(cmd *cobra.Command, _ []string) error {
	at, err := parseAt(planAt)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	a, err := app.Load(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := stopContext()
		defer scancel()
		_ = a.Stop(sctx)
	}()

	times, err := planTimes(a, at, max(planHours, 1))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, t := range times {
		res, err := a.Preview(ctx, t)
		if err != nil {
			return err
		}
		printPlan(out, httpapi.NewPlanView(res), planDetails)
	}
	return nil
}

func planTimes(a *app.App, at time.Time, n int) ([]time.Time, error) {
	if planFollow {
		return a.NextTicks(at, n)
	}
	out := make([]time.Time, n)
	for i := range out {
		out[i] = at.Add(time.Duration(i) * time.Hour)
	}
	return out, nil
}

func printPlan(w io.Writer, v httpapi.PlanView, details bool) {
	if !v.InCycle {
		fmt.Fprintf(w, "%s  idle hour, nothing released\n", v.Hour)
		return
	}
	fmt.Fprintf(w, "%s  step %d (%s)  backlog %d  size %d  dispatched %d  waves %d  span %s\n",
		v.Hour, *v.Step, v.SubCycle, v.Backlog, v.Size, v.Dispatched, v.Waves,
		time.Duration(v.SpanSeconds*float64(time.Second)))
	if !details || len(v.Assignments) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  WAVE\tDELAY\tID")
	for _, as := range v.Assignments {
		fmt.Fprintf(tw, "  %d\t%s\t%s\n", as.Wave, time.Duration(as.DelaySeconds*float64(time.Second)), as.ID)
	}
	_ = tw.Flush()
}
