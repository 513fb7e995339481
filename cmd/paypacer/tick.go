package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"paypacer/internal/app"
	"paypacer/internal/httpapi"
)

var (
	tickAt     string
	tickNoWait bool
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one pacing invocation now and process its releases",
	Long: `Run one pacing invocation by hand, then keep running until every
release has been processed (Ctrl-C abandons the remaining ones; they stay
pending for the next tick).

Examples:
  paypacer tick
  paypacer tick --at 2017-11-08T23:00:00-05:00
`,
	RunE: runTick,
}

func init() {
	tickCmd.Flags().StringVar(&tickAt, "at", "", "invocation time (RFC3339), default now")
	tickCmd.Flags().BoolVar(&tickNoWait, "no-wait", false, "exit after dispatching without waiting for releases")
}

func runTick(cmd *cobra.Command, _ []string) error {
	at, err := parseAt(tickAt)
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
	if err := a.StartWorkers(ctx); err != nil {
		return err
	}

	res, err := a.Tick(ctx, at)
	if errors.Is(err, app.ErrHourLocked) {
		fmt.Fprintln(cmd.OutOrStdout(), "hour already dispatched by another replica")
		return nil
	}
	if err != nil {
		return err
	}
	printPlan(cmd.OutOrStdout(), httpapi.NewPlanView(res), true)
	if tickNoWait || res.Dispatched() == 0 {
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "waiting for %d releases over %s\n", res.Dispatched(), res.Plan.Span())
	return a.Drain(ctx)
}
