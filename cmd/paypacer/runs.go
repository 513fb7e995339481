package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"paypacer/internal/app"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent pacing invocations from the run ledger",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := app.OpenRunStore(cfg, log)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, cancel := signalContext()
		defer cancel()
		runs, err := st.RecentRuns(ctx, runsLimit)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "AT\tHOUR\tSTEP\tBACKLOG\tSIZE\tDISPATCHED\tSPAN\tNOTE")
		for _, r := range runs {
			note := r.Skipped
			if r.Error != "" {
				note = "error: " + r.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
				r.At.Format(time.RFC3339), r.Label, r.Step, r.Backlog, r.Size, r.Dispatched,
				time.Duration(r.SpanMS)*time.Millisecond, note)
		}
		return tw.Flush()
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 24, "number of runs to show")
}
