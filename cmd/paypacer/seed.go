package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"paypacer/internal/app"
	"paypacer/internal/backlog"
)

var (
	seedCount     int
	seedCompany   string
	seedMinAmount int64
	seedMaxAmount int64
	seedSpread    time.Duration
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create pending transactions for testing",
	Long: `Insert unpaid transactions into the backlog. Creation times are spread
evenly over the --spread window ending now, oldest first.

Examples:
  paypacer seed --count 500
  paypacer seed --count 50 --company acme --spread 6h
`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().IntVarP(&seedCount, "count", "n", 100, "number of transactions")
	seedCmd.Flags().StringVar(&seedCompany, "company", "acme", "company name on every transaction")
	seedCmd.Flags().Int64Var(&seedMinAmount, "min-amount", 100, "minimum amount in cents")
	seedCmd.Flags().Int64Var(&seedMaxAmount, "max-amount", 100000, "maximum amount in cents")
	seedCmd.Flags().DurationVar(&seedSpread, "spread", 24*time.Hour, "age of the oldest transaction")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	if seedCount <= 0 {
		return fmt.Errorf("--count must be positive")
	}
	if seedMinAmount <= 0 || seedMaxAmount < seedMinAmount {
		return fmt.Errorf("amount range %d..%d is invalid", seedMinAmount, seedMaxAmount)
	}
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	st, err := app.OpenBacklog(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	now := time.Now().UTC()
	step := seedSpread / time.Duration(seedCount)
	rng := rand.New(rand.NewSource(now.UnixNano()))
	txs := make([]backlog.Transaction, seedCount)
	for i := range txs {
		amount := seedMinAmount + rng.Int63n(seedMaxAmount-seedMinAmount+1)
		created := now.Add(-seedSpread + time.Duration(i)*step)
		txs[i] = backlog.NewTransaction(seedCompany, amount, created)
	}
	if err := st.Add(ctx, txs...); err != nil {
		return err
	}
	n, err := st.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d transactions; %d pending\n", seedCount, n)
	return nil
}
