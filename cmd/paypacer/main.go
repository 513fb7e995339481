package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"paypacer/internal/config"
	logx "paypacer/pkg/logx"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "paypacer",
	Short:         "Paces settlement of pending transactions across the day",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config (json or yaml)")
	rootCmd.AddCommand(serveCmd, tickCmd, planCmd, seedCmd, migrateCmd, runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadConfig is for commands that do not build the whole app.
func loadConfig() (*config.Config, logx.Logger, error) {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return nil, logx.Logger{}, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, logx.NewConsole(cfg.Logging.Level), nil
}

// parseAt parses an RFC3339 --at flag; empty means now.
func parseAt(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at must be RFC3339 (e.g. 2017-11-08T15:00:00-05:00): %w", err)
	}
	return t, nil
}

func stopContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}
