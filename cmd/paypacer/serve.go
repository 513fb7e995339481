package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"paypacer/internal/app"
	"paypacer/pkg/systemd"
	logx "paypacer/pkg/logx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hourly pacing service",
	Long:  "Start the task engine, the hourly tick, the ops HTTP endpoint and config hot reload.",
	RunE:  runServe,
}

func runServe(*cobra.Command, []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := app.Load(ctx, cfgPath)
	if err != nil {
		return err
	}
	log := a.Logger()
	if err := a.Start(ctx); err != nil {
		sctx, scancel := stopContext()
		defer scancel()
		_ = a.Stop(sctx)
		return fmt.Errorf("start: %w", err)
	}

	if sent, err := systemd.Ready(); err != nil {
		log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		log.Debug("systemd notified ready")
	}
	_, _ = systemd.Status("pacing releases in %s", a.PacingConfig().Zone)
	go func() {
		if err := systemd.RunWatchdog(ctx, log); err != nil {
			log.Warn("systemd watchdog", logx.Err(err))
		}
	}()

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	_, _ = systemd.Stopping()

	sctx, scancel := stopContext()
	defer scancel()
	_ = a.Stop(sctx)

	if err := a.Err(); err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	return nil
}
