package app

import (
	"context"
	"errors"

	"paypacer/internal/backlog"
	"paypacer/internal/config"
	"paypacer/internal/storage"
	logx "paypacer/pkg/logx"
)

// OpenBacklog opens only the backlog store, for maintenance commands.
func OpenBacklog(ctx context.Context, cfg *config.Config, log logx.Logger) (backlog.Store, error) {
	bcfg, err := mapBacklogConfig(cfg)
	if err != nil {
		return nil, err
	}
	return backlog.Open(ctx, bcfg, log.With(logx.Component("backlog")))
}

// OpenRunStore opens only the run ledger. It fails when none is configured.
func OpenRunStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, errors.New("no run ledger configured (storage section)")
	}
	return storage.Open(sc, log.With(logx.Component("storage")))
}
