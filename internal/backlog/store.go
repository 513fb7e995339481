package backlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"paypacer/internal/pacing"
	logx "paypacer/pkg/logx"
)

var (
	ErrNotFound = errors.New("transaction not found")
	ErrPaid     = errors.New("transaction already paid")
)

// Store is the persistent backlog. Count and FetchOldest see unpaid
// transactions only, ordered by created_at then id.
type Store interface {
	pacing.Backlog

	Get(ctx context.Context, id pacing.ItemID) (Transaction, error)
	// MarkSettled flips an unpaid transaction to paid. It returns ErrPaid when
	// the transaction was settled already and ErrNotFound when it is unknown.
	MarkSettled(ctx context.Context, id pacing.ItemID, at time.Time) error
	Add(ctx context.Context, txs ...Transaction) error
	Migrate(ctx context.Context) error
	Close() error
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowQuery       time.Duration
	AutoMigrate     bool
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}
	var (
		st  Store
		err error
	)
	switch driver {
	case DriverMemory:
		st = NewMemory()
	case DriverSQLite, DriverPostgres, DriverMySQL:
		cfg.Driver = driver
		st, err = OpenGorm(cfg, log)
	default:
		return nil, fmt.Errorf("backlog: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	return st, nil
}
