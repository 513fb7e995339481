package backlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"paypacer/internal/pacing"
	logx "paypacer/pkg/logx"
)

// GormStore keeps the backlog in a SQL database through gorm.
type GormStore struct {
	db *gorm.DB
}

// OpenGorm connects to the database named by cfg.Driver and cfg.DSN.
func OpenGorm(cfg Config, log logx.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverMySQL:
		dialector = mysql.Open(cfg.DSN)
	case DriverSQLite:
		dsn := cfg.DSN
		if strings.TrimSpace(dsn) == "" {
			dsn = "paypacer.db"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("backlog: unknown database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  NewGormLogger(log, cfg.SlowQuery),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s backlog: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if cfg.Driver == DriverSQLite && strings.Contains(cfg.DSN, ":memory:") {
		// Every connection to :memory: is a separate database.
		maxOpen, maxIdle = 1, 1
	}
	if maxOpen <= 0 {
		maxOpen = 10
	}
	if maxIdle <= 0 {
		maxIdle = min(maxOpen, 5)
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return &GormStore{db: db}, nil
}

// NewGormStore wraps an existing connection.
func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Transaction{}); err != nil {
		return fmt.Errorf("migrate backlog: %w", err)
	}
	return nil
}

func (s *GormStore) Count(ctx context.Context) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Transaction{}).Where("status = ?", StatusUnpaid).Count(&n).Error
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *GormStore) FetchOldest(ctx context.Context, n int) ([]pacing.ItemID, error) {
	if n <= 0 {
		return nil, nil
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("status = ?", StatusUnpaid).
		Order("created_at ASC").
		Order("id ASC").
		Limit(n).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make([]pacing.ItemID, len(ids))
	for i, id := range ids {
		out[i] = pacing.ItemID(id)
	}
	return out, nil
}

func (s *GormStore) Get(ctx context.Context, id pacing.ItemID) (Transaction, error) {
	var tx Transaction
	err := s.db.WithContext(ctx).Where("id = ?", string(id)).Take(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Transaction{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx, err
}

func (s *GormStore) MarkSettled(ctx context.Context, id pacing.ItemID, at time.Time) error {
	at = at.UTC()
	res := s.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("id = ? AND status = ?", string(id), StatusUnpaid).
		Updates(map[string]any{"status": StatusPaid, "settled_at": at, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrPaid, id)
}

func (s *GormStore) Add(ctx context.Context, txs ...Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]Transaction, len(txs))
	for i, tx := range txs {
		rows[i] = normalize(tx, now)
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, 500).Error
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func normalize(tx Transaction, now time.Time) Transaction {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Status == "" {
		tx.Status = StatusUnpaid
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = tx.CreatedAt
	}
	return tx
}
