package backlog

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusUnpaid Status = "unpaid"
	StatusPaid   Status = "paid"
)

// Transaction is one unit of pending work. Amount is in minor units.
type Transaction struct {
	ID        string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Company   string     `gorm:"type:varchar(255);not null;default:''" json:"company"`
	Amount    int64      `gorm:"not null;default:0" json:"amount"`
	Status    Status     `gorm:"type:varchar(16);not null;default:unpaid;index:idx_transactions_status_created,priority:1" json:"status"`
	CreatedAt time.Time  `gorm:"not null;index:idx_transactions_status_created,priority:2" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

func (Transaction) TableName() string { return "transactions" }

// NewTransaction returns an unpaid transaction with a fresh id.
func NewTransaction(company string, amount int64, createdAt time.Time) Transaction {
	return Transaction{
		ID:        uuid.NewString(),
		Company:   company,
		Amount:    amount,
		Status:    StatusUnpaid,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func (t Transaction) Paid() bool { return t.Status == StatusPaid }
