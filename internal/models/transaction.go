package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction types
const (
	TypeExpense = "expense"
	TypeIncome  = "income"
)

// Transaction represents a single persisted income or expense entry
type Transaction struct {
	gorm.Model

	TransactionID string          `json:"transaction_id" gorm:"uniqueIndex"`
	UserID        string          `json:"user_id" gorm:"index"`
	Type          string          `json:"type"` // "expense" or "income"
	Category      string          `json:"category"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:numeric(14,2)"`
	Description   string          `json:"description"`
	Date          time.Time       `json:"date"` // calendar date of the transaction, not the entry time
	Source        string          `json:"source" gorm:"default:'manual'"` // "manual" or "nlp"
}

// BeforeCreate hook to auto-generate TransactionID
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.TransactionID == "" {
		t.TransactionID = fmt.Sprintf("TXN-%s", uuid.NewString())
	}
	if t.Source == "" {
		t.Source = "manual"
	}
	return nil
}
