package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategoryTotal is one aggregate row of a spending summary
type CategoryTotal struct {
	Category string          `json:"category"`
	Count    int             `json:"count"`
	Total    decimal.Decimal `json:"total"`
}

// SpendingSummary aggregates a user's transactions over a date range
type SpendingSummary struct {
	UserID       string          `json:"user_id"`
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	TotalExpense decimal.Decimal `json:"total_expense"`
	TotalIncome  decimal.Decimal `json:"total_income"`
	ByCategory   []CategoryTotal `json:"by_category"` // expenses only, largest first
}
