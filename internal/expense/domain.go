package expense

import (
	"errors"
	"time"
)

// ExtraExpense is a miscellaneous expense outside purchase costs,
// joined into the daily profit/loss report.
type ExtraExpense struct {
	ID          int64     `json:"id"`
	Amount      float64   `json:"amount"`
	ExpenseDate time.Time `json:"expense_date"`
	Note        string    `json:"note"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// ErrInvalidAmount indicates a non-positive expense amount.
var ErrInvalidAmount = errors.New("expense: amount must be > 0")

// ErrNotFound indicates a missing expense record.
var ErrNotFound = errors.New("expense: not found")
