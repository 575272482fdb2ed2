package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/fintrack/backend/pkg/recurrence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionKind is the direction of a transaction from the account's view.
type TransactionKind string

const (
	KindIncome  TransactionKind = "INCOME"
	KindExpense TransactionKind = "EXPENSE"
)

// TransactionStatus is the settlement status of a transaction.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
)

// Transaction is a single income or expense on an account.
//
// A transaction with IsRecurring set is a template. It is never applied to the
// balance by itself again, instead every time it is due the ledger creates a
// new, non-recurring transaction from it and advances LastProcessed and
// NextRecurringDate.
type Transaction struct {
	DefaultModel
	AccountID         uuid.UUID           `json:"accountId" gorm:"type:uuid;index" example:"af892e10-7e0a-4fb8-b1bc-4b6d88401ed2"`
	Account           Account             `json:"-"`
	UserID            uuid.UUID           `json:"userId" gorm:"type:uuid;index" example:"550dc009-cea6-4c12-b2a5-03446eb7b7cf"`
	User              User                `json:"-"`
	Amount            decimal.Decimal     `json:"amount" gorm:"type:DECIMAL(20,8);check:amount_not_negative,amount >= 0" example:"14.99"` // Always the positive magnitude, Kind decides the sign
	Kind              TransactionKind     `json:"kind" example:"EXPENSE"`
	Category          string              `json:"category" example:"entertainment"`
	Description       string              `json:"description" example:"Streaming subscription"`
	Date              time.Time           `json:"date" gorm:"index" example:"2024-01-15T00:00:00Z"`
	Status            TransactionStatus   `json:"status" example:"COMPLETED"`
	IsRecurring       bool                `json:"isRecurring" gorm:"index:idx_transactions_due,priority:1" example:"true"`
	RecurringInterval recurrence.Interval `json:"recurringInterval,omitempty" example:"MONTHLY"`
	LastProcessed     *time.Time          `json:"lastProcessed" example:"2024-02-01T00:00:00Z"`
	NextRecurringDate *time.Time          `json:"nextRecurringDate" gorm:"index:idx_transactions_due,priority:2" example:"2024-03-01T00:00:00Z"`
	Version           uint64              `json:"-" gorm:"not null;default:0"`
}

// AfterFind updates the timestamps to use UTC as
// timezone, not +0000. Yes, this is different.
//
// We already store them in UTC, but somehow reading
// them from the database returns them as +0000.
func (t *Transaction) AfterFind(tx *gorm.DB) (err error) {
	err = t.DefaultModel.AfterFind(tx)
	if err != nil {
		return err
	}

	t.Date = t.Date.In(time.UTC)
	t.LastProcessed = utc(t.LastProcessed)
	t.NextRecurringDate = utc(t.NextRecurringDate)
	return nil
}

// BeforeSave
//   - sets the timezone for all dates to UTC
//   - trims whitespace from string fields
//   - normalizes the recurring interval, e.g. "monthly" to "MONTHLY"
//   - validates the amount, kind, status and recurring interval
func (t *Transaction) BeforeSave(_ *gorm.DB) error {
	t.Category = strings.TrimSpace(t.Category)
	t.Description = strings.TrimSpace(t.Description)

	if interval, err := recurrence.ParseInterval(string(t.RecurringInterval)); err == nil {
		t.RecurringInterval = interval
	}

	if !t.Date.IsZero() {
		t.Date = t.Date.In(time.UTC)
	}
	t.LastProcessed = utc(t.LastProcessed)
	t.NextRecurringDate = utc(t.NextRecurringDate)

	return t.Validate()
}

// Validate checks the transaction for values the ledger cannot process.
func (t Transaction) Validate() error {
	if t.Amount.IsNegative() {
		return ErrNegativeAmount
	}

	if t.Kind != "" && t.Kind != KindIncome && t.Kind != KindExpense {
		return fmt.Errorf("%w: unknown transaction kind %q", ErrValidation, t.Kind)
	}

	if t.Status != "" && t.Status != StatusPending && t.Status != StatusCompleted {
		return fmt.Errorf("%w: unknown transaction status %q", ErrValidation, t.Status)
	}

	if t.IsRecurring && !t.RecurringInterval.Valid() {
		return fmt.Errorf("%w: %w %q", ErrValidation, recurrence.ErrInvalidInterval, t.RecurringInterval)
	}

	if !t.IsRecurring && t.RecurringInterval != "" {
		return fmt.Errorf("%w: recurring interval set on a non-recurring transaction", ErrValidation)
	}

	return nil
}

// SignedAmount returns the amount as it affects the account balance.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Kind == KindExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// IsDue reports if the recurring template is due at now.
//
// A template that has never been processed is always due.
func (t Transaction) IsDue(now time.Time) bool {
	if !t.IsRecurring || t.Status != StatusCompleted {
		return false
	}

	if t.LastProcessed == nil {
		return true
	}

	return t.NextRecurringDate != nil && !t.NextRecurringDate.After(now)
}

// ScheduledDate returns the occurrence the template is currently due for.
func (t Transaction) ScheduledDate() time.Time {
	if t.NextRecurringDate != nil {
		return *t.NextRecurringDate
	}
	return t.Date
}
