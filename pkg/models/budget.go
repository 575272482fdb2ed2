package models

import (
	"fmt"
	"time"

	"github.com/fintrack/backend/internal/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Budget is the monthly spending threshold of a user.
//
// LastAlertSent records when the last budget alert was sent. A budget is never
// alerted twice in the same calendar month.
type Budget struct {
	DefaultModel
	UserID        uuid.UUID       `json:"userId" gorm:"type:uuid;index" example:"550dc009-cea6-4c12-b2a5-03446eb7b7cf"`
	User          User            `json:"-"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:DECIMAL(20,8)" example:"500"`
	LastAlertSent *time.Time      `json:"lastAlertSent" example:"2024-03-14T10:00:00Z"`
	Version       uint64          `json:"-" gorm:"not null;default:0"`
}

func (b *Budget) AfterFind(tx *gorm.DB) (err error) {
	err = b.DefaultModel.AfterFind(tx)
	if err != nil {
		return err
	}

	b.LastAlertSent = utc(b.LastAlertSent)
	return nil
}

// BeforeSave sets the alert timestamp to UTC and validates the amount.
func (b *Budget) BeforeSave(_ *gorm.DB) error {
	b.LastAlertSent = utc(b.LastAlertSent)

	if b.Amount.IsNegative() {
		return fmt.Errorf("%w: the budget amount must not be negative", ErrValidation)
	}

	return nil
}

// AlertedIn reports if an alert has already been sent for the month.
func (b Budget) AlertedIn(month types.Month) bool {
	if b.LastAlertSent == nil {
		return false
	}

	return month.Contains(*b.LastAlertSent)
}
