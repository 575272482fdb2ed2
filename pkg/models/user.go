package models

import (
	"strings"
	"time"

	"github.com/fintrack/backend/internal/types"
	"gorm.io/gorm"
)

// User is the owner of accounts, transactions and budgets.
//
// LastReportMonth is the first instant of the latest month a monthly report
// was sent for. A user never gets two reports for the same month.
type User struct {
	DefaultModel
	IdentityRef     string     `json:"identityRef" gorm:"uniqueIndex" example:"user_2bXl4GcKfZ1d"` // Reference to the user in the identity provider
	Email           string     `json:"email" example:"jane@example.com"`
	Name            string     `json:"name" example:"Jane Doe"`
	LastReportMonth *time.Time `json:"lastReportMonth" example:"2024-01-01T00:00:00Z"`
	Version         uint64     `json:"-" gorm:"not null;default:0"`

	Accounts     []Account     `json:"-"`
	Transactions []Transaction `json:"-"`
	Budgets      []Budget      `json:"-"`
}

func (u *User) AfterFind(tx *gorm.DB) (err error) {
	err = u.DefaultModel.AfterFind(tx)
	if err != nil {
		return err
	}

	u.LastReportMonth = utc(u.LastReportMonth)
	return nil
}

// BeforeSave trims whitespace from string fields.
func (u *User) BeforeSave(_ *gorm.DB) error {
	u.IdentityRef = strings.TrimSpace(u.IdentityRef)
	u.Email = strings.TrimSpace(u.Email)
	u.Name = strings.TrimSpace(u.Name)
	u.LastReportMonth = utc(u.LastReportMonth)
	return nil
}

// ReportedFor reports if the report for the month, or a later one, has
// already been sent.
func (u User) ReportedFor(month types.Month) bool {
	if u.LastReportMonth == nil {
		return false
	}

	return !types.MonthOf(*u.LastReportMonth).Before(month)
}
