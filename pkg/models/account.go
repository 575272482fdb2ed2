package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account represents an account of a user, e.g. a bank account.
//
// The balance is only written by the ledger. Every write increments Version
// so that concurrent writers can detect each other.
type Account struct {
	DefaultModel
	UserID    uuid.UUID       `json:"userId" gorm:"type:uuid;index" example:"550dc009-cea6-4c12-b2a5-03446eb7b7cf"`
	User      User            `json:"-"`
	Name      string          `json:"name" example:"Checking"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:DECIMAL(20,8)" example:"2735.17"`
	IsDefault bool            `json:"isDefault" example:"true"`
	Version   uint64          `json:"-" gorm:"not null;default:0"`
}

// BeforeSave trims whitespace from string fields.
func (a *Account) BeforeSave(_ *gorm.DB) error {
	a.Name = strings.TrimSpace(a.Name)
	return nil
}

// CreateAccount creates an account and keeps the default account invariant:
// the first account of a user is always the default account, and creating a
// default account removes the flag from all other accounts of the user.
func CreateAccount(db *gorm.DB, account *Account) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var existing int64
		err := tx.Model(&Account{}).Where(&Account{UserID: account.UserID}).Count(&existing).Error
		if err != nil {
			return err
		}

		if existing == 0 {
			account.IsDefault = true
		}

		if account.IsDefault {
			err = tx.Model(&Account{}).
				Where(&Account{UserID: account.UserID, IsDefault: true}).
				Updates(map[string]any{"is_default": false, "version": gorm.Expr("version + 1")}).Error
			if err != nil {
				return fmt.Errorf("could not reset default account: %w", err)
			}
		}

		return tx.Create(account).Error
	})
}

// DefaultAccount returns the default account of the user.
func DefaultAccount(db *gorm.DB, userID uuid.UUID) (Account, error) {
	var account Account
	err := db.Where(&Account{UserID: userID, IsDefault: true}).First(&account).Error
	return account, err
}
