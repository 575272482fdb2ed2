package test

import (
	"testing"
	"time"

	"github.com/fintrack/backend/pkg/models"
	"github.com/fintrack/backend/pkg/recurrence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// CreateUser creates a user. IdentityRef is generated if it is empty.
func CreateUser(t *testing.T, db *gorm.DB, c models.User) models.User {
	if c.IdentityRef == "" {
		c.IdentityRef = uuid.NewString()
	}

	if c.Email == "" {
		c.Email = "jane@example.com"
	}

	err := db.Create(&c).Error
	require.Nil(t, err, "User could not be created")
	return c
}

// CreateAccount creates an account, creating a user for it if UserID is not set.
func CreateAccount(t *testing.T, db *gorm.DB, c models.Account) models.Account {
	if c.UserID == uuid.Nil {
		c.UserID = CreateUser(t, db, models.User{}).ID
	}

	err := models.CreateAccount(db, &c)
	require.Nil(t, err, "Account could not be created")
	return c
}

// CreateTransaction creates a transaction. Missing user, account, kind and
// status are filled in.
func CreateTransaction(t *testing.T, db *gorm.DB, c models.Transaction) models.Transaction {
	if c.AccountID == uuid.Nil {
		account := CreateAccount(t, db, models.Account{UserID: c.UserID})
		c.AccountID = account.ID
		c.UserID = account.UserID
	}

	if c.Kind == "" {
		c.Kind = models.KindExpense
	}

	if c.Status == "" {
		c.Status = models.StatusCompleted
	}

	if c.Date.IsZero() {
		c.Date = time.Now()
	}

	err := db.Create(&c).Error
	require.Nil(t, err, "Transaction could not be created")
	return c
}

// CreateRecurring creates a monthly recurring template on the account.
func CreateRecurring(t *testing.T, db *gorm.DB, account models.Account, amount decimal.Decimal, date time.Time) models.Transaction {
	return CreateTransaction(t, db, models.Transaction{
		AccountID:         account.ID,
		UserID:            account.UserID,
		Amount:            amount,
		Kind:              models.KindExpense,
		Category:          "subscriptions",
		Description:       "Streaming",
		Date:              date,
		IsRecurring:       true,
		RecurringInterval: recurrence.Monthly,
	})
}

// CreateBudget creates a budget, creating a user for it if UserID is not set.
func CreateBudget(t *testing.T, db *gorm.DB, c models.Budget) models.Budget {
	if c.UserID == uuid.Nil {
		c.UserID = CreateUser(t, db, models.User{}).ID
	}

	err := db.Create(&c).Error
	require.Nil(t, err, "Budget could not be created")
	return c
}
