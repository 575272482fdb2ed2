package models_test

import (
	"testing"
	"time"

	"github.com/fintrack/backend/pkg/models"
	"github.com/fintrack/backend/pkg/recurrence"
	"github.com/fintrack/backend/test"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func (suite *TestSuiteStandard) TestTransactionNegativeAmount() {
	account := test.CreateAccount(suite.T(), suite.db, models.Account{})

	err := suite.db.Create(&models.Transaction{
		AccountID: account.ID,
		UserID:    account.UserID,
		Amount:    decimal.NewFromFloat(-17.32),
		Kind:      models.KindExpense,
		Status:    models.StatusCompleted,
		Date:      time.Now(),
	}).Error

	assert.ErrorIs(suite.T(), err, models.ErrNegativeAmount)
	assert.ErrorIs(suite.T(), err, models.ErrValidation)
}

func (suite *TestSuiteStandard) TestTransactionValidation() {
	tests := []struct {
		name        string
		transaction models.Transaction
	}{
		{"Unknown kind", models.Transaction{Kind: "TRANSFER"}},
		{"Unknown status", models.Transaction{Status: "CANCELLED"}},
		{"Recurring without interval", models.Transaction{IsRecurring: true}},
		{"Recurring with unknown interval", models.Transaction{IsRecurring: true, RecurringInterval: "HOURLY"}},
		{"Interval without recurring", models.Transaction{RecurringInterval: recurrence.Weekly}},
	}

	for _, tt := range tests {
		suite.T().Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.transaction.Validate(), models.ErrValidation)
		})
	}

	assert.Nil(suite.T(), models.Transaction{}.Validate(), "The zero transaction must be valid for partial updates")
}

func (suite *TestSuiteStandard) TestTransactionIntervalNormalized() {
	transaction := test.CreateTransaction(suite.T(), suite.db, models.Transaction{
		IsRecurring:       true,
		RecurringInterval: " weekly ",
	})

	var reloaded models.Transaction
	suite.Require().Nil(suite.db.First(&reloaded, "id = ?", transaction.ID).Error)
	assert.Equal(suite.T(), recurrence.Weekly, reloaded.RecurringInterval)
}

func (suite *TestSuiteStandard) TestTransactionTimezones() {
	tz, _ := time.LoadLocation("Europe/Berlin")
	date := time.Date(2024, 1, 15, 9, 0, 0, 0, tz)
	next := time.Date(2024, 2, 15, 9, 0, 0, 0, tz)

	transaction := test.CreateTransaction(suite.T(), suite.db, models.Transaction{
		Amount:            decimal.NewFromInt(10),
		Date:              date,
		IsRecurring:       true,
		RecurringInterval: recurrence.Monthly,
		LastProcessed:     &date,
		NextRecurringDate: &next,
	})

	var reloaded models.Transaction
	suite.Require().Nil(suite.db.First(&reloaded, transaction.ID).Error)

	assert.Equal(suite.T(), time.UTC, reloaded.Date.Location())
	assert.True(suite.T(), reloaded.Date.Equal(date))
	assert.Equal(suite.T(), time.UTC, reloaded.LastProcessed.Location())
	assert.True(suite.T(), reloaded.NextRecurringDate.Equal(next))
}

func (suite *TestSuiteStandard) TestTransactionSignedAmount() {
	amount := decimal.NewFromFloat(14.99)

	assert.True(suite.T(), models.Transaction{Amount: amount, Kind: models.KindExpense}.SignedAmount().Equal(amount.Neg()))
	assert.True(suite.T(), models.Transaction{Amount: amount, Kind: models.KindIncome}.SignedAmount().Equal(amount))
}

func (suite *TestSuiteStandard) TestTransactionIsDue() {
	now := time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	template := models.Transaction{
		Status:            models.StatusCompleted,
		IsRecurring:       true,
		RecurringInterval: recurrence.Monthly,
	}

	assert.True(suite.T(), template.IsDue(now), "Never processed templates are due")

	template.LastProcessed = &past
	template.NextRecurringDate = &now
	assert.True(suite.T(), template.IsDue(now), "Templates are due at their next date")

	template.NextRecurringDate = &future
	assert.False(suite.T(), template.IsDue(now))

	template.NextRecurringDate = &past
	template.Status = models.StatusPending
	assert.False(suite.T(), template.IsDue(now), "Pending templates are never due")

	template.Status = models.StatusCompleted
	template.IsRecurring = false
	assert.False(suite.T(), template.IsDue(now), "Only recurring transactions are due")
}
