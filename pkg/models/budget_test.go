package models_test

import (
	"time"

	"github.com/fintrack/backend/internal/types"
	"github.com/fintrack/backend/pkg/models"
	"github.com/fintrack/backend/test"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func (suite *TestSuiteStandard) TestBudgetNegativeAmount() {
	user := test.CreateUser(suite.T(), suite.db, models.User{})

	err := suite.db.Create(&models.Budget{UserID: user.ID, Amount: decimal.NewFromInt(-1)}).Error
	assert.ErrorIs(suite.T(), err, models.ErrValidation)
}

func (suite *TestSuiteStandard) TestBudgetAlertedIn() {
	sent := time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)
	budget := models.Budget{}

	assert.False(suite.T(), budget.AlertedIn(types.NewMonth(2024, time.March)))

	budget.LastAlertSent = &sent
	assert.True(suite.T(), budget.AlertedIn(types.NewMonth(2024, time.March)))
	assert.False(suite.T(), budget.AlertedIn(types.NewMonth(2024, time.April)))
	assert.False(suite.T(), budget.AlertedIn(types.NewMonth(2023, time.March)), "The same month of another year is a different period")
}

func (suite *TestSuiteStandard) TestBudgetLastAlertSentUTC() {
	tz, _ := time.LoadLocation("Europe/Berlin")
	sent := time.Date(2024, 3, 14, 10, 0, 0, 0, tz)

	budget := test.CreateBudget(suite.T(), suite.db, models.Budget{Amount: decimal.NewFromInt(500), LastAlertSent: &sent})

	var reloaded models.Budget
	suite.Require().Nil(suite.db.First(&reloaded, budget.ID).Error)
	assert.Equal(suite.T(), time.UTC, reloaded.LastAlertSent.Location())
	assert.True(suite.T(), reloaded.LastAlertSent.Equal(sent))
}
