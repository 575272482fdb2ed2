package controllers_test

import (
	"net/http"
	"time"

	"github.com/fintrack/backend/pkg/alerts"
	"github.com/fintrack/backend/pkg/controllers"
	"github.com/fintrack/backend/pkg/models"
	"github.com/fintrack/backend/test"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (suite *TestSuiteStandard) TestEvaluateBudget() {
	user := test.CreateUser(suite.T(), suite.controller.DB, models.User{Name: "Jane"})
	account := test.CreateAccount(suite.T(), suite.controller.DB, models.Account{UserID: user.ID, Name: "Checking"})
	_ = test.CreateTransaction(suite.T(), suite.controller.DB, models.Transaction{AccountID: account.ID, UserID: user.ID, Amount: decimal.NewFromInt(450), Date: time.Now()})
	budget := test.CreateBudget(suite.T(), suite.controller.DB, models.Budget{UserID: user.ID, Amount: decimal.NewFromInt(500)})

	for _, outcome := range []alerts.Outcome{alerts.AlertSent, alerts.Suppressed} {
		w := suite.request(http.MethodPost, "/v1/budgets/"+budget.ID.String()+"/evaluate", nil)
		test.AssertHTTPStatus(suite.T(), &w, http.StatusOK)

		var response struct {
			Data struct {
				Outcome string `json:"outcome"`
			} `json:"data"`
		}
		test.DecodeResponse(suite.T(), &w, &response)
		suite.Assert().Equal(outcome.String(), response.Data.Outcome)
	}

	suite.Assert().Len(suite.notifier.messages, 1, "The second evaluation in the same month must not alert again")
}

func (suite *TestSuiteStandard) TestEvaluateBudgetErrors() {
	budget := test.CreateBudget(suite.T(), suite.controller.DB, models.Budget{Amount: decimal.Zero})
	_ = test.CreateAccount(suite.T(), suite.controller.DB, models.Account{UserID: budget.UserID})

	tests := []struct {
		id     string
		status int
	}{
		{"not-a-uuid", http.StatusBadRequest},
		{uuid.New().String(), http.StatusNotFound},
		{budget.ID.String(), http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		w := suite.request(http.MethodPost, "/v1/budgets/"+tt.id+"/evaluate", nil)
		test.AssertHTTPStatus(suite.T(), &w, tt.status)
		suite.Assert().NotEmpty(test.DecodeError(suite.T(), w.Body.Bytes()))
	}
}

func (suite *TestSuiteStandard) TestEvaluateBudgetNoDefaultAccount() {
	budget := test.CreateBudget(suite.T(), suite.controller.DB, models.Budget{Amount: decimal.NewFromInt(10)})

	w := suite.request(http.MethodPost, "/v1/budgets/"+budget.ID.String()+"/evaluate", nil)
	test.AssertHTTPStatus(suite.T(), &w, http.StatusOK)

	var response controllers.Response[map[string]string]
	test.DecodeResponse(suite.T(), &w, &response)
	suite.Assert().Equal("no_default_account", response.Data["outcome"])
}
