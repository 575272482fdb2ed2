package controllers_test

import (
	"net/http"
	"time"

	"github.com/fintrack/backend/pkg/alerts"
	"github.com/fintrack/backend/pkg/controllers"
	"github.com/fintrack/backend/pkg/jobs"
	"github.com/fintrack/backend/pkg/models"
	"github.com/fintrack/backend/pkg/reports"
	"github.com/fintrack/backend/test"
	"github.com/shopspring/decimal"
)

func (suite *TestSuiteStandard) TestGetJobs() {
	w := suite.request(http.MethodGet, "/v1/jobs", nil)
	test.AssertHTTPStatus(suite.T(), &w, http.StatusOK)

	var response struct {
		Links  controllers.JobLinks  `json:"links"`
		Status controllers.JobStatus `json:"status"`
	}
	test.DecodeResponse(suite.T(), &w, &response)
	suite.Assert().Equal(test.BaseURL+"/v1/jobs/recurring-transactions", response.Links.RecurringTransactions)
	suite.Assert().Equal(0, response.Status.ActiveUsers)
}

func (suite *TestSuiteStandard) TestRunRecurringTransactions() {
	account := test.CreateAccount(suite.T(), suite.controller.DB, models.Account{})
	_ = test.CreateRecurring(suite.T(), suite.controller.DB, account, decimal.NewFromInt(10), time.Now().AddDate(0, -1, 0))
	_ = test.CreateRecurring(suite.T(), suite.controller.DB, account, decimal.NewFromInt(20), time.Now().AddDate(0, -1, 0))

	w := suite.request(http.MethodPost, "/v1/jobs/recurring-transactions", nil)
	test.AssertHTTPStatus(suite.T(), &w, http.StatusAccepted)

	var response controllers.Response[jobs.ScanSummary]
	test.DecodeResponse(suite.T(), &w, &response)
	suite.Assert().Equal(jobs.ScanSummary{Published: 2}, response.Data)
}

func (suite *TestSuiteStandard) TestRunBudgetAlerts() {
	user := test.CreateUser(suite.T(), suite.controller.DB, models.User{Name: "Jane"})
	account := test.CreateAccount(suite.T(), suite.controller.DB, models.Account{UserID: user.ID})
	_ = test.CreateTransaction(suite.T(), suite.controller.DB, models.Transaction{AccountID: account.ID, UserID: user.ID, Amount: decimal.NewFromInt(95), Date: time.Now()})
	_ = test.CreateBudget(suite.T(), suite.controller.DB, models.Budget{UserID: user.ID, Amount: decimal.NewFromInt(100)})

	w := suite.request(http.MethodPost, "/v1/jobs/budget-alerts", nil)
	test.AssertHTTPStatus(suite.T(), &w, http.StatusOK)

	var response controllers.Response[alerts.Summary]
	test.DecodeResponse(suite.T(), &w, &response)
	suite.Assert().Equal(alerts.Summary{AlertSent: 1}, response.Data)
	suite.Assert().Len(suite.notifier.messages, 1)
}

func (suite *TestSuiteStandard) TestRunMonthlyReports() {
	_ = test.CreateUser(suite.T(), suite.controller.DB, models.User{Name: "Jane"})
	_ = test.CreateUser(suite.T(), suite.controller.DB, models.User{Name: "John", Email: "john@example.com"})

	w := suite.request(http.MethodPost, "/v1/jobs/monthly-reports", nil)
	test.AssertHTTPStatus(suite.T(), &w, http.StatusOK)

	var response controllers.Response[reports.Summary]
	test.DecodeResponse(suite.T(), &w, &response)
	suite.Assert().Equal(2, response.Data.Sent)
	suite.Assert().Len(suite.notifier.messages, 2)
}

func (suite *TestSuiteStandard) TestRunJobsMethodNotAllowed() {
	w := suite.request(http.MethodGet, "/v1/jobs/budget-alerts", nil)
	test.AssertHTTPStatus(suite.T(), &w, http.StatusMethodNotAllowed)
}

func (suite *TestSuiteStandard) TestRunJobsDatabaseClosed() {
	test.Disconnect(suite.T(), suite.controller.DB)

	for _, job := range []string{jobs.RecurringTransactions, jobs.BudgetAlerts, jobs.MonthlyReports} {
		w := suite.request(http.MethodPost, "/v1/jobs/"+job, nil)
		test.AssertHTTPStatus(suite.T(), &w, http.StatusInternalServerError)
	}
}
