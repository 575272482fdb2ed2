package controllers

import (
	"net/http"
	"time"

	"github.com/fintrack/backend/pkg/alerts"
	"github.com/fintrack/backend/pkg/httperrors"
	"github.com/fintrack/backend/pkg/httputil"
	"github.com/fintrack/backend/pkg/jobs"
	"github.com/fintrack/backend/pkg/reports"
	"github.com/gin-gonic/gin"
)

// RegisterJobRoutes registers the routes that run the periodic jobs on demand.
func (co Controller) RegisterJobRoutes(r *gin.RouterGroup) {
	r.GET("", co.GetJobs)
	r.OPTIONS("", httputil.OptionsGet)

	r.POST("/"+jobs.RecurringTransactions, co.RunRecurringTransactions)
	r.OPTIONS("/"+jobs.RecurringTransactions, httputil.OptionsPost)

	r.POST("/"+jobs.BudgetAlerts, co.RunBudgetAlerts)
	r.OPTIONS("/"+jobs.BudgetAlerts, httputil.OptionsPost)

	r.POST("/"+jobs.MonthlyReports, co.RunMonthlyReports)
	r.OPTIONS("/"+jobs.MonthlyReports, httputil.OptionsPost)
}

type JobLinks struct {
	RecurringTransactions string `json:"recurringTransactions" example:"https://example.com/api/v1/jobs/recurring-transactions"`
	BudgetAlerts          string `json:"budgetAlerts" example:"https://example.com/api/v1/jobs/budget-alerts"`
	MonthlyReports        string `json:"monthlyReports" example:"https://example.com/api/v1/jobs/monthly-reports"`
}

type JobStatus struct {
	ActiveUsers int `json:"activeUsers" example:"3"` // Users with queued, running or recently started recurring transactions
}

// GetJobs lists the jobs that can be run and the state of the dispatcher.
func (co Controller) GetJobs(c *gin.Context) {
	url := httputil.BaseURL(c) + "/v1/jobs/"

	c.JSON(http.StatusOK, struct {
		Links  JobLinks  `json:"links"`
		Status JobStatus `json:"status"`
	}{
		Status: JobStatus{ActiveUsers: co.Jobs.Dispatcher.Lanes()},
		Links: JobLinks{
			RecurringTransactions: url + jobs.RecurringTransactions,
			BudgetAlerts:          url + jobs.BudgetAlerts,
			MonthlyReports:        url + jobs.MonthlyReports,
		},
	})
}

// RunRecurringTransactions publishes an event for every due recurring
// transaction. The transactions are applied asynchronously.
func (co Controller) RunRecurringTransactions(c *gin.Context) {
	summary, err := co.Jobs.ScanRecurring(c.Request.Context(), time.Now())
	if err != nil {
		httperrors.Handler(c, err)
		return
	}

	c.JSON(http.StatusAccepted, Response[jobs.ScanSummary]{Data: summary})
}

// RunBudgetAlerts evaluates all budgets.
func (co Controller) RunBudgetAlerts(c *gin.Context) {
	summary, err := co.Jobs.Alerts.EvaluateAll(c.Request.Context(), time.Now())
	if err != nil {
		httperrors.Handler(c, err)
		return
	}

	c.JSON(http.StatusOK, Response[alerts.Summary]{Data: summary})
}

// RunMonthlyReports sends the reports for the previous month.
func (co Controller) RunMonthlyReports(c *gin.Context) {
	summary, err := co.Jobs.Reporter.Run(c.Request.Context(), time.Now())
	if err != nil {
		httperrors.Handler(c, err)
		return
	}

	c.JSON(http.StatusOK, Response[reports.Summary]{Data: summary})
}
