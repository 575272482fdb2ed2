package controllers

import (
	"net/http"
	"time"

	"github.com/fintrack/backend/pkg/alerts"
	"github.com/fintrack/backend/pkg/httperrors"
	"github.com/fintrack/backend/pkg/httputil"
	"github.com/gin-gonic/gin"
)

// RegisterBudgetRoutes registers the routes for budgets with
// the RouterGroup that is passed.
func (co Controller) RegisterBudgetRoutes(r *gin.RouterGroup) {
	r.OPTIONS("/:id/evaluate", httputil.OptionsPost)
	r.POST("/:id/evaluate", co.EvaluateBudget)
}

type BudgetEvaluation struct {
	Outcome alerts.Outcome `json:"outcome" example:"alert_sent"`
}

// EvaluateBudget evaluates a single budget for the current month.
func (co Controller) EvaluateBudget(c *gin.Context) {
	id, err := httputil.ParamUUID(c, "id")
	if err != nil {
		httperrors.Handler(c, err)
		return
	}

	outcome, err := co.Jobs.Alerts.EvaluateBudget(c.Request.Context(), id, time.Now())
	if err != nil {
		httperrors.Handler(c, err)
		return
	}

	c.JSON(http.StatusOK, Response[BudgetEvaluation]{Data: BudgetEvaluation{Outcome: outcome}})
}
