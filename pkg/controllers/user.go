package controllers

import (
	"net/http"
	"time"

	"github.com/fintrack/backend/internal/types"
	"github.com/fintrack/backend/pkg/httperrors"
	"github.com/fintrack/backend/pkg/httputil"
	"github.com/fintrack/backend/pkg/models"
	"github.com/fintrack/backend/pkg/reports"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// RegisterUserRoutes registers the routes for users with
// the RouterGroup that is passed.
func (co Controller) RegisterUserRoutes(r *gin.RouterGroup) {
	r.OPTIONS("/:id/stats", httputil.OptionsGet)
	r.GET("/:id/stats", co.GetUserStats)
}

type CategoryAmount struct {
	Category string          `json:"category" example:"groceries"`
	Amount   decimal.Decimal `json:"amount" example:"312.45"`
}

type UserStats struct {
	Month         types.Month      `json:"month" example:"2024-01-01T00:00:00Z"`
	TotalIncome   decimal.Decimal  `json:"totalIncome" example:"3200"`
	TotalExpenses decimal.Decimal  `json:"totalExpenses" example:"2480.5"`
	Net           decimal.Decimal  `json:"net" example:"719.5"`
	ByCategory    []CategoryAmount `json:"byCategory"` // Expenses per category, sorted by category name
}

func newUserStats(month types.Month, stats reports.Stats) UserStats {
	categories := maps.Keys(stats.ByCategory)
	slices.Sort(categories)

	byCategory := make([]CategoryAmount, 0, len(categories))
	for _, category := range categories {
		byCategory = append(byCategory, CategoryAmount{Category: category, Amount: stats.ByCategory[category]})
	}

	return UserStats{
		Month:         month,
		TotalIncome:   stats.TotalIncome,
		TotalExpenses: stats.TotalExpenses,
		Net:           stats.Net(),
		ByCategory:    byCategory,
	}
}

// GetUserStats returns the monthly statistics of a user. The month defaults
// to the current month.
func (co Controller) GetUserStats(c *gin.Context) {
	id, err := httputil.ParamUUID(c, "id")
	if err != nil {
		httperrors.Handler(c, err)
		return
	}

	month, err := httputil.QueryMonth(c, "month", types.MonthOf(time.Now().UTC()))
	if err != nil {
		httperrors.Handler(c, err)
		return
	}

	err = co.DB.WithContext(c.Request.Context()).First(&models.User{}, "id = ?", id).Error
	if err != nil {
		httperrors.Handler(c, err)
		return
	}

	stats, err := reports.Aggregate(c.Request.Context(), co.DB, id, month)
	if err != nil {
		httperrors.Handler(c, err)
		return
	}

	c.JSON(http.StatusOK, Response[UserStats]{Data: newUserStats(month, stats)})
}
