// Package reports aggregates the monthly income and expenses of users.
package reports

import (
	"context"

	"github.com/fintrack/backend/internal/types"
	"github.com/fintrack/backend/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Stats are the totals of a user for one month.
type Stats struct {
	TotalIncome   decimal.Decimal            `json:"totalIncome" example:"3000"`
	TotalExpenses decimal.Decimal            `json:"totalExpenses" example:"1234.56"`
	ByCategory    map[string]decimal.Decimal `json:"byCategory"` // Expense totals per category
}

// Net returns income minus expenses.
func (s Stats) Net() decimal.Decimal {
	return s.TotalIncome.Sub(s.TotalExpenses)
}

// Aggregate computes the stats of a user for a month over all of the user's
// accounts.
//
// Only completed transactions count. The month is the half-open range from
// its first instant to the first instant of the next month.
func Aggregate(ctx context.Context, db *gorm.DB, userID uuid.UUID, month types.Month) (Stats, error) {
	var transactions []models.Transaction
	err := db.WithContext(ctx).
		Select("amount", "kind", "category").
		Where("user_id = ? AND status = ?", userID, models.StatusCompleted).
		Where("date >= ? AND date < ?", month.Start().UTC(), month.AddDate(0, 1).Start().UTC()).
		Find(&transactions).Error
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalIncome:   decimal.Zero,
		TotalExpenses: decimal.Zero,
		ByCategory:    make(map[string]decimal.Decimal),
	}

	for _, t := range transactions {
		if t.Kind == models.KindIncome {
			stats.TotalIncome = stats.TotalIncome.Add(t.Amount)
			continue
		}

		stats.TotalExpenses = stats.TotalExpenses.Add(t.Amount)
		stats.ByCategory[t.Category] = stats.ByCategory[t.Category].Add(t.Amount)
	}

	return stats, nil
}
