// Package alerts warns users when their monthly expenses approach their
// budget.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fintrack/backend/internal/types"
	"github.com/fintrack/backend/pkg/ledger"
	"github.com/fintrack/backend/pkg/metrics"
	"github.com/fintrack/backend/pkg/models"
	"github.com/fintrack/backend/pkg/notify"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Outcome is the result of evaluating a budget.
type Outcome int

const (
	Failed Outcome = iota
	AlertSent
	Suppressed
	NoDefaultAccount
)

func (o Outcome) String() string {
	switch o {
	case AlertSent:
		return "alert_sent"
	case Suppressed:
		return "suppressed"
	case NoDefaultAccount:
		return "no_default_account"
	}
	return "failed"
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// DefaultThreshold is the percentage of the budget at which users are alerted.
var DefaultThreshold = decimal.NewFromInt(80)

// Evaluator compares the expenses of the current month with budgets.
type Evaluator struct {
	db        *gorm.DB
	notifier  notify.Notifier
	formatter notify.Formatter
	threshold decimal.Decimal
}

// NewEvaluator returns an Evaluator alerting at threshold percent. A zero
// threshold uses DefaultThreshold.
func NewEvaluator(db *gorm.DB, notifier notify.Notifier, formatter notify.Formatter, threshold decimal.Decimal) *Evaluator {
	if threshold.IsZero() {
		threshold = DefaultThreshold
	}

	return &Evaluator{
		db:        db,
		notifier:  notifier,
		formatter: formatter,
		threshold: threshold,
	}
}

// EvaluateBudget alerts the owner of a budget if the expenses on their
// default account in the month of now reached the threshold.
//
// A budget is alerted at most once per calendar month. The alert is recorded
// before the notification is sent, so a failing notification is logged but
// never leads to a second alert.
func (e *Evaluator) EvaluateBudget(ctx context.Context, budgetID uuid.UUID, now time.Time) (Outcome, error) {
	outcome, err := e.evaluate(ctx, budgetID, now.UTC())

	logger := log.With().Str("budget_id", budgetID.String()).Logger()
	if err != nil {
		logger.Error().Err(err).Msg("Could not evaluate budget")
	} else {
		logger.Debug().Str("outcome", outcome.String()).Msg("Budget evaluated")
	}

	metrics.BudgetEvaluations.WithLabelValues(outcome.String()).Inc()
	return outcome, err
}

func (e *Evaluator) evaluate(ctx context.Context, budgetID uuid.UUID, now time.Time) (Outcome, error) {
	db := e.db.WithContext(ctx)

	var budget models.Budget
	if err := db.Preload("User").First(&budget, "id = ?", budgetID).Error; err != nil {
		return Failed, err
	}

	account, err := models.DefaultAccount(db, budget.UserID)
	if errors.Is(err, models.ErrResourceNotFound) {
		return NoDefaultAccount, nil
	} else if err != nil {
		return Failed, err
	}

	if !budget.Amount.IsPositive() {
		return Failed, fmt.Errorf("%w: budget amount must be positive, is %s", ledger.ErrValidation, budget.Amount)
	}

	month := types.MonthOf(now)
	total, err := e.expenses(db, account, month)
	if err != nil {
		return Failed, err
	}

	percentage := total.Div(budget.Amount).Mul(decimal.NewFromInt(100))
	if percentage.LessThan(e.threshold) || budget.AlertedIn(month) {
		return Suppressed, nil
	}

	result := db.Model(&models.Budget{}).
		Where("id = ? AND version = ?", budget.ID, budget.Version).
		Updates(map[string]any{"last_alert_sent": now, "version": budget.Version + 1})
	if result.Error != nil {
		return Failed, result.Error
	}

	// Someone else changed the budget since it was read, most likely another
	// evaluation that already sent the alert.
	if result.RowsAffected == 0 {
		return Suppressed, nil
	}

	err = e.notifier.Notify(ctx, notify.Message{
		Recipient:    budget.User.Email,
		Subject:      fmt.Sprintf("Budget Alert for %s", account.Name),
		TemplateType: notify.BudgetAlert,
		TemplateData: map[string]any{
			"userName":       budget.User.Name,
			"accountName":    account.Name,
			"percentageUsed": e.formatter.Percent(percentage),
			"budgetAmount":   e.formatter.Amount(budget.Amount),
			"totalExpenses":  e.formatter.Amount(total),
		},
	})
	if err != nil {
		log.Warn().
			Err(fmt.Errorf("%w: %w", ledger.ErrExternalCollaborator, err)).
			Str("budget_id", budget.ID.String()).
			Msg("Budget alert recorded, but the notification failed")
	}

	return AlertSent, nil
}

// expenses sums all expenses on the account in the month. Pending expenses
// are included.
func (e *Evaluator) expenses(db *gorm.DB, account models.Account, month types.Month) (decimal.Decimal, error) {
	var transactions []models.Transaction
	err := db.Select("amount").
		Where("account_id = ? AND user_id = ? AND kind = ?", account.ID, account.UserID, models.KindExpense).
		Where("date >= ? AND date < ?", month.Start().UTC(), month.AddDate(0, 1).Start().UTC()).
		Find(&transactions).Error
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, t := range transactions {
		total = total.Add(t.Amount)
	}

	return total, nil
}

// Summary counts the outcomes of evaluating all budgets.
type Summary struct {
	AlertSent        int `json:"alertSent" example:"2"`
	Suppressed       int `json:"suppressed" example:"40"`
	NoDefaultAccount int `json:"noDefaultAccount" example:"1"`
	Failed           int `json:"failed" example:"0"`
}

func (s *Summary) add(o Outcome) {
	switch o {
	case AlertSent:
		s.AlertSent++
	case Suppressed:
		s.Suppressed++
	case NoDefaultAccount:
		s.NoDefaultAccount++
	default:
		s.Failed++
	}
}

// EvaluateAll evaluates every budget. A budget that fails to evaluate is
// counted and does not stop the run.
func (e *Evaluator) EvaluateAll(ctx context.Context, now time.Time) (Summary, error) {
	var (
		summary Summary
		budgets []models.Budget
	)

	err := e.db.WithContext(ctx).Select("id").FindInBatches(&budgets, 100, func(_ *gorm.DB, _ int) error {
		for _, budget := range budgets {
			if err := ctx.Err(); err != nil {
				return err
			}

			outcome, _ := e.EvaluateBudget(ctx, budget.ID, now)
			summary.add(outcome)
		}
		return nil
	}).Error
	if err != nil {
		return summary, fmt.Errorf("could not list budgets: %w", err)
	}

	log.Info().
		Int("alert_sent", summary.AlertSent).
		Int("suppressed", summary.Suppressed).
		Int("no_default_account", summary.NoDefaultAccount).
		Int("failed", summary.Failed).
		Msg("Budget alerts")

	return summary, nil
}
