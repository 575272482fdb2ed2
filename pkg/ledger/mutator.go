package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fintrack/backend/pkg/metrics"
	"github.com/fintrack/backend/pkg/models"
	"github.com/fintrack/backend/pkg/recurrence"
	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// MutatorOptions configure a Mutator.
type MutatorOptions struct {
	// Anchor decides from which instant the next occurrence is computed.
	Anchor recurrence.AnchorPolicy

	// MaxAttempts is the number of times a unit of work is tried when it
	// conflicts with another writer. Defaults to 3.
	MaxAttempts int

	// Backoff is the pause between attempts.
	Backoff gax.Backoff
}

// Mutator applies due recurring transactions to the ledger.
//
// It is the only writer of account balances and of the scheduling fields of
// recurring transactions.
type Mutator struct {
	db      *gorm.DB
	options MutatorOptions
}

func NewMutator(db *gorm.DB, options MutatorOptions) *Mutator {
	if options.MaxAttempts <= 0 {
		options.MaxAttempts = 3
	}

	if options.Backoff.Initial == 0 {
		options.Backoff = gax.Backoff{
			Initial:    50 * time.Millisecond,
			Max:        time.Second,
			Multiplier: 2,
		}
	}

	return &Mutator{db: db, options: options}
}

// ApplyRecurrence applies the template with the given id and owner once for
// the occurrence that is due at now.
//
// Applying means creating a completed, non-recurring copy of the template
// dated now, adding its signed amount to the account balance and moving the
// template to its next occurrence. All of this happens in one database
// transaction.
//
// Applying a template that is not due, e.g. because the same event was
// delivered twice, returns SkippedNotDue without changing anything. Conflicts
// with other writers are retried with backoff. When all attempts conflict, the
// error wraps ErrStoreConflict and the template stays due for the next scan.
func (m *Mutator) ApplyRecurrence(ctx context.Context, transactionID, userID uuid.UUID, now time.Time) (Outcome, error) {
	now = now.UTC()
	backoff := m.options.Backoff

	var (
		outcome Outcome
		err     error
	)

	for attempt := 1; ; attempt++ {
		outcome, err = m.apply(ctx, transactionID, userID, now)
		if err == nil || !errors.Is(err, ErrStoreConflict) || attempt >= m.options.MaxAttempts {
			break
		}

		log.Debug().Str("transaction_id", transactionID.String()).Int("attempt", attempt).Err(err).Msg("Retrying recurring transaction")
		if sleepErr := gax.Sleep(ctx, backoff.Pause()); sleepErr != nil {
			err = fmt.Errorf("%w: %w", err, sleepErr)
			break
		}
	}

	logger := log.With().Str("transaction_id", transactionID.String()).Str("user_id", userID.String()).Logger()
	switch {
	case errors.Is(err, ErrValidation):
		logger.Error().Err(err).Msg("Recurring transaction is invalid and needs manual review")
	case err != nil:
		logger.Warn().Err(err).Msg("Recurring transaction could not be applied")
	default:
		logger.Debug().Str("outcome", outcome.String()).Msg("Recurring transaction processed")
	}

	metrics.RecurringApplications.WithLabelValues(outcome.String()).Inc()
	return outcome, err
}

// apply runs one attempt of the unit of work.
func (m *Mutator) apply(ctx context.Context, transactionID, userID uuid.UUID, now time.Time) (Outcome, error) {
	outcome := Failed

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var template models.Transaction
		err := tx.Where("id = ? AND user_id = ?", transactionID, userID).First(&template).Error
		if errors.Is(err, models.ErrResourceNotFound) {
			outcome = SkippedNotFound
			return nil
		} else if err != nil {
			return err
		}

		if !template.IsDue(now) {
			outcome = SkippedNotDue
			return nil
		}

		if err := template.Validate(); err != nil {
			return err
		}

		next, err := m.options.Anchor.Next(template.ScheduledDate(), now, template.RecurringInterval)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}

		// The account is loaded before anything is written so that a deleted
		// account ends the event without side effects.
		var account models.Account
		err = tx.First(&account, "id = ?", template.AccountID).Error
		if errors.Is(err, models.ErrResourceNotFound) {
			outcome = SkippedNotFound
			return nil
		} else if err != nil {
			return fmt.Errorf("could not load account: %w", err)
		}

		materialized := models.Transaction{
			AccountID:   template.AccountID,
			UserID:      template.UserID,
			Amount:      template.Amount,
			Kind:        template.Kind,
			Category:    template.Category,
			Description: template.Description,
			Date:        now,
			Status:      models.StatusCompleted,
		}

		if err := tx.Create(&materialized).Error; err != nil {
			return fmt.Errorf("could not create transaction: %w", err)
		}

		err = guardedUpdate(tx.Model(&models.Account{}), account.ID, account.Version, map[string]any{
			"balance": account.Balance.Add(template.SignedAmount()),
			"version": account.Version + 1,
		})
		if err != nil {
			return fmt.Errorf("could not update balance: %w", err)
		}

		err = guardedUpdate(tx.Model(&models.Transaction{}), template.ID, template.Version, map[string]any{
			"last_processed":      now,
			"next_recurring_date": next,
			"version":             template.Version + 1,
		})
		if err != nil {
			return fmt.Errorf("could not advance recurring transaction: %w", err)
		}

		outcome = Applied
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			err = fmt.Errorf("%w: %w", ErrStoreConflict, err)
		}
		return Failed, err
	}

	return outcome, nil
}

// guardedUpdate updates the row only if its version is unchanged since it was
// read.
func guardedUpdate(query *gorm.DB, id uuid.UUID, version uint64, values map[string]any) error {
	result := query.Where("id = ? AND version = ?", id, version).Updates(values)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStoreConflict
	}

	return nil
}
