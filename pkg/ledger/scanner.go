package ledger

import (
	"context"
	"iter"
	"time"

	"github.com/fintrack/backend/pkg/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultBatchSize = 100

// TransactionRef identifies a due recurring transaction template.
//
// It is also the payload of the transaction.recurring.process event.
type TransactionRef struct {
	TransactionID uuid.UUID `json:"transactionId"`
	UserID        uuid.UUID `json:"userId"`
}

// Scanner finds recurring transaction templates that are due.
type Scanner struct {
	db        *gorm.DB
	batchSize int
}

// NewScanner returns a Scanner reading batchSize rows per query. A batchSize
// of zero or less uses the default of 100.
func NewScanner(db *gorm.DB, batchSize int) *Scanner {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &Scanner{db: db, batchSize: batchSize}
}

// ScanDue returns all templates due at now.
//
// The sequence is lazy and read-only. Rows are read in batches ordered by id,
// so no database cursor is held open while the caller processes a ref.
// Iterating again yields the same refs as long as no template was applied in
// between.
//
// If a query fails, the error is yielded once and the sequence ends.
func (s *Scanner) ScanDue(ctx context.Context, now time.Time) iter.Seq2[TransactionRef, error] {
	now = now.UTC()

	return func(yield func(TransactionRef, error) bool) {
		after := uuid.Nil

		for {
			var batch []models.Transaction

			query := s.db.WithContext(ctx).
				Model(&models.Transaction{}).
				Select("id", "user_id").
				Where("is_recurring = ? AND status = ?", true, models.StatusCompleted).
				Where("(last_processed IS NULL OR next_recurring_date <= ?)", now).
				Order("id").
				Limit(s.batchSize)

			if after != uuid.Nil {
				query = query.Where("id > ?", after)
			}

			if err := query.Find(&batch).Error; err != nil {
				yield(TransactionRef{}, err)
				return
			}

			for _, t := range batch {
				if !yield(TransactionRef{TransactionID: t.ID, UserID: t.UserID}, nil) {
					return
				}
			}

			if len(batch) < s.batchSize {
				return
			}

			after = batch[len(batch)-1].ID
		}
	}
}
