package ledger_test

import (
	"context"
	"sync"
	"time"

	"github.com/fintrack/backend/pkg/ledger"
	"github.com/fintrack/backend/pkg/models"
	"github.com/fintrack/backend/pkg/recurrence"
	"github.com/fintrack/backend/test"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func (suite *TestSuiteStandard) reload(t models.Transaction) models.Transaction {
	var reloaded models.Transaction
	suite.Require().Nil(suite.db.First(&reloaded, "id = ?", t.ID).Error)
	return reloaded
}

func (suite *TestSuiteStandard) balance(a models.Account) decimal.Decimal {
	var reloaded models.Account
	suite.Require().Nil(suite.db.First(&reloaded, "id = ?", a.ID).Error)
	return reloaded.Balance
}

func (suite *TestSuiteStandard) materialized(a models.Account) []models.Transaction {
	var transactions []models.Transaction
	suite.Require().Nil(suite.db.Where("account_id = ? AND is_recurring = ?", a.ID, false).Find(&transactions).Error)
	return transactions
}

func (suite *TestSuiteStandard) TestApplyMonthlyFromNow() {
	account := test.CreateAccount(suite.T(), suite.db, models.Account{Balance: decimal.NewFromInt(1000)})
	template := test.CreateRecurring(suite.T(), suite.db, account, decimal.NewFromInt(100), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	outcome, err := suite.mutator(ledger.MutatorOptions{}).ApplyRecurrence(context.Background(), template.ID, account.UserID, now)
	suite.Require().Nil(err)
	suite.Assert().Equal(ledger.Applied, outcome)

	suite.Assert().True(decimal.NewFromInt(900).Equal(suite.balance(account)), "Balance is %s", suite.balance(account))

	transactions := suite.materialized(account)
	suite.Require().Len(transactions, 1)
	suite.Assert().True(transactions[0].Date.Equal(now))
	suite.Assert().Equal(models.StatusCompleted, transactions[0].Status)
	suite.Assert().Equal(models.KindExpense, transactions[0].Kind)
	suite.Assert().Equal(template.Category, transactions[0].Category)
	suite.Assert().True(transactions[0].Amount.Equal(decimal.NewFromInt(100)))
	suite.Assert().Empty(transactions[0].RecurringInterval)

	reloaded := suite.reload(template)
	suite.Require().NotNil(reloaded.LastProcessed)
	suite.Require().NotNil(reloaded.NextRecurringDate)
	suite.Assert().True(reloaded.LastProcessed.Equal(now))
	suite.Assert().Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *reloaded.NextRecurringDate)
	suite.Assert().True(reloaded.IsRecurring, "The template must stay recurring")
}

func (suite *TestSuiteStandard) TestApplyMonthlyFromSchedule() {
	account := test.CreateAccount(suite.T(), suite.db, models.Account{})
	template := test.CreateRecurring(suite.T(), suite.db, account, decimal.NewFromInt(100), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	mutator := suite.mutator(ledger.MutatorOptions{Anchor: recurrence.AnchorSchedule})

	outcome, err := mutator.ApplyRecurrence(context.Background(), template.ID, account.UserID, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	suite.Require().Nil(err)
	suite.Require().Equal(ledger.Applied, outcome)
	suite.Assert().Equal(time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), *suite.reload(template).NextRecurringDate)

	// A late run catches up one occurrence at a time
	late := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	outcome, err = mutator.ApplyRecurrence(context.Background(), template.ID, account.UserID, late)
	suite.Require().Nil(err)
	suite.Require().Equal(ledger.Applied, outcome)
	suite.Assert().Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), *suite.reload(template).NextRecurringDate)

	outcome, err = mutator.ApplyRecurrence(context.Background(), template.ID, account.UserID, late)
	suite.Require().Nil(err)
	suite.Require().Equal(ledger.Applied, outcome)
	suite.Assert().Equal(time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC), *suite.reload(template).NextRecurringDate)

	outcome, err = mutator.ApplyRecurrence(context.Background(), template.ID, account.UserID, late)
	suite.Require().Nil(err)
	suite.Assert().Equal(ledger.SkippedNotDue, outcome)
}

func (suite *TestSuiteStandard) TestApplyTwice() {
	account := test.CreateAccount(suite.T(), suite.db, models.Account{Balance: decimal.NewFromInt(50)})
	template := test.CreateRecurring(suite.T(), suite.db, account, decimal.NewFromFloat(12.5), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mutator := suite.mutator(ledger.MutatorOptions{})

	first, err := mutator.ApplyRecurrence(context.Background(), template.ID, account.UserID, now)
	suite.Require().Nil(err)
	second, err := mutator.ApplyRecurrence(context.Background(), template.ID, account.UserID, now)
	suite.Require().Nil(err)

	suite.Assert().Equal(ledger.Applied, first)
	suite.Assert().Equal(ledger.SkippedNotDue, second)
	suite.Assert().ErrorIs(second.Err(), ledger.ErrNotDue)
	suite.Assert().True(decimal.NewFromFloat(37.5).Equal(suite.balance(account)))
	suite.Assert().Len(suite.materialized(account), 1)
}

func (suite *TestSuiteStandard) TestApplyConcurrently() {
	account := test.CreateAccount(suite.T(), suite.db, models.Account{})
	template := test.CreateRecurring(suite.T(), suite.db, account, decimal.NewFromInt(10), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mutator := suite.mutator(ledger.MutatorOptions{})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make(map[ledger.Outcome]int)
	)

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := mutator.ApplyRecurrence(context.Background(), template.ID, account.UserID, now)
			suite.Assert().Nil(err)

			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	suite.Assert().Equal(1, outcomes[ledger.Applied])
	suite.Assert().Equal(9, outcomes[ledger.SkippedNotDue])
	suite.Assert().True(decimal.NewFromInt(-10).Equal(suite.balance(account)))
}

func (suite *TestSuiteStandard) TestApplyBalanceExact() {
	account := test.CreateAccount(suite.T(), suite.db, models.Account{Balance: decimal.NewFromInt(100)})
	amount := decimal.RequireFromString("0.1")
	template := test.CreateRecurring(suite.T(), suite.db, account, amount, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	mutator := suite.mutator(ledger.MutatorOptions{})

	n := 24
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	for range n {
		outcome, err := mutator.ApplyRecurrence(context.Background(), template.ID, account.UserID, now)
		suite.Require().Nil(err)
		suite.Require().Equal(ledger.Applied, outcome)

		now = *suite.reload(template).NextRecurringDate
	}

	expected := decimal.NewFromInt(100).Sub(amount.Mul(decimal.NewFromInt(int64(n))))
	suite.Assert().True(expected.Equal(suite.balance(account)), "Expected %s, got %s", expected, suite.balance(account))
	suite.Assert().Len(suite.materialized(account), n)
}

func (suite *TestSuiteStandard) TestApplyIncome() {
	account := test.CreateAccount(suite.T(), suite.db, models.Account{})
	template := test.CreateTransaction(suite.T(), suite.db, models.Transaction{
		AccountID:         account.ID,
		UserID:            account.UserID,
		Amount:            decimal.NewFromInt(2500),
		Kind:              models.KindIncome,
		Category:          "salary",
		Date:              time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		IsRecurring:       true,
		RecurringInterval: recurrence.Weekly,
	})
	now := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

	outcome, err := suite.mutator(ledger.MutatorOptions{}).ApplyRecurrence(context.Background(), template.ID, account.UserID, now)
	suite.Require().Nil(err)
	suite.Assert().Equal(ledger.Applied, outcome)
	suite.Assert().True(decimal.NewFromInt(2500).Equal(suite.balance(account)))
	suite.Assert().Equal(now.AddDate(0, 0, 7), *suite.reload(template).NextRecurringDate)
}

func (suite *TestSuiteStandard) TestApplyNotFound() {
	account := test.CreateAccount(suite.T(), suite.db, models.Account{})
	template := test.CreateRecurring(suite.T(), suite.db, account, decimal.NewFromInt(10), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mutator := suite.mutator(ledger.MutatorOptions{})

	outcome, err := mutator.ApplyRecurrence(context.Background(), uuid.New(), account.UserID, now)
	suite.Require().Nil(err)
	suite.Assert().Equal(ledger.SkippedNotFound, outcome)

	// The template exists, but belongs to another user
	outcome, err = mutator.ApplyRecurrence(context.Background(), template.ID, uuid.New(), now)
	suite.Require().Nil(err)
	suite.Assert().Equal(ledger.SkippedNotFound, outcome)
	suite.Assert().ErrorIs(outcome.Err(), ledger.ErrNotFound)

	suite.Assert().Nil(suite.reload(template).LastProcessed)
}

func (suite *TestSuiteStandard) TestApplyAccountDeleted() {
	account := test.CreateAccount(suite.T(), suite.db, models.Account{})
	template := test.CreateRecurring(suite.T(), suite.db, account, decimal.NewFromInt(10), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	suite.Require().Nil(suite.db.Delete(&account).Error)

	outcome, err := suite.mutator(ledger.MutatorOptions{}).ApplyRecurrence(context.Background(), template.ID, account.UserID, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	suite.Require().Nil(err)
	suite.Assert().Equal(ledger.SkippedNotFound, outcome)
	suite.Assert().ErrorIs(outcome.Err(), ledger.ErrNotFound)

	suite.Assert().Empty(suite.materialized(account), "No transaction may be created for a deleted account")
	suite.Assert().Nil(suite.reload(template).LastProcessed)
}

func (suite *TestSuiteStandard) TestApplyNotDue() {
	account := test.CreateAccount(suite.T(), suite.db, models.Account{})
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	last := now.AddDate(0, 0, -1)
	next := now.AddDate(0, 0, 1)

	template := test.CreateTransaction(suite.T(), suite.db, models.Transaction{
		AccountID:         account.ID,
		UserID:            account.UserID,
		Amount:            decimal.NewFromInt(10),
		Date:              last,
		IsRecurring:       true,
		RecurringInterval: recurrence.Daily,
		LastProcessed:     &last,
		NextRecurringDate: &next,
	})

	outcome, err := suite.mutator(ledger.MutatorOptions{}).ApplyRecurrence(context.Background(), template.ID, account.UserID, now)
	suite.Require().Nil(err)
	suite.Assert().Equal(ledger.SkippedNotDue, outcome)
	suite.Assert().True(decimal.Zero.Equal(suite.balance(account)))
}

func (suite *TestSuiteStandard) TestApplyInvalidInterval() {
	account := test.CreateAccount(suite.T(), suite.db, models.Account{})
	template := test.CreateRecurring(suite.T(), suite.db, account, decimal.NewFromInt(10), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	// Bypass the model validation to simulate a malformed record
	suite.Require().Nil(suite.db.Exec("UPDATE transactions SET recurring_interval = 'HOURLY' WHERE id = ?", template.ID).Error)

	outcome, err := suite.mutator(ledger.MutatorOptions{}).ApplyRecurrence(context.Background(), template.ID, account.UserID, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	suite.Assert().ErrorIs(err, ledger.ErrValidation)
	suite.Assert().Equal(ledger.Failed, outcome)
	suite.Assert().True(decimal.Zero.Equal(suite.balance(account)))
	suite.Assert().Empty(suite.materialized(account))
}

func (suite *TestSuiteStandard) TestApplyCanceled() {
	account := test.CreateAccount(suite.T(), suite.db, models.Account{})
	template := test.CreateRecurring(suite.T(), suite.db, account, decimal.NewFromInt(10), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := suite.mutator(ledger.MutatorOptions{}).ApplyRecurrence(ctx, template.ID, account.UserID, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	suite.Assert().NotNil(err)
	suite.Assert().Nil(suite.reload(template).LastProcessed, "A canceled unit of work must not leave partial state")
	suite.Assert().Empty(suite.materialized(account))
}

// interfere simulates another writer that changes the account between the
// read and the guarded write of the mutator.
func (suite *TestSuiteStandard) interfere(times int) {
	count := 0
	err := suite.db.Callback().Query().After("gorm:query").Register("test:interfere", func(db *gorm.DB) {
		if db.Statement.Table != "accounts" || db.Error != nil || count >= times {
			return
		}
		count++
		db.Session(&gorm.Session{NewDB: true}).Exec("UPDATE accounts SET version = version + 1")
	})
	suite.Require().Nil(err)
}

func (suite *TestSuiteStandard) TestApplyRetriesConflict() {
	account := test.CreateAccount(suite.T(), suite.db, models.Account{})
	template := test.CreateRecurring(suite.T(), suite.db, account, decimal.NewFromInt(10), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	suite.interfere(1)

	outcome, err := suite.mutator(ledger.MutatorOptions{}).ApplyRecurrence(context.Background(), template.ID, account.UserID, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	suite.Require().Nil(err)
	suite.Assert().Equal(ledger.Applied, outcome)
	suite.Assert().True(decimal.NewFromInt(-10).Equal(suite.balance(account)))
	suite.Assert().Len(suite.materialized(account), 1, "The conflicting attempt must be rolled back")
}

func (suite *TestSuiteStandard) TestApplyConflictExhausted() {
	account := test.CreateAccount(suite.T(), suite.db, models.Account{})
	template := test.CreateRecurring(suite.T(), suite.db, account, decimal.NewFromInt(10), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	suite.interfere(3)

	outcome, err := suite.mutator(ledger.MutatorOptions{MaxAttempts: 3}).ApplyRecurrence(context.Background(), template.ID, account.UserID, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	suite.Assert().ErrorIs(err, ledger.ErrStoreConflict)
	suite.Assert().Equal(ledger.Failed, outcome)
	suite.Assert().True(decimal.Zero.Equal(suite.balance(account)))
	suite.Assert().Nil(suite.reload(template).LastProcessed)
	suite.Assert().Empty(suite.materialized(account))
}

func (suite *TestSuiteStandard) TestOutcomeString() {
	for outcome, s := range map[ledger.Outcome]string{
		ledger.Failed:          "failed",
		ledger.Applied:         "applied",
		ledger.SkippedNotDue:   "skipped_not_due",
		ledger.SkippedNotFound: "skipped_not_found",
	} {
		suite.Assert().Equal(s, outcome.String())
	}

	suite.Assert().Nil(ledger.Applied.Err())
}
