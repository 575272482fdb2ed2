package ledger_test

import (
	"context"
	"time"

	"github.com/fintrack/backend/pkg/ledger"
	"github.com/fintrack/backend/pkg/models"
	"github.com/fintrack/backend/pkg/recurrence"
	"github.com/fintrack/backend/test"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (suite *TestSuiteStandard) collect(s *ledger.Scanner, now time.Time) []ledger.TransactionRef {
	var refs []ledger.TransactionRef
	for ref, err := range s.ScanDue(context.Background(), now) {
		suite.Require().Nil(err)
		refs = append(refs, ref)
	}
	return refs
}

func (suite *TestSuiteStandard) TestScanDuePredicate() {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 1)
	account := test.CreateAccount(suite.T(), suite.db, models.Account{})

	template := func(t models.Transaction) models.Transaction {
		t.AccountID = account.ID
		t.UserID = account.UserID
		t.Amount = decimal.NewFromInt(10)
		t.Date = past
		return test.CreateTransaction(suite.T(), suite.db, t)
	}

	neverProcessed := template(models.Transaction{IsRecurring: true, RecurringInterval: recurrence.Monthly})
	dueNow := template(models.Transaction{IsRecurring: true, RecurringInterval: recurrence.Daily, LastProcessed: &past, NextRecurringDate: &now})
	_ = template(models.Transaction{IsRecurring: true, RecurringInterval: recurrence.Weekly, LastProcessed: &past, NextRecurringDate: &future})
	_ = template(models.Transaction{IsRecurring: true, RecurringInterval: recurrence.Monthly, Status: models.StatusPending})
	_ = template(models.Transaction{})

	deleted := template(models.Transaction{IsRecurring: true, RecurringInterval: recurrence.Yearly})
	suite.Require().Nil(suite.db.Delete(&deleted).Error)

	refs := suite.collect(ledger.NewScanner(suite.db, 0), now)
	suite.Assert().ElementsMatch([]ledger.TransactionRef{
		{TransactionID: neverProcessed.ID, UserID: account.UserID},
		{TransactionID: dueNow.ID, UserID: account.UserID},
	}, refs)
}

func (suite *TestSuiteStandard) TestScanDueBatches() {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	account := test.CreateAccount(suite.T(), suite.db, models.Account{})

	ids := make(map[uuid.UUID]bool)
	for range 7 {
		t := test.CreateRecurring(suite.T(), suite.db, account, decimal.NewFromInt(1), now.AddDate(0, -1, 0))
		ids[t.ID] = true
	}

	refs := suite.collect(ledger.NewScanner(suite.db, 3), now)
	suite.Require().Len(refs, 7)
	for _, ref := range refs {
		suite.Assert().True(ids[ref.TransactionID], "Unexpected ref %s", ref.TransactionID)
		delete(ids, ref.TransactionID)
	}

	// Re-running the scan without mutations yields the same set
	suite.Assert().ElementsMatch(refs, suite.collect(ledger.NewScanner(suite.db, 3), now))
}

func (suite *TestSuiteStandard) TestScanDueEarlyStop() {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	account := test.CreateAccount(suite.T(), suite.db, models.Account{})
	for range 5 {
		_ = test.CreateRecurring(suite.T(), suite.db, account, decimal.NewFromInt(1), now)
	}

	count := 0
	for _, err := range ledger.NewScanner(suite.db, 2).ScanDue(context.Background(), now) {
		suite.Require().Nil(err)
		count++
		if count == 3 {
			break
		}
	}
	suite.Assert().Equal(3, count)
}

func (suite *TestSuiteStandard) TestScanDueDatabaseError() {
	test.Disconnect(suite.T(), suite.db)

	var errs []error
	for _, err := range ledger.NewScanner(suite.db, 0).ScanDue(context.Background(), time.Now()) {
		errs = append(errs, err)
	}

	suite.Require().Len(errs, 1)
	suite.Assert().ErrorIs(errs[0], models.ErrGeneral)
}
