// Package jobs wires the ledger components to triggers: the periodic scans and
// the consumer of transaction.recurring.process events.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/fintrack/backend/pkg/alerts"
	"github.com/fintrack/backend/pkg/dispatch"
	"github.com/fintrack/backend/pkg/events"
	"github.com/fintrack/backend/pkg/ledger"
	"github.com/fintrack/backend/pkg/reports"
	"github.com/fintrack/backend/pkg/scheduler"
	"github.com/rs/zerolog/log"
)

// Names of the periodic jobs.
const (
	RecurringTransactions = "recurring-transactions"
	BudgetAlerts          = "budget-alerts"
	MonthlyReports        = "monthly-reports"
)

// Schedules are the cron expressions of the periodic jobs.
type Schedules struct {
	RecurringTransactions string
	BudgetAlerts          string
	MonthlyReports        string
}

// DefaultSchedules scans recurring transactions daily at midnight, budgets
// every six hours and sends reports on the first of every month.
func DefaultSchedules() Schedules {
	return Schedules{
		RecurringTransactions: "0 0 * * *",
		BudgetAlerts:          "0 */6 * * *",
		MonthlyReports:        "0 0 1 * *",
	}
}

// Options configure the jobs.
type Options struct {
	Dispatch dispatch.Options

	// ApplyTimeout bounds a single application of a recurring transaction.
	ApplyTimeout time.Duration
}

// Jobs holds the ledger components.
type Jobs struct {
	Scanner    *ledger.Scanner
	Mutator    *ledger.Mutator
	Dispatcher *dispatch.Dispatcher
	Alerts     *alerts.Evaluator
	Reporter   *reports.Reporter

	publisher    events.Publisher
	applyTimeout time.Duration

	// Now returns the current time. It is replaced in tests.
	Now func() time.Time
}

func New(scanner *ledger.Scanner, mutator *ledger.Mutator, evaluator *alerts.Evaluator, reporter *reports.Reporter, publisher events.Publisher, options Options) *Jobs {
	if options.ApplyTimeout <= 0 {
		options.ApplyTimeout = 30 * time.Second
	}

	j := &Jobs{
		Scanner:      scanner,
		Mutator:      mutator,
		Alerts:       evaluator,
		Reporter:     reporter,
		publisher:    publisher,
		applyTimeout: options.ApplyTimeout,
		Now:          time.Now,
	}

	j.Dispatcher = dispatch.New(j.apply, options.Dispatch)
	return j
}

// Register registers the periodic jobs and the event consumer.
func (j *Jobs) Register(s *scheduler.Scheduler, schedules Schedules) error {
	err := s.RegisterPeriodic(RecurringTransactions, schedules.RecurringTransactions, func(ctx context.Context, now time.Time) error {
		_, err := j.ScanRecurring(ctx, now)
		return err
	})
	if err != nil {
		return err
	}

	err = s.RegisterPeriodic(BudgetAlerts, schedules.BudgetAlerts, func(ctx context.Context, now time.Time) error {
		_, err := j.Alerts.EvaluateAll(ctx, now)
		return err
	})
	if err != nil {
		return err
	}

	err = s.RegisterPeriodic(MonthlyReports, schedules.MonthlyReports, func(ctx context.Context, now time.Time) error {
		_, err := j.Reporter.Run(ctx, now)
		return err
	})
	if err != nil {
		return err
	}

	s.RegisterEventConsumer(events.TopicRecurringProcess, j.HandleRecurringEvent)
	return nil
}

// ScanSummary counts the events published by a scan.
type ScanSummary struct {
	Published int `json:"published" example:"14"`
	Failed    int `json:"failed" example:"0"`
}

// ScanRecurring publishes one transaction.recurring.process event for every
// template due at now.
func (j *Jobs) ScanRecurring(ctx context.Context, now time.Time) (ScanSummary, error) {
	var summary ScanSummary

	for ref, err := range j.Scanner.ScanDue(ctx, now) {
		if err != nil {
			return summary, fmt.Errorf("could not scan recurring transactions: %w", err)
		}

		body, err := events.EncodeRecurring(ref)
		if err == nil {
			err = j.publisher.Publish(ctx, events.TopicRecurringProcess, body)
		}

		if err != nil {
			log.Error().Err(err).Str("transaction_id", ref.TransactionID.String()).Msg("Could not publish due recurring transaction")
			summary.Failed++
			continue
		}
		summary.Published++
	}

	log.Info().Int("published", summary.Published).Int("failed", summary.Failed).Msg("Recurring transactions scanned")
	return summary, nil
}

// HandleRecurringEvent hands a transaction.recurring.process message to the
// dispatcher.
func (j *Jobs) HandleRecurringEvent(_ context.Context, body []byte) error {
	ref, err := events.DecodeRecurring(body)
	if err != nil {
		return err
	}

	return j.Dispatcher.Dispatch(ref)
}

// apply is the dispatcher handler.
func (j *Jobs) apply(ctx context.Context, ref ledger.TransactionRef) error {
	_, err := j.Apply(ctx, ref)
	return err
}

// ApplyThrottled applies a recurring transaction through the dispatcher and
// waits for the outcome. The call counts towards the bounds of the user.
func (j *Jobs) ApplyThrottled(ctx context.Context, ref ledger.TransactionRef) (ledger.Outcome, error) {
	var outcome ledger.Outcome
	err := j.Dispatcher.Call(ctx, ref, func(ctx context.Context, ref ledger.TransactionRef) (err error) {
		outcome, err = j.Apply(ctx, ref)
		return err
	})
	if err != nil {
		// The handler may still be running if ctx ended first
		return ledger.Failed, err
	}

	return outcome, nil
}

// Apply applies a recurring transaction now, bounded by the apply timeout.
func (j *Jobs) Apply(ctx context.Context, ref ledger.TransactionRef) (ledger.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, j.applyTimeout)
	defer cancel()

	return j.Mutator.ApplyRecurrence(ctx, ref.TransactionID, ref.UserID, j.Now())
}
