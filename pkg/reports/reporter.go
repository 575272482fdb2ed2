package reports

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fintrack/backend/internal/types"
	"github.com/fintrack/backend/pkg/ledger"
	"github.com/fintrack/backend/pkg/metrics"
	"github.com/fintrack/backend/pkg/models"
	"github.com/fintrack/backend/pkg/notify"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// InsightGenerator comments on the stats of a period, e.g. "January 2024".
type InsightGenerator interface {
	Generate(ctx context.Context, stats Stats, period string) ([]string, error)
}

// Summary counts the reports of one run.
type Summary struct {
	Month           types.Month `json:"month" example:"2024-01-01T00:00:00Z"`
	Sent            int         `json:"sent" example:"12"`
	Failed          int         `json:"failed" example:"0"`
	WithoutInsights int         `json:"withoutInsights" example:"1"` // Reports sent without insights because the generator failed
	AlreadySent     int         `json:"alreadySent" example:"0"`     // Users that already got the report for the month
}

// Reporter sends the monthly report to every user.
type Reporter struct {
	db        *gorm.DB
	insights  InsightGenerator
	notifier  notify.Notifier
	formatter notify.Formatter

	// Concurrency is the number of users reported on in parallel.
	Concurrency int
}

func NewReporter(db *gorm.DB, insights InsightGenerator, notifier notify.Notifier, formatter notify.Formatter) *Reporter {
	return &Reporter{
		db:          db,
		insights:    insights,
		notifier:    notifier,
		formatter:   formatter,
		Concurrency: 4,
	}
}

// Run sends the report for the month before now to all users.
//
// Every user is reported on independently. A failure for one user is logged
// and counted, but does not stop the run. Only a failure to list users is
// returned.
//
// Users that already got the report for the month are skipped, so running
// twice in the same month sends every report once.
func (r *Reporter) Run(ctx context.Context, now time.Time) (Summary, error) {
	summary := Summary{Month: types.MonthOf(now.UTC()).AddDate(0, -1)}
	var mu sync.Mutex

	var users []models.User
	err := r.db.WithContext(ctx).FindInBatches(&users, 100, func(_ *gorm.DB, _ int) error {
		g := errgroup.Group{}
		g.SetLimit(max(r.Concurrency, 1))

		for _, user := range users {
			g.Go(func() error {
				result := r.report(ctx, user, summary.Month)

				mu.Lock()
				defer mu.Unlock()
				switch result {
				case reportSent:
					summary.Sent++
				case reportWithoutInsights:
					summary.Sent++
					summary.WithoutInsights++
				case reportAlreadySent:
					summary.AlreadySent++
				default:
					summary.Failed++
				}
				return nil
			})
		}

		return g.Wait()
	}).Error
	if err != nil {
		return summary, fmt.Errorf("could not list users: %w", err)
	}

	log.Info().
		Str("month", summary.Month.String()).
		Int("sent", summary.Sent).
		Int("failed", summary.Failed).
		Int("without_insights", summary.WithoutInsights).
		Int("already_sent", summary.AlreadySent).
		Msg("Monthly reports")

	return summary, nil
}

type reportResult int

const (
	reportFailed reportResult = iota
	reportSent
	reportWithoutInsights
	reportAlreadySent
)

// report aggregates, comments on and sends the report of a single user.
//
// The month is recorded on the user before the notification is sent. A
// failed notification is not retried.
func (r *Reporter) report(ctx context.Context, user models.User, month types.Month) reportResult {
	logger := log.With().Str("user_id", user.ID.String()).Str("month", month.String()).Logger()

	if user.ReportedFor(month) {
		return reportAlreadySent
	}

	stats, err := Aggregate(ctx, r.db, user.ID, month)
	if err != nil {
		logger.Error().Err(err).Msg("Could not aggregate monthly stats")
		metrics.MonthlyReports.WithLabelValues("failed").Inc()
		return reportFailed
	}

	result := reportSent
	insights, err := r.insights.Generate(ctx, stats, month.Label())
	if err != nil {
		logger.Warn().Err(fmt.Errorf("%w: %w", ledger.ErrExternalCollaborator, err)).Msg("Could not generate insights, sending report without them")
		insights = []string{}
		result = reportWithoutInsights
	}

	recorded := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND version = ?", user.ID, user.Version).
		Updates(map[string]any{"last_report_month": month.Start().UTC(), "version": user.Version + 1})
	if recorded.Error != nil {
		logger.Error().Err(recorded.Error).Msg("Could not record monthly report")
		metrics.MonthlyReports.WithLabelValues("failed").Inc()
		return reportFailed
	}

	// Another run changed the user since it was listed and has sent the report
	if recorded.RowsAffected == 0 {
		return reportAlreadySent
	}

	err = r.notifier.Notify(ctx, notify.Message{
		Recipient:    user.Email,
		Subject:      "Your Monthly Financial Report",
		TemplateType: notify.MonthlyReport,
		TemplateData: r.templateData(user, month, stats, insights),
	})
	if err != nil {
		logger.Error().Err(fmt.Errorf("%w: %w", ledger.ErrExternalCollaborator, err)).Msg("Could not send monthly report")
		metrics.MonthlyReports.WithLabelValues("failed").Inc()
		return reportFailed
	}

	metrics.MonthlyReports.WithLabelValues("sent").Inc()
	return result
}

func (r *Reporter) templateData(user models.User, month types.Month, stats Stats, insights []string) map[string]any {
	byCategory := make(map[string]string, len(stats.ByCategory))
	for category, total := range stats.ByCategory {
		byCategory[category] = r.formatter.Amount(total)
	}

	if insights == nil {
		insights = []string{}
	}

	return map[string]any{
		"userName": user.Name,
		"month":    month.Label(),
		"stats": map[string]any{
			"totalIncome":   r.formatter.Amount(stats.TotalIncome),
			"totalExpenses": r.formatter.Amount(stats.TotalExpenses),
			"net":           r.formatter.Amount(stats.Net()),
			"byCategory":    byCategory,
		},
		"insights": insights,
	}
}
