// Package metrics holds the Prometheus collectors of the ledger engine.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var collectors = []prometheus.Collector{
	RecurringApplications,
	BudgetEvaluations,
	MonthlyReports,
	DispatchInFlight,
	DispatchQueued,
}

// Register registers all collectors with the default registry.
//
// Collectors that are already registered are skipped.
func Register() error {
	for _, c := range collectors {
		err := prometheus.Register(c)

		var are prometheus.AlreadyRegisteredError
		if err != nil && !errors.As(err, &are) {
			return fmt.Errorf("could not register %s with Prometheus: %w", c, err)
		}
	}

	return nil
}

// Unregister unregisters all collectors.
func Unregister() bool {
	ok := true
	for _, c := range collectors {
		ok = prometheus.Unregister(c) && ok
	}

	return ok
}

var RecurringApplications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "recurring_applications_total",
		Help: "How many recurring transactions were processed, partitioned by outcome.",
	},
	[]string{"outcome"},
)

var BudgetEvaluations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "budget_evaluations_total",
		Help: "How many budgets were evaluated, partitioned by outcome.",
	},
	[]string{"outcome"},
)

var MonthlyReports = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "monthly_reports_total",
		Help: "How many monthly reports were generated, partitioned by outcome.",
	},
	[]string{"outcome"},
)

var DispatchInFlight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "dispatch_in_flight",
		Help: "Number of events currently being handled by the dispatcher.",
	},
)

var DispatchQueued = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "dispatch_queued",
		Help: "Number of events waiting in per-user dispatcher queues.",
	},
)
