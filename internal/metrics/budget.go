// Package metrics provides budget-related Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Daily Quota Metrics
// =============================================================================

var (
	// QuotaUsedUnits tracks units consumed in the current daily window.
	QuotaUsedUnits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_used_units",
			Help:      "API units consumed in the current daily window",
		},
	)

	// QuotaRemainingUnits tracks units still spendable above the reserve.
	QuotaRemainingUnits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_remaining_units",
			Help:      "API units still spendable above the reserve buffer",
		},
	)

	// QuotaUsagePercent tracks usage as a fraction of the daily limit.
	QuotaUsagePercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_usage_percent",
			Help:      "Quota usage as a percentage of the daily limit",
		},
	)

	// QuotaResetHours tracks hours until the daily window resets.
	QuotaResetHours = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_reset_hours",
			Help:      "Hours until the daily quota window resets",
		},
	)

	// BudgetDenials counts admissions refused for lack of budget.
	BudgetDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_denials_total",
			Help:      "Total admissions refused for lack of budget",
		},
		[]string{"operation"},
	)

	// BudgetThresholdCrossings counts warn/critical threshold crossings.
	BudgetThresholdCrossings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_threshold_crossings_total",
			Help:      "Times quota usage crossed the warn or critical threshold",
		},
		[]string{"level"}, // level: warn, critical
	)

	// RequestDowngrades counts request-size reductions by the optimizer.
	RequestDowngrades = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_downgrades_total",
			Help:      "Times the optimizer shrank a request to fit remaining budget",
		},
		[]string{"kind"},
	)
)

// SetQuotaSnapshot publishes the ledger state after a change.
func SetQuotaSnapshot(used, remaining int64, percent float64, resetAt time.Time) {
	QuotaUsedUnits.Set(float64(used))
	QuotaRemainingUnits.Set(float64(remaining))
	QuotaUsagePercent.Set(percent)
	QuotaResetHours.Set(time.Until(resetAt).Hours())
}
