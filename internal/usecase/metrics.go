// internal/usecase/metrics.go
package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// reconcile outcome labels
const (
	outcomeCredited        = "credited"
	outcomeFallbackCredit  = "credited_fallback"
	outcomeDuplicate       = "duplicate"
	outcomeParseIncomplete = "parse_incomplete"
	outcomeLockExpired     = "lock_expired"
	outcomeAmountMismatch  = "amount_mismatch"
	outcomeNoMatch         = "no_match"
	outcomeAmbiguous       = "ambiguous"
	outcomeError           = "error"
)

var (
	reconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_reconcile_total",
			Help: "Bank SMS reconciliations by outcome",
		},
		[]string{"outcome"},
	)

	reconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "topup_reconcile_duration_seconds",
			Help:    "Duration of one bank SMS reconciliation",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	allocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_allocations_total",
			Help: "Top-up lock allocations, by whether the requested amount was free",
		},
		[]string{"result"},
	)

	expiredLocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topup_locks_expired_total",
			Help: "Locks moved to expired by sweeps",
		},
	)

	eventPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topup_event_publish_errors_total",
			Help: "Failed top-up event publishes",
		},
	)
)
