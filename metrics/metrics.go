// Package metrics defines the Prometheus instruments for the billing
// engine. Post-effect failures (completed work the ledger never saw)
// get their own counters so they can be alerted on directly.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ChargesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outlay",
			Name:      "charges_total",
			Help:      "Total charge attempts by kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: "ok", "insufficient_funds", "work_failed", "write_failed"
	)

	ChargeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "outlay",
			Name:      "charge_duration_seconds",
			Help:      "End-to-end charge duration including the metered work",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	LedgerWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "outlay",
			Name:      "ledger_write_failures_total",
			Help:      "Completed usage the ledger failed to record",
		},
	)

	ReservationLeaksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "outlay",
			Name:      "reservation_leaks_total",
			Help:      "Holds whose release could not be confirmed",
		},
	)

	WorkerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outlay",
			Name:      "worker_requests_total",
			Help:      "Total metered work requests by vendor, model and status",
		},
		[]string{"vendor", "model", "status"},
	)

	WorkerTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outlay",
			Name:      "worker_tokens_total",
			Help:      "Tokens consumed by metered work",
		},
		[]string{"vendor", "model", "type"}, // type: "prompt" / "completion"
	)

	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outlay",
			Name:      "webhook_events_total",
			Help:      "Payment webhook events by type and outcome",
		},
		[]string{"type", "outcome"}, // outcome: "ok", "duplicate", "error"
	)
)

var registered bool

// Register registers all engine metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(ChargesTotal)
	prometheus.MustRegister(ChargeDuration)
	prometheus.MustRegister(LedgerWriteFailuresTotal)
	prometheus.MustRegister(ReservationLeaksTotal)
	prometheus.MustRegister(WorkerRequestsTotal)
	prometheus.MustRegister(WorkerTokensTotal)
	prometheus.MustRegister(WebhookEventsTotal)
	registered = true
}
