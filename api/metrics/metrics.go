package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersTotal counts order creation attempts by outcome.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "offboardpro",
		Subsystem: "billing",
		Name:      "orders_total",
		Help:      "Payment orders requested, by gateway and outcome.",
	}, []string{"gateway", "outcome"})

	// ConfirmationsTotal counts client payment confirmations by outcome.
	ConfirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "offboardpro",
		Subsystem: "billing",
		Name:      "payment_confirmations_total",
		Help:      "Payment confirmations by outcome.",
	}, []string{"outcome"})

	// WebhookRequestsTotal counts gateway webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "offboardpro",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Gateway webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// EntitlementWritesTotal counts entitlement store writes.
	EntitlementWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "offboardpro",
		Subsystem: "entitlement",
		Name:      "writes_total",
		Help:      "Entitlement writes by operation and outcome.",
	}, []string{"op", "outcome"})

	// ObserverSubscriptions is the number of live entitlement subscriptions.
	ObserverSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "offboardpro",
		Subsystem: "entitlement",
		Name:      "observer_subscriptions",
		Help:      "Active entitlement observer subscriptions.",
	})

	// ReconcileRuns counts reconciliation sweeps by outcome.
	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "offboardpro",
		Subsystem: "billing",
		Name:      "reconcile_runs_total",
		Help:      "Reconciliation sweeps by outcome.",
	}, []string{"outcome"})

	// ReconcileDuration tracks how long a sweep takes.
	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "offboardpro",
		Subsystem: "billing",
		Name:      "reconcile_duration_seconds",
		Help:      "Reconciliation sweep duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Outcome labels shared by the counters above.
const (
	OutcomeOK     = "ok"
	OutcomeError  = "error"
	OutcomeReject = "rejected"
)
