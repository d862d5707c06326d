package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		checkoutSessionsTotal,
		checkoutOutcomesTotal,
		checkoutDiscardedCallbacksTotal,
		checkoutCancelPreemptedTotal,
		checkoutResolveSeconds,
		paymentsRevenueTotal,
	)
}

var (
	checkoutSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_sessions_total",
			Help: "Checkout sessions by lifecycle step (configured/opened/failed).",
		},
		[]string{"step"},
	)

	checkoutOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_outcomes_total",
			Help: "Authoritative checkout outcomes (success/error/cancelled).",
		},
		[]string{"outcome"},
	)

	checkoutDiscardedCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_discarded_callbacks_total",
			Help: "Gateway callbacks that arrived after the outcome was latched.",
		},
		[]string{"callback"},
	)

	checkoutCancelPreemptedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_cancel_preempted_total",
			Help: "Cancel callbacks superseded by a success or error inside the grace window.",
		},
	)

	checkoutResolveSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_resolve_seconds",
			Help:    "Time from configure to the authoritative outcome.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of successful payments, labeled by currency.",
		},
		[]string{"currency"},
	)
)

func IncCheckoutSession(step string) {
	checkoutSessionsTotal.WithLabelValues(norm(step)).Inc()
}

func IncCheckoutOutcome(outcome string) {
	checkoutOutcomesTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncDiscardedCallback(callback string) {
	checkoutDiscardedCallbacksTotal.WithLabelValues(norm(callback)).Inc()
}

func IncCancelPreempted() {
	checkoutCancelPreemptedTotal.Inc()
}

func ObserveCheckoutResolve(outcome string, seconds float64) {
	checkoutResolveSeconds.WithLabelValues(norm(outcome)).Observe(seconds)
}

func AddPaymentRevenue(currency string, amount float64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(amount)
}
