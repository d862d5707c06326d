package metrics

import (
	"event-billing/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsTotal,
		subscriptionTransitionsTotal,
		subscriptionPersistenceFailuresTotal,
		subscriptionRetryQueueDepth,
	)
}

var (
	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscriptions by derived state.",
		},
		[]string{"state"}, // 'active', 'cancelled', 'expired'
	)

	subscriptionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Subscription lifecycle operations by operation and result.",
		},
		[]string{"op", "result"}, // op: create|cancel|reactivate
	)

	subscriptionPersistenceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_persistence_failures_total",
			Help: "Subscription creates that failed after a captured payment, by stage.",
		},
		[]string{"stage"}, // detached|enqueue|retry|exhausted
	)

	subscriptionRetryQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "subscription_retry_queue_depth",
			Help: "Pending subscription creates waiting for the reconciler.",
		},
	)
)

func IncSubscriptionTransition(op, result string) {
	subscriptionTransitionsTotal.WithLabelValues(norm(op), norm(result)).Inc()
}

func IncPersistenceFailure(stage string) {
	subscriptionPersistenceFailuresTotal.WithLabelValues(norm(stage)).Inc()
}

func SetRetryQueueDepth(n int64) {
	subscriptionRetryQueueDepth.Set(float64(n))
}

func SetSubscriptionsTotal(counts map[model.SubscriptionState]int) {
	states := []model.SubscriptionState{
		model.SubscriptionStateActive,
		model.SubscriptionStateCancelled,
		model.SubscriptionStateExpired,
	}
	for _, state := range states {
		subscriptionsTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}
