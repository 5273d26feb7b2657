// Package metrics defines the Prometheus collectors of the storefront client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing,
// so components can be used without a registry.
type Metrics struct {
	remoteRequests *prometheus.CounterVec
	remoteLatency  *prometheus.HistogramVec
	cartMutations  *prometheus.CounterVec
	rollbacks      prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		remoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "remote_requests_total",
			Help:      "Remote API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Name:      "remote_request_duration_seconds",
			Help:      "Remote API request latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		cartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "cart_mutations_total",
			Help:      "Cart mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "cart_rollbacks_total",
			Help:      "Optimistic quantity changes reverted after a remote failure.",
		}),
	}
	reg.MustRegister(m.remoteRequests, m.remoteLatency, m.cartMutations, m.rollbacks)
	return m
}

// ObserveRemote records one remote API call.
func (m *Metrics) ObserveRemote(endpoint string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.remoteRequests.WithLabelValues(endpoint, outcome(err)).Inc()
	m.remoteLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// CartMutation records the outcome of a cart mutation.
func (m *Metrics) CartMutation(op string, err error) {
	if m == nil {
		return
	}
	m.cartMutations.WithLabelValues(op, outcome(err)).Inc()
}

// Rollback records a reverted optimistic update.
func (m *Metrics) Rollback() {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
