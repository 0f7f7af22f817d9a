// Package metrics holds the Prometheus counters of the authorizer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reward_vault"

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics is a private registry so tests can create as many as they like.
type Metrics struct {
	registry             *prometheus.Registry
	authorizationsTotal  *prometheus.CounterVec
	confirmationsTotal   *prometheus.CounterVec
	signingFailuresTotal prometheus.Counter
	rateLimitedTotal     prometheus.Counter
	signingDuration      prometheus.Histogram
}

func NewMetrics() *Metrics {
	authorizations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authorizations_total",
		Help:      "Total number of authorization requests by operation kind and result",
	}, []string{"kind", "result"})

	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "confirmations_total",
		Help:      "Total number of on-chain confirmations by operation kind and result",
	}, []string{"kind", "result"})

	signingFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signing_failures_total",
		Help:      "Signing backend failures",
	})

	rateLimited := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-client rate limiter",
	})

	signingDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "prepare_duration_seconds",
		Help:      "Time to prepare and sign one operation",
		Buckets:   prometheus.DefBuckets,
	})

	r := prometheus.NewRegistry()
	r.MustRegister(authorizations, confirmations, signingFailures, rateLimited, signingDuration)

	return &Metrics{
		registry:             r,
		authorizationsTotal:  authorizations,
		confirmationsTotal:   confirmations,
		signingFailuresTotal: signingFailures,
		rateLimitedTotal:     rateLimited,
		signingDuration:      signingDuration,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) IncAuthorization(kind, result string) {
	m.authorizationsTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) IncConfirmation(kind, result string) {
	m.confirmationsTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) IncSigningFailure() {
	m.signingFailuresTotal.Inc()
}

func (m *Metrics) IncRateLimited() {
	m.rateLimitedTotal.Inc()
}

func (m *Metrics) ObservePrepare(seconds float64) {
	m.signingDuration.Observe(seconds)
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
