package auth

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "portal_auth"

// Metrics groups the collectors updated by the auth flow. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	loginAttempts  *prometheus.CounterVec
	loginDuration  prometheus.Histogram
	tokensIssued   prometheus.Counter
	tokensRejected *prometheus.CounterVec
	guardDecisions *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. If reg is
// nil the collectors are created but not registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "login_attempts_total",
				Help:      "Login attempts by outcome.",
			},
			[]string{"outcome"},
		),
		loginDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "login_duration_seconds",
			Help:      "Time spent verifying credentials.",
			Buckets:   prometheus.DefBuckets,
		}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tokens_issued_total",
			Help:      "Session tokens signed.",
		}),
		tokensRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tokens_rejected_total",
				Help:      "Session tokens that failed verification.",
			},
			[]string{"reason"},
		),
		guardDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "guard_decisions_total",
				Help:      "Route guard decisions by route class.",
			},
			[]string{"classification", "decision"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Collectors()...)
	}

	return m
}

// Collectors returns every collector owned by m
func (m *Metrics) Collectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return []prometheus.Collector{
		m.loginAttempts,
		m.loginDuration,
		m.tokensIssued,
		m.tokensRejected,
		m.guardDecisions,
	}
}

// LoginAttempts exposes the counter vector, mostly for tests
func (m *Metrics) LoginAttempts() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.loginAttempts
}

func (m *Metrics) TokensIssued() prometheus.Counter {
	if m == nil {
		return nil
	}
	return m.tokensIssued
}

func (m *Metrics) TokensRejected() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.tokensRejected
}

func (m *Metrics) GuardDecisions() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.guardDecisions
}

func (m *Metrics) loginObserved(reason DenialReason, started time.Time) {
	if m == nil {
		return
	}
	outcome := "success"
	if reason != ReasonNone {
		outcome = string(reason)
	}
	m.loginAttempts.WithLabelValues(outcome).Inc()
	m.loginDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) tokenIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
}

func (m *Metrics) tokenRejected(code string) {
	if m == nil {
		return
	}
	m.tokensRejected.WithLabelValues(code).Inc()
}

func (m *Metrics) guardDecided(d RouteDecision) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(d.Classification.String(), d.Kind.String()).Inc()
}

// MetricsHandler serves the collectors gathered by g
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
