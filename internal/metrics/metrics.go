// Package metrics holds the Prometheus collectors of the auth bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "authbridge"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Proxy metrics
	ProxyRequestsTotal *prometheus.CounterVec
	ProxyAttempts      *prometheus.HistogramVec

	// Refresh metrics
	RefreshTotal *prometheus.CounterVec

	// Credential cache metrics
	CacheLookupsTotal *prometheus.CounterVec

	// Gate metrics
	GateDecisionsTotal *prometheus.CounterVec

	// Logout metrics
	LogoutsTotal *prometheus.CounterVec
}

// New creates and registers all metrics on reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProxyRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxy_requests_total",
				Help:      "Authenticated proxy calls by outcome",
			},
			[]string{"outcome"},
		),
		ProxyAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "proxy_attempts",
				Help:      "Backend attempts per proxied call",
				Buckets:   []float64{1, 2},
			},
			[]string{"method"},
		),
		RefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_total",
				Help:      "Credential refresh attempts by result",
			},
			[]string{"result"},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_cache_lookups_total",
				Help:      "Credential cache lookups by result (hit, miss, unavailable)",
			},
			[]string{"result"},
		),
		GateDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_decisions_total",
				Help:      "Access gate decisions",
			},
			[]string{"gate", "action"},
		),
		LogoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logouts_total",
				Help:      "Logouts by kind (soft, full)",
			},
			[]string{"kind"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.ProxyRequestsTotal,
			m.ProxyAttempts,
			m.RefreshTotal,
			m.CacheLookupsTotal,
			m.GateDecisionsTotal,
			m.LogoutsTotal,
		)
	}

	return m
}
