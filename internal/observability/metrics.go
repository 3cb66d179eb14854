package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cep_weather"

// Metrics holds the Prometheus counters, histograms, and gauges for the assistant.
type Metrics struct {
	TurnsHandled    *prometheus.CounterVec // labels: action
	ResolveDuration prometheus.Histogram
	ActiveSessions  prometheus.Gauge

	// Intent classification metrics.
	ClassifierRequests *prometheus.CounterVec // labels: outcome={ai,error,timeout,invalid,disabled}
	ClassifierDuration prometheus.Histogram
	ClassifierEnabled  prometheus.Gauge

	// BrasilAPI metrics.
	ProviderRequests *prometheus.CounterVec   // labels: endpoint={address,city_search,forecast}, outcome
	ProviderCache    *prometheus.CounterVec   // labels: endpoint, result={hit,miss}
	ProviderDuration *prometheus.HistogramVec // labels: endpoint

	OutcomesPublished *prometheus.CounterVec // labels: result={success,error}
}

// NewMetrics creates and registers all assistant metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.TurnsHandled,
		m.ResolveDuration,
		m.ActiveSessions,
		m.ClassifierRequests,
		m.ClassifierDuration,
		m.ClassifierEnabled,
		m.ProviderRequests,
		m.ProviderCache,
		m.ProviderDuration,
		m.OutcomesPublished,
	)
	return m
}

// NewUnregisteredMetrics creates Metrics that are not registered with any
// registry, for processes that never expose /metrics.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics()
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		TurnsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_handled_total",
			Help:      "Conversation turns resolved, by action.",
		}, []string{"action"}),
		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "Duration of a complete interpret-and-resolve cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Conversations currently held in memory.",
		}),
		ClassifierRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_requests_total",
			Help:      "Intent classifications by outcome.",
		}, []string{"outcome"}),
		ClassifierDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classifier_duration_seconds",
			Help:      "AI classifier round-trip duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		ClassifierEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "classifier_enabled",
			Help:      "1 when the AI classifier is enabled, 0 otherwise.",
		}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "BrasilAPI requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		ProviderCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_cache_total",
			Help:      "Provider cache lookups by endpoint and result.",
		}, []string{"endpoint", "result"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "BrasilAPI request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		OutcomesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_published_total",
			Help:      "Outcome events written to Kafka, by result.",
		}, []string{"result"}),
	}
}
