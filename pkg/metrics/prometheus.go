// Package metrics registers the gateway's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the global metrics container for the gateway core.
type Metrics struct {
	FetchOutcomesTotal   *prometheus.CounterVec
	FetchDuration        *prometheus.HistogramVec
	ExecutorAttemptsTotal *prometheus.CounterVec
	ExecutorExhaustedTotal *prometheus.CounterVec
	AggregatorLatency    *prometheus.HistogramVec
	ServiceInfo          *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// Init registers the gateway's collectors under the given namespace.
func Init(namespace, subsystem string) *Metrics {
	m := &Metrics{
		FetchOutcomesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "fetch_outcomes_total",
				Help:      "Total number of resolve_and_fetch outcomes by kind",
			},
			[]string{"outcome"},
		),
		FetchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of the full resolve/route/fetch/verify pipeline",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"outcome"},
		),
		ExecutorAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "executor_attempts_total",
				Help:      "Total number of per-URL attempts made by the priority failover executor",
			},
			[]string{"layer", "result"},
		),
		ExecutorExhaustedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "executor_exhausted_total",
				Help:      "Number of times a priority executor invocation exhausted all endpoints",
			},
			[]string{"layer"},
		),
		AggregatorLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "aggregator_latency_seconds",
				Help:      "Latency of successful aggregator blob fetches",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"status"},
		),
		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service build information",
			},
			[]string{"version", "environment"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics, initializing them with defaults if needed.
func Get() *Metrics {
	if defaultMetrics == nil {
		return Init("sites_gateway", "")
	}
	return defaultMetrics
}

// RecordFetchOutcome records the terminal outcome of one resolve_and_fetch call.
func (m *Metrics) RecordFetchOutcome(outcome string, duration time.Duration) {
	m.FetchOutcomesTotal.WithLabelValues(outcome).Inc()
	m.FetchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordExecutorAttempt records one per-URL attempt made by a priority executor.
func (m *Metrics) RecordExecutorAttempt(layer, result string) {
	m.ExecutorAttemptsTotal.WithLabelValues(layer, result).Inc()
}

// RecordExecutorExhausted records that a priority executor ran out of endpoints.
func (m *Metrics) RecordExecutorExhausted(layer string) {
	m.ExecutorExhaustedTotal.WithLabelValues(layer).Inc()
}

// RecordAggregatorLatency records the latency of a successful aggregator fetch.
func (m *Metrics) RecordAggregatorLatency(status string, d time.Duration) {
	m.AggregatorLatency.WithLabelValues(status).Observe(d.Seconds())
}

// SetServiceInfo sets the service_info gauge.
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer starts a small HTTP server exposing /metrics and /health.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
