// Package metrics defines the Prometheus metric collectors used by the
// diagnosis services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	DiagnosesTotal        *prometheus.CounterVec
	GateDecisionsTotal    *prometheus.CounterVec
	NarrowingStepsTotal   *prometheus.CounterVec
	ContractViolations    prometheus.Counter
	SynthesizerFallbacks  *prometheus.CounterVec
	NormalizerMatches     *prometheus.CounterVec
	ClassifierLatency     prometheus.Histogram
	TextGenLatency        *prometheus.HistogramVec
	PredictionCacheHits   *prometheus.CounterVec
	PredictionCacheMisses prometheus.Counter
	EventsDropped         prometheus.Counter
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DiagnosesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diagnoses_total",
				Help: "Diagnose and ask results by action (direct_report, needs_narrowing, no_symptoms_matched, error).",
			},
			[]string{"operation", "action"},
		),
		GateDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confidence_gate_decisions_total",
				Help: "Confidence gate outcomes.",
			},
			[]string{"decision"},
		),
		NarrowingStepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "narrowing_steps_total",
				Help: "Accepted narrowing steps by answered question number.",
			},
			[]string{"question_number"},
		),
		ContractViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "contract_violations_total",
				Help: "Requests rejected for violating the narrowing protocol.",
			},
		),
		SynthesizerFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synthesizer_fallbacks_total",
				Help: "Deterministic fallbacks substituted for failed text generation, by mode.",
			},
			[]string{"mode"},
		),
		NormalizerMatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "normalizer_matches_total",
				Help: "Symptom tokens resolved per normalization strategy (including unmatched).",
			},
			[]string{"strategy"},
		),
		ClassifierLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "classifier_latency_seconds",
				Help:    "Latency of classifier inference calls.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		TextGenLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "textgen_latency_seconds",
				Help:    "Latency of text generation calls by purpose.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
			},
			[]string{"purpose"},
		),
		PredictionCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prediction_cache_hits_total",
				Help: "Prediction cache hits by tier (memory, redis).",
			},
			[]string{"tier"},
		),
		PredictionCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "prediction_cache_misses_total",
				Help: "Prediction cache misses.",
			},
		),
		EventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "diagnostic_events_dropped_total",
				Help: "Diagnostic events dropped because the collector buffer was full.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DiagnosesTotal,
		m.GateDecisionsTotal,
		m.NarrowingStepsTotal,
		m.ContractViolations,
		m.SynthesizerFallbacks,
		m.NormalizerMatches,
		m.ClassifierLatency,
		m.TextGenLatency,
		m.PredictionCacheHits,
		m.PredictionCacheMisses,
		m.EventsDropped,
		m.CircuitBreakerState,
	)

	return m
}

// NewUnregistered creates collectors on a private registry; used by tests and
// tools that must not touch the global registerer.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
