package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	runTotal    *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	runSteps    prometheus.Histogram

	activationTotal    *prometheus.CounterVec
	activationDuration *prometheus.HistogramVec

	capabilityCallTotal    *prometheus.CounterVec
	capabilityCallDuration *prometheus.HistogramVec
	capabilityErrorsTotal  *prometheus.CounterVec

	compactionTotal         prometheus.Counter
	compactionEntriesFolded prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			runTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "orchestrator_run_total",
					Help: "Total orchestrator runs by provider and status.",
				},
				[]string{"provider", "status"},
			),
			runDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "orchestrator_run_duration_seconds",
					Help:    "Run duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			runSteps: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "orchestrator_run_steps",
					Help:    "Trace steps recorded per run.",
					Buckets: prometheus.ExponentialBuckets(1, 2, 10),
				},
			),
			activationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skill_activation_total",
					Help: "Total skill activations by skill, dispatch mode and status.",
				},
				[]string{"skill", "mode", "status"},
			),
			activationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "skill_activation_duration_seconds",
					Help:    "Skill activation duration in seconds by skill and dispatch mode.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"skill", "mode"},
			),
			capabilityCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "capability_call_total",
					Help: "Total capability calls by capability and status.",
				},
				[]string{"capability", "status"},
			),
			capabilityCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "capability_call_duration_seconds",
					Help:    "Capability call duration in seconds by capability.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"capability"},
			),
			capabilityErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "capability_errors_total",
					Help: "Total capability call errors by capability.",
				},
				[]string{"capability"},
			),
			compactionTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "context_compaction_total",
					Help: "Total context compaction events.",
				},
			),
			compactionEntriesFolded: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "context_compaction_entries_folded",
					Help:    "Entries folded into a summary per compaction.",
					Buckets: prometheus.ExponentialBuckets(1, 2, 8),
				},
			),
		}

		prometheus.MustRegister(
			m.runTotal,
			m.runDuration,
			m.runSteps,
			m.activationTotal,
			m.activationDuration,
			m.capabilityCallTotal,
			m.capabilityCallDuration,
			m.capabilityErrorsTotal,
			m.compactionTotal,
			m.compactionEntriesFolded,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordRun(provider string, duration time.Duration, steps int, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.runTotal.WithLabelValues(provider, status).Inc()
	m.runDuration.WithLabelValues(provider).Observe(duration.Seconds())
	m.runSteps.Observe(float64(steps))
}

func RecordActivation(skill, mode, status string, duration time.Duration) {
	m := getMetrics()
	m.activationTotal.WithLabelValues(skill, mode, status).Inc()
	m.activationDuration.WithLabelValues(skill, mode).Observe(duration.Seconds())
}

func RecordCapabilityCall(capability string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.capabilityCallTotal.WithLabelValues(capability, status).Inc()
	m.capabilityCallDuration.WithLabelValues(capability).Observe(duration.Seconds())
	if !success {
		m.capabilityErrorsTotal.WithLabelValues(capability).Inc()
	}
}

func RecordCompaction(entriesFolded int) {
	m := getMetrics()
	m.compactionTotal.Inc()
	m.compactionEntriesFolded.Observe(float64(entriesFolded))
}
