package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nmkrmint/internal/workflow"
)

// metricsRegistry also serves as the workflow.Observer of every run.
type metricsRegistry struct {
	registry         *prometheus.Registry
	submissionsTotal *prometheus.CounterVec
	runsTotal        *prometheus.CounterVec
	stepFailures     *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	proxyTotal       *prometheus.CounterVec
	runsInFlight     prometheus.Gauge
}

func newMetricsRegistry() *metricsRegistry {
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nmkrmint_submissions_total",
		Help: "Mint form submissions by handling outcome",
	}, []string{"status"})

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nmkrmint_runs_total",
		Help: "Finished mint workflow runs by terminal state",
	}, []string{"state"})

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nmkrmint_step_failures_total",
		Help: "Failed workflow steps",
	}, []string{"step"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nmkrmint_step_duration_seconds",
		Help:    "Duration of NMKR calls per workflow step",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"step"})

	proxy := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nmkrmint_proxy_requests_total",
		Help: "Pass-through API requests by route and status",
	}, []string{"route", "status"})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nmkrmint_runs_in_flight",
		Help: "Mint workflow runs currently executing",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(submissions, runs, failures, duration, proxy, inFlight)

	return &metricsRegistry{
		registry:         r,
		submissionsTotal: submissions,
		runsTotal:        runs,
		stepFailures:     failures,
		stepDuration:     duration,
		proxyTotal:       proxy,
		runsInFlight:     inFlight,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incSubmission(status string) {
	m.submissionsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incProxy(route string, status int) {
	m.proxyTotal.WithLabelValues(route, http.StatusText(status)).Inc()
}

func (m *metricsRegistry) StepStarted(string) {}

func (m *metricsRegistry) StepCompleted(step string, elapsed time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

func (m *metricsRegistry) StepFailed(step string, elapsed time.Duration, _ error) {
	m.stepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
	m.stepFailures.WithLabelValues(step).Inc()
}

func (m *metricsRegistry) RunFinished(state workflow.State, _ time.Duration) {
	m.runsTotal.WithLabelValues(string(state)).Inc()
}
