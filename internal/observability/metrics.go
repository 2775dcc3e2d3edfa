package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
	instanceEventsTotal   *prometheus.CounterVec
	flagSubmissionsTotal  *prometheus.CounterVec
	reconcileActionsTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ctf_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ctf_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ctf_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		instanceEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ctf_instance_events_total",
			Help: "Challenge instance lifecycle transitions.",
		}, []string{"event"})

		flagSubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ctf_flag_submissions_total",
			Help: "Flag submissions grouped by outcome.",
		}, []string{"result"})

		reconcileActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ctf_reconcile_actions_total",
			Help: "Actions taken by the instance reaper.",
		}, []string{"action", "result"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			instanceEventsTotal,
			flagSubmissionsTotal,
			reconcileActionsTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// InstanceEvents counts started, stopped, failed and expired instances.
func InstanceEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return instanceEventsTotal
}

// FlagSubmissions counts correct and incorrect submissions.
func FlagSubmissions() *prometheus.CounterVec {
	RegisterMetrics()
	return flagSubmissionsTotal
}

// ReconcileActions counts reaper sweeps and teardown retries.
func ReconcileActions() *prometheus.CounterVec {
	RegisterMetrics()
	return reconcileActionsTotal
}
