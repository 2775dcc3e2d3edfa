package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ctf",
		Subsystem: "orchestrator",
		Name:      "request_duration_seconds",
		Help:      "Duration of orchestrator provision and teardown calls",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "operation"})

	requestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ctf",
		Subsystem: "orchestrator",
		Name:      "request_failures_total",
		Help:      "Number of orchestrator calls that returned an error",
	}, []string{"provider", "operation"})
)
