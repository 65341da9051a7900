package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Acknowledgment outcomes used as the "outcome" label.
const (
	OutcomeAcknowledged = "acknowledged"
	OutcomeRejected     = "rejected"
	OutcomeError        = "error"
)

var (
	// Acknowledge calls by outcome. Queue names come from callers, so they are
	// not a label here.
	Acknowledgments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monjobs_acknowledgments_total",
			Help: "Total number of acknowledge calls by outcome",
		},
		[]string{"outcome"},
	)

	// Successful acknowledgments per queue. Only matched jobs count, so the
	// label set is bounded by the queues that hold jobs.
	AcknowledgedJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monjobs_acknowledged_jobs_total",
			Help: "Total number of jobs acknowledged per queue",
		},
		[]string{"queue"},
	)

	// Backend round trip for the conditional update
	AcknowledgeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monjobs_acknowledge_duration_seconds",
			Help:    "Time taken by the backend conditional update",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// Backend errors by kind (unavailable / operation_failed)
	BackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monjobs_backend_errors_total",
			Help: "Total number of backend errors by kind",
		},
		[]string{"backend", "kind"},
	)
)
