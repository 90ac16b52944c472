// Package metrics registers the Prometheus metrics exported by submitq.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionsTotal counts caller-visible outcomes of Submit
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submitq_submissions_total",
			Help: "Submissions by caller-visible outcome",
		},
		[]string{"outcome"},
	)

	// SubmitAttemptsTotal counts network submissions by result
	SubmitAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submitq_submit_attempts_total",
			Help: "Network submission attempts by result",
		},
		[]string{"result"},
	)

	DrainsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "submitq_drains_total",
		Help: "Drains executed",
	})

	DrainSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "submitq_drain_skipped_total",
		Help: "Drain requests collapsed into one already pending",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "submitq_queue_depth",
		Help: "Records waiting in the persistent queue",
	})

	QueueCorruptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "submitq_queue_corrupt_total",
		Help: "Times the persisted queue could not be decoded and was treated as empty",
	})

	ConnectivityReachable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "submitq_connectivity_reachable",
		Help: "1 when the submission endpoint is considered reachable",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submitq_http_requests_total",
			Help: "HTTP requests served by the local API",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "submitq_http_request_duration_seconds",
			Help:    "Duration of local API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// SetReachable mirrors the connectivity state into its gauge
func SetReachable(reachable bool) {
	if reachable {
		ConnectivityReachable.Set(1)
		return
	}
	ConnectivityReachable.Set(0)
}
