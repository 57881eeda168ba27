package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every browseract metric. It is separate from the default
// registry so that a textfile dump contains only runner metrics.
var Registry = prometheus.NewRegistry()

var (
	// StepsTotal counts emitted step outcomes by action and result (ok, failed, invalid, cancelled).
	StepsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "browseract",
			Name:      "steps_total",
			Help:      "Total number of step outcomes",
		},
		[]string{"action", "result"},
	)

	// StepRetries counts additional attempts made after a failed attempt.
	StepRetries = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "browseract",
			Name:      "step_retries_total",
			Help:      "Total number of step retries",
		},
	)

	// ArtifactsTotal counts failure screenshots by result (captured, failed).
	ArtifactsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "browseract",
			Name:      "artifacts_total",
			Help:      "Total number of failure artifact captures",
		},
		[]string{"result"},
	)

	// StepDuration observes wall time per step including retries and pacing.
	StepDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "browseract",
			Name:      "step_duration_seconds",
			Help:      "Step duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"action"},
	)

	// JobsTotal counts processed jobs in batch runs by result.
	JobsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "browseract",
			Name:      "jobs_total",
			Help:      "Total number of processed jobs",
		},
		[]string{"site", "result"},
	)
)

// WriteTextfile dumps the registry in the text exposition format, for the
// node_exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
