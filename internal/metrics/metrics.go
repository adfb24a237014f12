// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mock_interview"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session lifecycle
	SessionsStarted   *prometheus.CounterVec
	SessionsCompleted *prometheus.CounterVec
	ForcedSubmissions prometheus.Counter
	SessionDuration   prometheus.Histogram

	// Submission
	SubmissionFailures prometheus.Counter

	// Presence analysis
	PresenceSamples prometheus.Counter

	// Speech
	RecognitionRestarts prometheus.Counter
	RecognitionFailures prometheus.Counter
}

// New creates metrics registered against reg. Tests pass a fresh registry to
// avoid duplicate-registration panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of sessions started",
		}, []string{"mode"}),
		SessionsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Total number of sessions scored and stored",
		}, []string{"mode"}),
		ForcedSubmissions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_submissions_total",
			Help:      "Total number of sessions auto-submitted on timer expiry",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall-clock duration of sessions from start to submission",
			Buckets:   []float64{30, 60, 120, 300, 420, 540, 600, 900},
		}),
		SubmissionFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submission_failures_total",
			Help:      "Total number of failed result submissions",
		}),
		PresenceSamples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_samples_total",
			Help:      "Total number of presence analyzer ticks applied",
		}),
		RecognitionRestarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_restarts_total",
			Help:      "Total number of speech recognition stream restarts",
		}),
		RecognitionFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_failures_total",
			Help:      "Total number of terminal speech recognition failures",
		}),
	}
}
