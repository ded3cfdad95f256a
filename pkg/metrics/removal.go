package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RemovalMetrics records calls to the background-removal service.
type RemovalMetrics struct {
	duration *prometheus.HistogramVec
	attempts *prometheus.CounterVec
}

func NewRemovalMetrics(reg prometheus.Registerer) *RemovalMetrics {
	if reg == nil {
		return &RemovalMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "removal_request_duration_seconds",
		Help:      "Duration of background-removal calls including retries.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"outcome"})
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "removal_attempts_total",
		Help:      "Individual HTTP attempts against the removal service, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(duration, attempts)
	return &RemovalMetrics{duration: duration, attempts: attempts}
}

// ObserveCall records the total duration of one RemoveBackground call.
func (m *RemovalMetrics) ObserveCall(outcome string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(outcome)).Observe(d.Seconds())
}

// IncAttempt counts one HTTP attempt (ok, retryable, permanent, network).
func (m *RemovalMetrics) IncAttempt(outcome string) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}
