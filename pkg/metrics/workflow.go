package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics records sticker creation runs.
type WorkflowMetrics struct {
	created  prometheus.Counter
	failures *prometheus.CounterVec
	duration prometheus.Histogram
}

func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	if reg == nil {
		return &WorkflowMetrics{}
	}
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stickers_created_total",
		Help:      "Sticker creation runs that completed.",
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sticker_create_failures_total",
		Help:      "Sticker creation runs that failed, by reason.",
	}, []string{"reason"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sticker_create_duration_seconds",
		Help:      "End to end duration of sticker creation runs.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 90},
	})
	reg.MustRegister(created, failures, duration)
	return &WorkflowMetrics{created: created, failures: failures, duration: duration}
}

func (m *WorkflowMetrics) IncCreated(d time.Duration) {
	if m == nil || m.created == nil {
		return
	}
	m.created.Inc()
	m.duration.Observe(d.Seconds())
}

func (m *WorkflowMetrics) IncFailure(reason string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(reason)).Inc()
}
