package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestLedgerMetricsExportsDeltasAndBalance(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewLedgerMetrics(reg)
	metrics.ObserveDelta(3, 3)
	metrics.ObserveDelta(-1, 2)
	metrics.ObserveDelta(-1, 1)
	metrics.IncStickerRecorded()
	metrics.IncCorrupt("recovered")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "stickerlab_credit_delta_total", "direction", "debit"); err != nil {
		t.Fatalf("fetch debit: %v", err)
	} else if got != 2 {
		t.Fatalf("expected debit=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "stickerlab_credit_delta_total", "direction", "credit"); err != nil {
		t.Fatalf("fetch credit: %v", err)
	} else if got != 3 {
		t.Fatalf("expected credit=3, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "stickerlab_sticker_collection_corrupt_total", "action", "recovered"); err != nil {
		t.Fatalf("fetch corrupt: %v", err)
	} else if got != 1 {
		t.Fatalf("expected corrupt=1, got %f", got)
	}

	mf := findMetricFamily(mfs, "stickerlab_credit_balance")
	if mf == nil || mf.GetMetric()[0].GetGauge().GetValue() != 1 {
		t.Fatalf("expected balance gauge of 1")
	}
}

func TestRemovalMetricsExportsAttemptsAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewRemovalMetrics(reg)
	metrics.IncAttempt("retryable")
	metrics.IncAttempt("ok")
	metrics.ObserveCall("ok", 1500*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "stickerlab_removal_attempts_total", "outcome", "retryable"); err != nil || got != 1 {
		t.Fatalf("expected retryable=1, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "stickerlab_removal_request_duration_seconds", "outcome", "ok"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got != 1.5 {
		t.Fatalf("expected duration sum 1.5, got %f", got)
	}
}

func TestWorkflowMetricsLabelsUnknownReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewWorkflowMetrics(reg)
	metrics.IncFailure("")
	metrics.IncCreated(2 * time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "stickerlab_sticker_create_failures_total", "reason", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected unknown=1, got %f err=%v", got, err)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var ledger *LedgerMetrics
	ledger.ObserveDelta(1, 1)
	ledger.IncCorrupt("rejected")
	NewLedgerMetrics(nil).SetBalance(4)

	var removal *RemovalMetrics
	removal.IncAttempt("ok")
	NewRemovalMetrics(nil).ObserveCall("ok", time.Second)

	var workflow *WorkflowMetrics
	workflow.IncCreated(time.Second)
	NewWorkflowMetrics(nil).IncFailure("io")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
