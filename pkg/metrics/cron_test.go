package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsRunsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	metrics.now = func() time.Time { return time.Unix(1_790_000_000, 0) }
	job := "stale-operation-release"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncSuccess(job)
	metrics.IncFailure("usage-export")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "cron_job_runs_total", "outcome", "success"); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 2 {
		t.Fatalf("expected success=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "cron_job_runs_total", "job", "usage-export"); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got != 0.25 {
		t.Fatalf("expected duration sum 0.25, got %f", got)
	}

	mf := findMetricFamily(mfs, "cron_job_last_success_timestamp_seconds")
	if mf == nil || len(mf.GetMetric()) != 1 {
		t.Fatalf("expected one last-success series, got %v", mf)
	}
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 1_790_000_000 {
		t.Fatalf("unexpected last success %f", got)
	}
}

func TestCronJobMetricsNilRegistererIsNoop(t *testing.T) {
	m := NewCronJobMetrics(nil)
	m.IncSuccess("outbox-retention")
	m.IncFailure("outbox-retention")
	m.ObserveDuration("", time.Second)
	var nilMetrics *CronJobMetrics
	nilMetrics.IncSuccess("outbox-retention")
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

func TestLedgerMetricsCountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)
	m.IncAuthorization("generate", "authorized")
	m.IncAuthorization("generate", "authorized")
	m.IncAuthorization("edit", "insufficient")
	m.IncConflict("authorize")
	m.IncWebhookEvent("checkout.session.completed", "duplicate")
	m.ObserveGeneration("generate", "completed", 2*time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "credit_authorizations_total", "outcome", "authorized"); err != nil || got != 2 {
		t.Fatalf("expected 2 authorized, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "ledger_write_conflicts_total", "operation", "authorize"); err != nil || got != 1 {
		t.Fatalf("expected 1 conflict, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "payment_webhook_events_total", "outcome", "duplicate"); err != nil || got != 1 {
		t.Fatalf("expected 1 duplicate webhook, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "generation_batch_duration_seconds", "kind", "generate"); err != nil || got != 2 {
		t.Fatalf("expected generation sum 2, got %f err=%v", got, err)
	}
}

func TestLedgerMetricsNilSafe(t *testing.T) {
	var m *LedgerMetrics
	m.IncAuthorization("generate", "authorized")
	m.IncFinalization("failed")
	NewLedgerMetrics(nil).IncConflict("authorize")
}
