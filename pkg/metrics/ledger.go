package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks credit authorization, settlement and webhook traffic.
type LedgerMetrics struct {
	authorizations *prometheus.CounterVec
	conflicts      *prometheus.CounterVec
	finalizations  *prometheus.CounterVec
	webhookEvents  *prometheus.CounterVec
	generation     *prometheus.HistogramVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	authorizations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_authorizations_total",
		Help: "Credit authorizations by kind and outcome.",
	}, []string{"kind", "outcome"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_write_conflicts_total",
		Help: "Optimistic ledger write conflicts that triggered a retry.",
	}, []string{"operation"})
	finalizations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "operation_finalizations_total",
		Help: "Operation settlements by outcome.",
	}, []string{"outcome"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Payment provider webhook events by type and outcome.",
	}, []string{"type", "outcome"})
	generation := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "generation_batch_duration_seconds",
		Help:    "Duration of generation fan-out batches.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"kind", "outcome"})
	reg.MustRegister(authorizations, conflicts, finalizations, webhookEvents, generation)
	return &LedgerMetrics{
		authorizations: authorizations,
		conflicts:      conflicts,
		finalizations:  finalizations,
		webhookEvents:  webhookEvents,
		generation:     generation,
	}
}

// IncAuthorization counts an authorization attempt outcome.
func (m *LedgerMetrics) IncAuthorization(kind, outcome string) {
	if m == nil || m.authorizations == nil {
		return
	}
	m.authorizations.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

// IncConflict counts a retried write conflict.
func (m *LedgerMetrics) IncConflict(operation string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncFinalization counts an operation settlement.
func (m *LedgerMetrics) IncFinalization(outcome string) {
	if m == nil || m.finalizations == nil {
		return
	}
	m.finalizations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncWebhookEvent counts a webhook delivery.
func (m *LedgerMetrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveGeneration records how long a fan-out batch took.
func (m *LedgerMetrics) ObserveGeneration(kind, outcome string, duration time.Duration) {
	if m == nil || m.generation == nil {
		return
	}
	m.generation.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Observe(duration.Seconds())
}
