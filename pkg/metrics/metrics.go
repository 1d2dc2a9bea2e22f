package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the counters exported by the API and worker binaries. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	webhookEvents  *prometheus.CounterVec
	paymentIntents *prometheus.CounterVec
	outboxEvents   *prometheus.CounterVec
	outboxBatch    *prometheus.HistogramVec
}

// New registers the order lifecycle metrics on the provided registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Payment gateway webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})
	paymentIntents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_intents_total",
		Help: "Payment intent requests by outcome (created, reused, failed).",
	}, []string{"outcome"})
	outboxEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_total",
		Help: "Outbox rows processed by the worker by event type and outcome.",
	}, []string{"event_type", "outcome"})
	outboxBatch := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_batch_duration_seconds",
		Help:    "Duration of outbox worker batches in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"worker"})
	reg.MustRegister(webhookEvents, paymentIntents, outboxEvents, outboxBatch)
	return &Metrics{
		webhookEvents:  webhookEvents,
		paymentIntents: paymentIntents,
		outboxEvents:   outboxEvents,
		outboxBatch:    outboxBatch,
	}
}

// ObserveWebhook counts one webhook delivery.
func (m *Metrics) ObserveWebhook(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObservePaymentIntent counts one payment intent request.
func (m *Metrics) ObservePaymentIntent(outcome string) {
	if m == nil || m.paymentIntents == nil {
		return
	}
	m.paymentIntents.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveOutboxEvent counts one processed outbox row.
func (m *Metrics) ObserveOutboxEvent(eventType, outcome string) {
	if m == nil || m.outboxEvents == nil {
		return
	}
	m.outboxEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveOutboxBatch records how long one worker batch took.
func (m *Metrics) ObserveOutboxBatch(worker string, duration time.Duration) {
	if m == nil || m.outboxBatch == nil {
		return
	}
	m.outboxBatch.WithLabelValues(normalizeLabel(worker)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
