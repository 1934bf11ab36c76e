// Package metrics exposes Prometheus counters and histograms for the
// queue's dispatch/retry activity and the webhook deliverer's outcomes,
// grounded on the speech-ingress example's promauto-based metrics struct.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "transcribebridge"

type Metrics struct {
	SegmentsDispatched prometheus.Counter
	SegmentsRetried    prometheus.Counter
	SegmentsFailed     prometheus.Counter
	SegmentsCompleted  prometheus.Counter

	WebhookDeliveriesSucceeded prometheus.Counter
	WebhookDeliveriesFailed    prometheus.Counter
	WebhookDeliveryAttempts    prometheus.Histogram

	BreakerStateTransitions *prometheus.CounterVec

	QueuePumpDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		SegmentsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "segments_dispatched_total",
			Help: "Total number of segment dispatch attempts.",
		}),
		SegmentsRetried: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "segments_retried_total",
			Help: "Total number of segment dispatch retries scheduled.",
		}),
		SegmentsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "segments_failed_total",
			Help: "Total number of segments that reached a terminal failed state.",
		}),
		SegmentsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "segments_completed_total",
			Help: "Total number of segments that reached a terminal completed state.",
		}),
		WebhookDeliveriesSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "webhook_deliveries_succeeded_total",
			Help: "Total number of client webhook deliveries that eventually succeeded.",
		}),
		WebhookDeliveriesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "webhook_deliveries_failed_total",
			Help: "Total number of client webhook deliveries that exhausted their retry budget.",
		}),
		WebhookDeliveryAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "webhook_delivery_attempts",
			Help:    "Number of attempts taken per webhook delivery.",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
		BreakerStateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions by dependency and target state.",
		}, []string{"dependency", "state"}),
		QueuePumpDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "queue_pump_duration_seconds",
			Help:    "Duration of a single ForceProcess pump invocation.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) RecordDispatched() { m.SegmentsDispatched.Inc() }
func (m *Metrics) RecordRetried()    { m.SegmentsRetried.Inc() }
func (m *Metrics) RecordFailed()     { m.SegmentsFailed.Inc() }
func (m *Metrics) RecordCompleted()  { m.SegmentsCompleted.Inc() }

func (m *Metrics) ObservePumpDuration(seconds float64) {
	m.QueuePumpDuration.Observe(seconds)
}

func (m *Metrics) RecordDelivery(succeeded bool, attempts int) {
	if succeeded {
		m.WebhookDeliveriesSucceeded.Inc()
	} else {
		m.WebhookDeliveriesFailed.Inc()
	}
	m.WebhookDeliveryAttempts.Observe(float64(attempts))
}

func (m *Metrics) RecordBreakerTransition(dependency, state string) {
	m.BreakerStateTransitions.WithLabelValues(dependency, state).Inc()
}
