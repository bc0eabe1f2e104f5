package worker

import "github.com/prometheus/client_golang/prometheus"

// Delivery outcomes (label values of chat_delivery_total).
const (
	outcomeDelivered   = "delivered"
	outcomeSkipped     = "skipped"
	outcomeDeferred    = "deferred"
	outcomeConsistency = "consistency_violation"
)

var (
	// deliveries counts processed queue entries by outcome.
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_delivery_total",
			Help: "Queue entries processed by the delivery worker, by outcome.",
		},
		[]string{"outcome"},
	)

	// deliveryLat records the duration of successful delivery transactions.
	deliveryLat = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_delivery_duration_seconds",
			Help:    "Duration of delivery transactions in seconds.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// retries counts in-pass retries of transient failures.
	retries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_delivery_retries_total",
			Help: "Transient delivery failures retried within a pass.",
		},
	)

	// queueDepth gauges queue entries by state (queued, deferred, finished).
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_queue_depth",
			Help: "Queue entries by state.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(deliveries, deliveryLat, retries, queueDepth)
}
