package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	validationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatepass_validations_total",
			Help: "Scan validation outcomes",
		},
		[]string{"outcome", "reason"},
	)

	issuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatepass_tickets_issued_total",
			Help: "Tickets issued",
		},
	)

	offlineQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatepass_offline_queue_depth",
			Help: "Unsynced scans in the local offline queue",
		},
	)

	storeRoundTrip = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gatepass_store_roundtrip_seconds",
			Help:    "Ticket store lookup and transition latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

func ObserveValidation(accepted bool, reason string) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
		reason = ""
	}
	validationsTotal.WithLabelValues(outcome, reason).Inc()
}

func ObserveIssuance() {
	issuedTotal.Inc()
}

func SetOfflineQueueDepth(n int) {
	offlineQueueDepth.Set(float64(n))
}

func ObserveStoreRoundTrip(start time.Time) {
	storeRoundTrip.Observe(time.Since(start).Seconds())
}
