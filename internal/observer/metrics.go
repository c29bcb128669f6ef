// Package observer holds the process Prometheus metrics.
package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true

	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_telephony_webhook_deliveries_total",
			Help: "Webhook deliveries by outcome (processed, ignored, rejected, failed, validation).",
		},
		[]string{"outcome"},
	)
	WebhookRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_telephony_webhook_records_total",
			Help: "Call-log records seen in webhook deliveries by outcome (reconciled, skipped, failed).",
		},
		[]string{"outcome"},
	)
	CallRecordsReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_telephony_call_records_reconciled_total",
			Help: "Call records written, labeled by operation (insert, update).",
		},
		[]string{"operation"},
	)
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_telephony_token_refreshes_total",
			Help: "Provider token refreshes by trigger (expired, proactive, forced) and outcome.",
		},
		[]string{"trigger", "outcome"},
	)
	CallsPlacedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_telephony_calls_placed_total",
			Help: "Outbound call placements by outcome.",
		},
		[]string{"outcome"},
	)
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_telephony_matches_total",
			Help: "Contact/deal match attempts by result (contact, contact_deal, none, error).",
		},
		[]string{"result"},
	)
	ProviderRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_telephony_provider_request_duration_seconds",
			Help:    "Latency of provider API calls.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 11), // 10ms to ~10s
		},
		[]string{"operation", "outcome"},
	)
)

// InitMetrics toggles collection. Metrics are always registered.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

func Inc(c *prometheus.CounterVec, labels ...string) {
	if !metricsEnabled {
		return
	}
	c.WithLabelValues(labels...).Inc()
}

// ObserveProvider records one provider round trip.
func ObserveProvider(operation string, start time.Time, err error) {
	if !metricsEnabled {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ProviderRequestDurationSeconds.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}
