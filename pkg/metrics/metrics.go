package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents counts reconciled gateway webhook deliveries by outcome
	// (applied|noop|not_found|rejected|invalid).
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splithaus_webhook_events_total",
			Help: "Total number of gateway webhook deliveries processed",
		},
		[]string{"outcome"},
	)

	// SignatureFailures counts webhook deliveries rejected for a bad HMAC.
	SignatureFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "splithaus_webhook_signature_failures_total",
			Help: "Total number of webhook deliveries with missing or invalid signatures",
		},
	)

	// InviteRedemptions counts invitation redemption attempts by result
	// (success|already_member|invalid_state|not_found).
	InviteRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splithaus_invite_redemptions_total",
			Help: "Total number of invitation token redemption attempts",
		},
		[]string{"result"},
	)

	// CheckoutAttempts counts checkout initiations by result (success|rejected|gateway_error).
	CheckoutAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splithaus_checkout_attempts_total",
			Help: "Total number of checkout session initiations",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "splithaus_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
