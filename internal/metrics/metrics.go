package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки уведомления Robokassa
const (
	OutcomeSuccess        = "success"
	OutcomeDuplicate      = "duplicate"
	OutcomeBadSignature   = "bad_signature"
	OutcomeMissingFields  = "missing_fields"
	OutcomeNotFound       = "not_found"
	OutcomeAmountMismatch = "amount_mismatch"
	OutcomeInvalidState   = "invalid_state"
	OutcomeTimeout        = "timeout"
	OutcomeError          = "error"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salon_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salon_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PaymentsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "salon_payments_created_total",
			Help: "Total number of payment links generated",
		},
	)

	WebhookOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salon_robokassa_webhook_outcomes_total",
			Help: "Robokassa result callbacks by outcome",
		},
		[]string{"outcome"},
	)

	PaymentProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "salon_payment_processing_duration_seconds",
			Help:    "Duration of the locked payment transition",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		},
	)

	PaymentsFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "salon_payments_failed_total",
			Help: "Total number of payments marked as failed",
		},
	)

	StalePendingPayments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "salon_stale_pending_payments",
			Help: "Pending payments older than the configured threshold",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordPaymentCreated() {
	PaymentsCreatedTotal.Inc()
}

func RecordWebhookOutcome(outcome string) {
	WebhookOutcomesTotal.WithLabelValues(outcome).Inc()
}

func RecordProcessingDuration(seconds float64) {
	PaymentProcessingDuration.Observe(seconds)
}

func RecordPaymentFailed() {
	PaymentsFailedTotal.Inc()
}

func SetStalePending(count int) {
	StalePendingPayments.Set(float64(count))
}
